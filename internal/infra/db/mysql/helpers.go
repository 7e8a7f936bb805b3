package mysql

import "strings"

// escapeLikePattern escapes special characters in LIKE patterns to prevent
// wildcard injection through the search box.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
