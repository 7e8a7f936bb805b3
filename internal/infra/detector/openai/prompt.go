package openai

import "fmt"

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior smart-contract auditor. You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- Use lowercase severity values: critical, high, medium, low, info.
- vulnerabilities is an array of objects; include at least name, description, severity and category. Keep items concise.
- lineNumber refers to the provided source; omit it when the location is unclear.
- Report an empty vulnerabilities array when the contract is clean.

Schema (example with empty values):
{
  "vulnerabilities": [
    {
      "name": "<string>",
      "description": "<string>",
      "severity": "<critical|high|medium|low|info>",
      "category": "<string>",
      "recommendation": "<string>",
      "lineNumber": 0,
      "code": "<string>"
    }
  ]
}`
}

// GetUserPrompt builds the user message around the contract source.
func GetUserPrompt(source string) string {
	return fmt.Sprintf("Audit this Solidity source and respond with the JSON per schema.\n\n%s", source)
}
