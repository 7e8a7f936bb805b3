package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
detector:
  provider: http
  url: http://localhost:8000
auth:
  apiKeys:
    alice: secret
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Detector.Timeout())
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 60, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval())
	assert.Equal(t, 15*time.Minute, cfg.Reconciler.StaleAfter())
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9999
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: app
  name: scans
  sslmode: require
detector:
  provider: http
  url: http://detector:8000
  timeoutSeconds: 5
rateLimit:
  windowSeconds: 10
  maxRequests: 3
auth:
  apiKeys:
    alice: secret
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Detector.Timeout())
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window())
	assert.Contains(t, cfg.Database.PostgresDSN(), "host=db.internal")
	assert.Contains(t, cfg.Database.PostgresDSN(), "sslmode=require")
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	cfg, err := Load(writeConfig(t, minimalConfig+`
database:
  driver: mysql
  user: app
  name: scans
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Contains(t, cfg.Database.MySQLDSN(), "app:from-env@tcp")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown driver", `
database:
  driver: oracle
detector:
  provider: http
  url: http://x
auth:
  apiKeys:
    a: b
`},
		{"unknown detector provider", `
detector:
  provider: psychic
auth:
  apiKeys:
    a: b
`},
		{"http provider without url", `
detector:
  provider: http
auth:
  apiKeys:
    a: b
`},
		{"openai provider without key", `
detector:
  provider: openai
auth:
  apiKeys:
    a: b
`},
		{"no api keys", `
detector:
  provider: http
  url: http://x
`},
		{"zero rate limit", `
detector:
  provider: http
  url: http://x
rateLimit:
  windowSeconds: 0
  maxRequests: 0
auth:
  apiKeys:
    a: b
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
