package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
github:
  token: ghp_x
orchestrator:
  base_url: http://localhost:8000
tenants:
  - id: acme
    host: bounties.acme.dev
    name: Acme
webhooks:
  - url: https://hooks.example/x
    format: slack
`))
	require.NoError(t, err)
	assert.Equal(t, "ghp_x", cfg.GitHub.Token)
	assert.Equal(t, "http://localhost:8000", cfg.Orchestrator.BaseURL)
	require.Len(t, cfg.Tenants, 1)
	assert.Equal(t, "bounties.acme.dev", cfg.Tenants[0].Host)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"relative orchestrator url", "orchestrator:\n  base_url: not-a-url\n"},
		{"tenant without host", "tenants:\n  - id: a\n    name: A\n"},
		{"duplicate tenant host", "tenants:\n  - id: a\n    host: h\n  - id: b\n    host: h\n"},
		{"webhook without url", "webhooks:\n  - format: json\n"},
		{"webhook unknown format", "webhooks:\n  - url: https://x\n    format: xml\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	require.Len(t, cfg.Tenants, 1)
	assert.Equal(t, "default", cfg.Tenants[0].ID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOUNTYBOARD_GITHUB_TOKEN", "from-env")
	t.Setenv("BOUNTYBOARD_ORCHESTRATOR_URL", "http://orch.internal:9000")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bountyd.yml"), []byte("github:\n  token: from-file\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GitHub.Token)
	assert.Equal(t, "http://orch.internal:9000", cfg.Orchestrator.BaseURL)
}
