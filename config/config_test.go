package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := range kv {
			if kv[i] == '=' {
				key := kv[:i]
				if _, ok := os.LookupEnv(key); ok {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_PATH", "/tmp/marge.db")
	os.Setenv("GITHUB_ORGANIZATION", "paritytech")
	os.Setenv("GITHUB_TOKEN", "tok")
	os.Setenv("WEBHOOK_SECRET", "shh")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, 2, cfg.MinReviewers)
	assert.Equal(t, "substrate", cfg.BaseRepoName)
	assert.Equal(t, "polkadot", cfg.CompanionRepoName)
	assert.Equal(t, "sp-io", cfg.DependencyLockfilePin)
	assert.Equal(t, "main-for-processbot-staging", cfg.DependencyLockfilePinStaging)
	assert.Equal(t, "substrateteamleads", cfg.TeamLeadsSlug)
	assert.Equal(t, "core-devs", cfg.CoreDevsSlug)
}

func TestLoadMissingRequiredFieldErrors(t *testing.T) {
	clearEnv(t)
	os.Setenv("GITHUB_ORGANIZATION", "paritytech")
	os.Setenv("GITHUB_TOKEN", "tok")
	os.Setenv("WEBHOOK_SECRET", "shh")
	defer clearEnv(t)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverridesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_PATH", "/tmp/marge.db")
	os.Setenv("GITHUB_ORGANIZATION", "paritytech")
	os.Setenv("GITHUB_TOKEN", "tok")
	os.Setenv("WEBHOOK_SECRET", "shh")
	os.Setenv("PORT", "9999")
	os.Setenv("MIN_REVIEWERS", "3")
	os.Setenv("BASE_REPO_NAME", "example-repo")
	defer clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 3, cfg.MinReviewers)
	assert.Equal(t, "example-repo", cfg.BaseRepoName)
}
