// Package config loads the bot's environment-variable configuration, the
// way original_source/src/main.rs reads its dotenv vars, but as a single
// tagged struct instead of a sequence of expect() calls.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Port int `envconfig:"PORT" default:"8888"`

	DBPath string `envconfig:"DB_PATH" required:"true"`

	GithubOrganization string `envconfig:"GITHUB_ORGANIZATION" required:"true"`
	GithubToken        string `envconfig:"GITHUB_TOKEN" required:"true"`
	WebhookSecret      string `envconfig:"WEBHOOK_SECRET" required:"true"`

	MatrixHomeserver string `envconfig:"MATRIX_HOMESERVER"`
	MatrixUser       string `envconfig:"MATRIX_USER"`
	MatrixPassword   string `envconfig:"MATRIX_PASSWORD"`
	MatrixChannelID  string `envconfig:"MATRIX_CHANNEL_ID"`
	BurninRoomID     string `envconfig:"BURNIN_ROOM_ID"`

	CIRequestOwner string `envconfig:"CI_REQUEST_OWNER"`
	CIRequestRepo  string `envconfig:"CI_REQUEST_REPO"`
	CIRequestToken string `envconfig:"CI_REQUEST_TOKEN"`

	MinReviewers int `envconfig:"MIN_REVIEWERS" default:"2"`

	BaseRepoName                 string `envconfig:"BASE_REPO_NAME" default:"substrate"`
	BaseRepoStagingName          string `envconfig:"BASE_REPO_STAGING_NAME" default:"main-for-processbot-staging"`
	CompanionRepoName            string `envconfig:"COMPANION_REPO_NAME" default:"polkadot"`
	CompanionStagingName         string `envconfig:"COMPANION_STAGING_NAME" default:"companion-for-processbot-staging"`
	DependencyLockfilePin        string `envconfig:"DEPENDENCY_LOCKFILE_PIN" default:"sp-io"`
	DependencyLockfilePinStaging string `envconfig:"DEPENDENCY_LOCKFILE_PIN_STAGING" default:"main-for-processbot-staging"`
	TeamLeadsSlug                string `envconfig:"TEAM_LEADS_SLUG" default:"substrateteamleads"`
	CoreDevsSlug                 string `envconfig:"CORE_DEVS_SLUG" default:"core-devs"`

	// TickSecs is unused by the core (no polling loop remains once the
	// bot is fully webhook-driven) but is kept as a config field so the
	// environment surface matches the original bot's.
	TickSecs int `envconfig:"TICK_SECS" default:"30"`
}

// Load populates a Config from the process environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &c, nil
}
