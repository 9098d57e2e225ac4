package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseExactCommands(t *testing.T) {
	cases := map[string]Kind{
		"bot merge":             MergeNormal,
		"  bot merge  ":         MergeNormal,
		"BOT MERGE":             MergeNormal,
		"bot merge force":       MergeForce,
		"Bot Merge Force":       MergeForce,
		"bot merge cancel":      MergeCancel,
		"bot compare substrate": CompareRelease,
		"bot rebase":            Rebase,
		"not a command":         None,
		"bot merge please":      None,
	}
	for body, want := range cases {
		got := Parse(body)
		assert.Equalf(t, want, got.Kind, "body=%q", body)
	}
}

func TestParseMergeForceNeverMatchesMergeNormal(t *testing.T) {
	// Order-of-tests matters: "bot merge force" must not be classified via
	// a substring/prefix check against "bot merge".
	assert.Equal(t, MergeForce, Parse("bot merge force").Kind)
	assert.Equal(t, MergeNormal, Parse("bot merge").Kind)
}

func TestParseInternalWhitespaceNotNormalized(t *testing.T) {
	assert.Equal(t, None, Parse("bot  merge").Kind)
}

func TestParseBurninRequiresFencedBlock(t *testing.T) {
	got := Parse("bot burnin\n```toml\nimage = \"foo\"\n```")
	assert.Equal(t, Burnin, got.Kind)
	assert.Equal(t, `image = "foo"`, got.BurninTOML)
}

func TestParseBurninWithoutFenceIsNone(t *testing.T) {
	got := Parse("bot burnin without a fence")
	assert.Equal(t, None, got.Kind)
}

func TestParseBurninCaseInsensitivePrefix(t *testing.T) {
	got := Parse("Bot Burnin\n```\nimage = \"foo\"\n```")
	assert.Equal(t, Burnin, got.Kind)
}
