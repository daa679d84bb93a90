package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegabot/omegabot/internal/models"
)

func TestAuthorizeCommand(t *testing.T) {
	restricted := &Command{Token: "!add", Tier: TierRestricted}
	devOnly := &Command{Token: "!template", Tier: TierDeveloper}
	public := &Command{Token: "?help", Tier: TierPublic}

	perms := models.PermissionList{"!add": {"granted"}}

	tests := []struct {
		name        string
		cmd         *Command
		memberID    string
		isAdmin     bool
		isDeveloper bool
		want        authDecision
	}{
		{"public open to everybody", public, "anyone", false, false, authAllowed},
		{"restricted denied for plain member", restricted, "anyone", false, false, authDeniedRestricted},
		{"restricted allowed for admin", restricted, "anyone", true, false, authAllowed},
		{"restricted allowed for developer", restricted, "anyone", false, true, authAllowed},
		{"restricted allowed when granted", restricted, "granted", false, false, authAllowed},
		{"developer only rejects admin", devOnly, "anyone", true, false, authDeniedDeveloperOnly},
		{"developer only accepts developer", devOnly, "anyone", false, true, authAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := authorizeCommand(tt.cmd, tt.memberID, tt.isAdmin, tt.isDeveloper, perms)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrantDoesNotCoverOtherCommands(t *testing.T) {
	perms := models.PermissionList{"!add": {"m1"}}
	other := &Command{Token: "!remove", Tier: TierRestricted}
	assert.Equal(t, authDeniedRestricted, authorizeCommand(other, "m1", false, false, perms))
}

func TestCommandContextRest(t *testing.T) {
	ctx := &CommandContext{Args: []string{"name", "a", "multi", "word", "value"}}
	assert.Equal(t, "a multi word value", ctx.Rest(1))
	assert.Equal(t, "value", ctx.Rest(4))
	assert.Equal(t, "", ctx.Rest(5))
	assert.Equal(t, "", ctx.Rest(99))
}

func TestRegisteredCommandCatalogue(t *testing.T) {
	b := &Bot{}
	b.registerCommands()

	for _, token := range []string{
		"?help", "?info", "?streamer", "?roles", "?wiki", "!join", "!leave",
		"!add", "!remove", "!addStreamer", "!removeStreamer", "!setStreamer",
		"!setStreamChannel", "!setAllowAll", "!set", "!unset",
		"!rolesAdd", "!rolesRemove", "!!grant", "!!revoke", "!!clear", "!!export",
		"!template",
	} {
		cmd, ok := b.commands[token]
		require.True(t, ok, "command %s missing", token)
		assert.Equal(t, token, cmd.Token)
		assert.NotNil(t, cmd.Handler)
		assert.NotEmpty(t, cmd.Help)
	}

	assert.Equal(t, TierPublic, b.commands["?help"].Tier)
	assert.Equal(t, TierRestricted, b.commands["!add"].Tier)
	assert.Equal(t, TierRestricted, b.commands["!!clear"].Tier)
	assert.Equal(t, TierDeveloper, b.commands["!template"].Tier)
}

func TestChunkLines(t *testing.T) {
	chunks := chunkLines([]string{"aaa", "bbb", "ccc"}, 7)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aaa\nbbb", chunks[0])
	assert.Equal(t, "ccc", chunks[1])

	one := chunkLines([]string{"short"}, 100)
	assert.Equal(t, []string{"short"}, one)

	assert.Empty(t, chunkLines(nil, 100))

	// A single oversized line still comes through whole.
	long := strings.Repeat("x", 50)
	assert.Equal(t, []string{long}, chunkLines([]string{long}, 10))
}

func TestParseChannelID(t *testing.T) {
	assert.Equal(t, "123456", parseChannelID("<#123456>"))
	assert.Equal(t, "123456", parseChannelID("123456"))
	assert.Equal(t, "", parseChannelID("<@123456>"))
	assert.Equal(t, "", parseChannelID("general"))
	assert.Equal(t, "", parseChannelID(""))
}

func TestStripMentionTokens(t *testing.T) {
	tokens := []string{"hello", "<@!m1>", "there", "<@m1>"}
	assert.Equal(t, "hello there", stripMentionTokens(tokens, "m1"))
	assert.Equal(t, "hello <@!m2> there", stripMentionTokens([]string{"hello", "<@!m2>", "there"}, "m1"))
}
