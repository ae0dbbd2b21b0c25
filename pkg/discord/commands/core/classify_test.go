package core

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySubcommandPath(t *testing.T) {
	raw := invocation("g1", discordgo.ApplicationCommandInteractionData{
		ID:   "42",
		Name: "config",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:    "set",
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{stringOpt("key", "prefix")},
		}},
	})

	ev, err := Classify(raw)
	require.NoError(t, err)
	cmd, ok := ev.(CommandEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"config", "set"}, cmd.Path)
	assert.Equal(t, model.ChatInput, cmd.Type)
	require.Len(t, cmd.Options, 1)
	assert.Equal(t, "key", cmd.Options[0].Name)
}

func TestClassifyAutocompleteNeedsFocus(t *testing.T) {
	raw := autocompleteInteraction("tag", stringOpt("tag", "x"))
	_, err := Classify(raw)
	require.Error(t, err)

	focused := stringOpt("tag", "x")
	focused.Focused = true
	ev, err := Classify(autocompleteInteraction("tag", focused))
	require.NoError(t, err)
	ac, ok := ev.(AutocompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "tag", ac.Focused.Name)
}

func TestClassifyUnsupported(t *testing.T) {
	_, err := Classify(&discordgo.Interaction{Type: discordgo.InteractionModalSubmit})
	assert.ErrorIs(t, err, interaction.ErrNotSupported)

	ev, err := Classify(&discordgo.Interaction{Type: discordgo.InteractionPing})
	require.NoError(t, err)
	assert.IsType(t, PingEvent{}, ev)
}

func TestHasFocusedOption(t *testing.T) {
	nested := stringOpt("q", "")
	nested.Focused = true
	opts := []*discordgo.ApplicationCommandInteractionDataOption{{
		Name:    "search",
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{nested},
	}}
	assert.True(t, HasFocusedOption(opts))
	assert.False(t, HasFocusedOption(nil))
}
