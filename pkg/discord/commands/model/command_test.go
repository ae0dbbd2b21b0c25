package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

func TestFormatNameIsIdempotent(t *testing.T) {
	for _, in := range []string{"  Hello World ", "PING", "already-normal", "Mixed Case Name"} {
		once := FormatName(in)
		require.Equal(t, strings.ReplaceAll(strings.ToLower(strings.TrimSpace(in)), " ", "-"), once)
		require.Equal(t, once, FormatName(once), "normalizing %q twice changed it", in)
	}
	require.Equal(t, "my_option", FormatOptionName(" My Option"))
}

func TestSlashNameLengthBounds(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "exactly 32", input: strings.Repeat("a", 32)},
		{name: "33", input: strings.Repeat("a", 33), wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSlash(tt.input, "desc", nil)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidLength)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, "name", verr.Field)
		})
	}
}

func TestSlashDescriptionLengthBounds(t *testing.T) {
	_, err := NewSlash("ping", "d", nil)
	require.NoError(t, err)
	_, err = NewSlash("ping", strings.Repeat("d", 100), nil)
	require.NoError(t, err)
	_, err = NewSlash("ping", strings.Repeat("d", 101), nil)
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = NewSlash("ping", "", nil)
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestContextCommandKeepsCase(t *testing.T) {
	cmd, err := NewContext(UserCommand, " Show Avatar ")
	require.NoError(t, err)
	require.Equal(t, "Show Avatar", cmd.Name())
	require.Empty(t, cmd.Description())

	_, err = NewContext(ChatInput, "nope")
	require.ErrorIs(t, err, ErrWrongType)
}

func TestOptionValidation(t *testing.T) {
	_, err := NewOption(OptionString, "color", "pick", WithAutocomplete(), WithChoices(Choice{Name: "red", Value: "red"}))
	require.ErrorIs(t, err, ErrConflict)

	_, err = NewOption(OptionInteger, "count", "how many", WithChoices(Choice{Name: "one", Value: "1"}))
	require.ErrorIs(t, err, ErrWrongType)

	_, err = NewOption(OptionInteger, "count", "how many", WithChoices(Choice{Name: "half", Value: 0.5}))
	require.ErrorIs(t, err, ErrWrongType)

	opt, err := NewOption(OptionInteger, "Count It", "how many", WithChoices(Choice{Name: "one", Value: 1}), WithMin(0), WithMax(10))
	require.NoError(t, err)
	require.Equal(t, "count_it", opt.Name)

	_, err = NewOption(OptionString, "text", "t", WithChannelTypes(discordgo.ChannelTypeGuildText))
	require.ErrorIs(t, err, ErrConflict)

	_, err = NewOption(OptionNumber, "ratio", "r", WithMin(5), WithMax(1))
	require.ErrorIs(t, err, ErrConflict)
}

func TestCommandOptionsValidation(t *testing.T) {
	_, err := NewSlash("ping", "pong", []*Option{nil})
	require.ErrorIs(t, err, ErrWrongType)

	a := &Option{Type: OptionString, Name: "a", Description: "a"}
	dup := &Option{Type: OptionString, Name: "a", Description: "again"}
	_, err = NewSlash("ping", "pong", []*Option{a, dup})
	require.ErrorIs(t, err, ErrConflict)

	optional := &Option{Type: OptionString, Name: "opt", Description: "o"}
	required := &Option{Type: OptionString, Name: "req", Description: "r", Required: true}
	_, err = NewSlash("ping", "pong", []*Option{optional, required})
	require.ErrorIs(t, err, ErrConflict)

	sub := &Option{Type: OptionSubCommand, Name: "sub", Description: "s"}
	_, err = NewSlash("ping", "pong", []*Option{sub, a})
	require.ErrorIs(t, err, ErrConflict)
}

func TestSubcommandBaseNames(t *testing.T) {
	_, err := NewSubcommand(nil, "sub", "d", nil)
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = NewSubcommand([]string{"a", "b", "c"}, "sub", "d", nil)
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = NewSubcommand([]string{strings.Repeat("x", 33)}, "sub", "d", nil)
	require.ErrorIs(t, err, ErrInvalidLength)

	cmd, err := NewSubcommand([]string{"Admin Tools", "Roles"}, "Add Role", "adds", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"admin-tools", "roles", "add-role"}, cmd.Path())
	require.Equal(t, "admin-tools roles add-role", cmd.QualifiedName())
}

func TestSetterFailureLeavesCommandUntouched(t *testing.T) {
	cmd, err := NewSlash("ping", "pong", nil, WithGuilds("1", " 1 ", "2", ""))
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, cmd.GuildIDs())

	require.ErrorIs(t, cmd.SetName(strings.Repeat("n", 40)), ErrInvalidLength)
	require.Equal(t, "ping", cmd.Name())

	require.NoError(t, cmd.SetDescription("new description"))
	require.Equal(t, "new description", cmd.Description())
}

func TestEqualAgainstDecodedRemote(t *testing.T) {
	opt, err := NewOption(OptionInteger, "count", "how many", Required(), WithChoices(Choice{Name: "one", Value: 1}))
	require.NoError(t, err)
	msg, err := NewOption(OptionMessage, "target", "message id")
	require.NoError(t, err)
	cmd, err := NewSlash("ping", "pong", []*Option{opt, msg})
	require.NoError(t, err)

	local := cmd.ToDiscord()
	require.Equal(t, discordgo.ApplicationCommandOptionString, local.Options[1].Type)

	// Round trip through JSON the way the API hands it back (ids, no default_permission).
	raw, err := json.Marshal(local)
	require.NoError(t, err)
	var remote discordgo.ApplicationCommand
	require.NoError(t, json.Unmarshal(raw, &remote))
	remote.ID = "42"
	remote.DefaultPermission = nil

	require.True(t, Equal(local, &remote))

	remote.Description = "changed"
	require.False(t, Equal(local, &remote))
}

func TestPermissionsEqualIgnoresOrder(t *testing.T) {
	a := Permissions{Allow: []Subject{Role("1"), User("2")}, Deny: []Subject{Role("3")}}
	b := PermissionsFromDiscord(Permissions{Deny: []Subject{Role("3")}, Allow: []Subject{User("2"), Role("1")}}.ToDiscord())
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(Permissions{Allow: []Subject{Role("1")}}))
	require.True(t, Permissions{}.Empty())
}

func TestRegistryIDsPerScope(t *testing.T) {
	cmd, err := NewSlash("ping", "pong", nil, WithGuilds("10", "20"))
	require.NoError(t, err)
	require.Equal(t, []string{"10", "20"}, cmd.Scopes())

	cmd.SetID("10", "a")
	cmd.SetID("20", "b")
	require.Equal(t, "a", cmd.ID("10"))
	cmd.SetID("10", "")
	require.Equal(t, map[string]string{"20": "b"}, cmd.IDs())

	global, err := NewSlash("hello", "world", nil)
	require.NoError(t, err)
	require.True(t, global.IsGlobal())
	require.Equal(t, []string{GlobalScope}, global.Scopes())
}
