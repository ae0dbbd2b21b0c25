package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	args := m.Called(ctx, guildID, userID)
	v, _ := args.Get(0).(*discordgo.Member)
	return v, args.Error(1)
}

func (m *mockFetcher) FetchUser(ctx context.Context, userID string) (*discordgo.User, error) {
	args := m.Called(ctx, userID)
	v, _ := args.Get(0).(*discordgo.User)
	return v, args.Error(1)
}

func (m *mockFetcher) FetchChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	args := m.Called(ctx, channelID)
	v, _ := args.Get(0).(*discordgo.Channel)
	return v, args.Error(1)
}

func (m *mockFetcher) FetchRole(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	args := m.Called(ctx, guildID, roleID)
	v, _ := args.Get(0).(*discordgo.Role)
	return v, args.Error(1)
}

func (m *mockFetcher) FetchMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	args := m.Called(ctx, channelID, messageID)
	v, _ := args.Get(0).(*discordgo.Message)
	return v, args.Error(1)
}

type mapLookup struct {
	members  map[string]*discordgo.Member
	users    map[string]*discordgo.User
	channels map[string]*discordgo.Channel
	roles    map[string]*discordgo.Role
	messages map[string]*discordgo.Message
}

func (l mapLookup) CachedMember(_, userID string) (*discordgo.Member, bool) {
	m, ok := l.members[userID]
	return m, ok
}

func (l mapLookup) CachedUser(userID string) (*discordgo.User, bool) {
	u, ok := l.users[userID]
	return u, ok
}

func (l mapLookup) CachedChannel(id string) (*discordgo.Channel, bool) {
	c, ok := l.channels[id]
	return c, ok
}

func (l mapLookup) CachedRole(_, id string) (*discordgo.Role, bool) {
	r, ok := l.roles[id]
	return r, ok
}

func (l mapLookup) CachedMessage(_, id string) (*discordgo.Message, bool) {
	m, ok := l.messages[id]
	return m, ok
}

func memberPayload() *discordgo.ApplicationCommandInteractionDataResolved {
	return &discordgo.ApplicationCommandInteractionDataResolved{
		Users:   map[string]*discordgo.User{"123": {ID: "123", Username: "alice"}},
		Members: map[string]*discordgo.Member{"123": {Nick: "al"}},
	}
}

func TestResolveMemberFromPayload(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))

	v, err := r.Thing(context.Background(), Request{
		Value:    "123",
		Type:     model.OptionUser,
		GuildID:  "g",
		Resolved: memberPayload(),
	}, Resolve)
	require.NoError(t, err)

	member, ok := v.(*discordgo.Member)
	require.True(t, ok, "expected a member, got %T", v)
	require.Equal(t, "al", member.Nick)
	require.Equal(t, "alice", member.User.Username)
	require.Equal(t, "g", member.GuildID)
}

func TestResolveUserOutsideGuild(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	v, err := r.Thing(context.Background(), Request{Value: "123", Type: model.OptionUser, Resolved: memberPayload()}, Resolve)
	require.NoError(t, err)
	require.IsType(t, &discordgo.User{}, v)
}

func TestScalarsIgnoreMethod(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	ctx := context.Background()
	for _, m := range []Method{Auto, Resolve, Fetch, Cache, Raw} {
		v, err := r.Thing(ctx, Request{Value: float64(42), Type: model.OptionInteger}, m)
		require.NoError(t, err)
		require.Equal(t, int64(42), v)

		v, err = r.Thing(ctx, Request{Value: "hey", Type: model.OptionString}, m)
		require.NoError(t, err)
		require.Equal(t, "hey", v)

		v, err = r.Thing(ctx, Request{Value: 1.5, Type: model.OptionNumber}, m)
		require.NoError(t, err)
		require.Equal(t, 1.5, v)

		v, err = r.Thing(ctx, Request{Value: true, Type: model.OptionBoolean}, m)
		require.NoError(t, err)
		require.Equal(t, true, v)
	}
}

func TestScalarsComeBackAsReceived(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	ctx := context.Background()

	v, err := r.Thing(ctx, Request{Value: "42", Type: model.OptionInteger}, Auto)
	require.NoError(t, err)
	require.Equal(t, "42", v)

	v, err = r.Thing(ctx, Request{Value: 2.5, Type: model.OptionInteger}, Auto)
	require.NoError(t, err)
	require.Equal(t, 2.5, v)

	v, err = r.Thing(ctx, Request{Value: float64(3), Type: model.OptionNumber}, Auto)
	require.NoError(t, err)
	require.Equal(t, float64(3), v)
}

func TestAutoEndsWithRawForUnexpectedValues(t *testing.T) {
	f := &mockFetcher{}
	r := New(f, mapLookup{}, WithLogger(logging.Discard()))
	ctx := context.Background()

	v, err := r.Thing(ctx, Request{Value: float64(123), Type: model.OptionUser, GuildID: "g"}, Auto)
	require.NoError(t, err)
	require.Equal(t, float64(123), v)

	v, err = r.Thing(ctx, Request{Value: float64(123), Type: model.OptionUser}, Raw)
	require.NoError(t, err)
	require.Equal(t, float64(123), v)

	_, err = r.Thing(ctx, Request{Value: float64(123), Type: model.OptionUser}, Fetch)
	require.Error(t, err)
	f.AssertNotCalled(t, "FetchUser", mock.Anything, mock.Anything)
}

func TestAutoFallsBackToFetch(t *testing.T) {
	f := &mockFetcher{}
	f.On("FetchChannel", mock.Anything, "c1").Return(&discordgo.Channel{ID: "c1", Name: "fetched"}, nil).Once()
	r := New(f, mapLookup{}, WithLogger(logging.Discard()))

	v, err := r.Thing(context.Background(), Request{Value: "c1", Type: model.OptionChannel}, Auto)
	require.NoError(t, err)
	require.Equal(t, "fetched", v.(*discordgo.Channel).Name)
	f.AssertExpectations(t)
}

func TestAutoFallsBackToCacheThenRaw(t *testing.T) {
	f := &mockFetcher{}
	f.On("FetchRole", mock.Anything, "g", "r1").Return(nil, errors.New("403")).Once()
	f.On("FetchRole", mock.Anything, "g", "r2").Return(nil, nil).Once()
	lookup := mapLookup{roles: map[string]*discordgo.Role{"r1": {ID: "r1", Name: "cached"}}}
	r := New(f, lookup, WithLogger(logging.Discard()))
	ctx := context.Background()

	v, err := r.Thing(ctx, Request{Value: "r1", Type: model.OptionRole, GuildID: "g"}, Auto)
	require.NoError(t, err)
	require.Equal(t, "cached", v.(*discordgo.Role).Name)

	v, err = r.Thing(ctx, Request{Value: "r2", Type: model.OptionRole, GuildID: "g"}, Auto)
	require.NoError(t, err)
	require.Equal(t, "r2", v)
	f.AssertExpectations(t)
}

func TestExplicitMethodDoesNotFallBack(t *testing.T) {
	f := &mockFetcher{}
	r := New(f, mapLookup{}, WithLogger(logging.Discard()))

	_, err := r.Thing(context.Background(), Request{Value: "c1", Type: model.OptionChannel}, Cache)
	require.Error(t, err)
	f.AssertNotCalled(t, "FetchChannel", mock.Anything, mock.Anything)
}

func TestMentionablePrefersMemberThenRole(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	res := memberPayload()
	res.Roles = map[string]*discordgo.Role{"r": {ID: "r"}}

	v, err := r.Thing(context.Background(), Request{Value: "r", Type: model.OptionMentionable, GuildID: "g", Resolved: res}, Resolve)
	require.NoError(t, err)
	require.IsType(t, &discordgo.Role{}, v)

	v, err = r.Thing(context.Background(), Request{Value: "123", Type: model.OptionMentionable, GuildID: "g", Resolved: res}, Resolve)
	require.NoError(t, err)
	require.IsType(t, &discordgo.Member{}, v)
}

func TestMessageOptionFetchesByChannel(t *testing.T) {
	f := &mockFetcher{}
	f.On("FetchMessage", mock.Anything, "chan", "m1").Return(&discordgo.Message{ID: "m1"}, nil).Once()
	r := New(f, nil, WithLogger(logging.Discard()))

	v, err := r.Thing(context.Background(), Request{Value: "m1", Type: model.OptionMessage, ChannelID: "chan"}, Fetch)
	require.NoError(t, err)
	require.Equal(t, "m1", v.(*discordgo.Message).ID)
}

func TestOptionsRequiredNilIsParseError(t *testing.T) {
	r := New(nil, mapLookup{}, WithLogger(logging.Discard()))
	who, err := model.NewOption(model.OptionUser, "who", "target", model.Required())
	require.NoError(t, err)

	given := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "who", Type: discordgo.ApplicationCommandOptionUser, Value: "999"},
	}
	_, err = r.Options(context.Background(), []*model.Option{who}, given, Request{GuildID: "g"}, Cache)
	require.ErrorIs(t, err, ErrCouldNotParse)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "who", pe.Option)
	require.Equal(t, model.OptionUser, pe.Type)
	require.Equal(t, Cache, pe.Method)
}

func TestOptionsSkipsUnparsedOptional(t *testing.T) {
	r := New(nil, mapLookup{}, WithLogger(logging.Discard()))
	count, err := model.NewOption(model.OptionInteger, "count", "how many")
	require.NoError(t, err)
	where, err := model.NewOption(model.OptionChannel, "where", "where")
	require.NoError(t, err)

	given := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(3)},
		{Name: "where", Type: discordgo.ApplicationCommandOptionChannel, Value: "c"},
	}
	out, err := r.Options(context.Background(), []*model.Option{count, where}, given, Request{}, Cache)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"count": int64(3)}, out)
}

func TestOptionsUsesDeclaredMessageType(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	msg, err := model.NewOption(model.OptionMessage, "msg", "a message", model.Required())
	require.NoError(t, err)

	given := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "msg", Type: discordgo.ApplicationCommandOptionString, Value: "m1"},
	}
	res := &discordgo.ApplicationCommandInteractionDataResolved{Messages: map[string]*discordgo.Message{"m1": {ID: "m1"}}}
	out, err := r.Options(context.Background(), []*model.Option{msg}, given, Request{Resolved: res}, Auto)
	require.NoError(t, err)
	require.IsType(t, &discordgo.Message{}, out["msg"])
}

func TestTarget(t *testing.T) {
	r := New(nil, nil, WithLogger(logging.Discard()))
	v, err := r.Target(context.Background(), model.UserCommand, "123", Request{GuildID: "g", Resolved: memberPayload()}, Resolve)
	require.NoError(t, err)
	require.IsType(t, &discordgo.Member{}, v)

	_, err = r.Target(context.Background(), model.MessageCommand, "nope", Request{Resolved: memberPayload()}, Resolve)
	require.ErrorIs(t, err, ErrCouldNotParse)

	_, err = r.Target(context.Background(), model.ChatInput, "x", Request{}, Raw)
	require.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" FETCH ")
	require.NoError(t, err)
	require.Equal(t, Fetch, m)
	m, err = ParseMethod("")
	require.NoError(t, err)
	require.Equal(t, Auto, m)
	_, err = ParseMethod("psychic")
	require.Error(t, err)
}
