package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

type stubSession struct {
	calls   map[string]int
	members map[string]*discordgo.Member
	roles   []*discordgo.Role
	err     error
}

func newStubSession() *stubSession {
	return &stubSession{calls: map[string]int{}, members: map[string]*discordgo.Member{}}
}

func (s *stubSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	s.calls["member"]++
	if s.err != nil {
		return nil, s.err
	}
	return s.members[userID], nil
}

func (s *stubSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	s.calls["user"]++
	return &discordgo.User{ID: userID, Username: "fetched"}, s.err
}

func (s *stubSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	s.calls["channel"]++
	return &discordgo.Channel{ID: channelID}, s.err
}

func (s *stubSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	s.calls["roles"]++
	return s.roles, s.err
}

func (s *stubSession) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.calls["message"]++
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, s.err
}

type recordingAdder struct {
	handlers []interface{}
}

func (r *recordingAdder) AddHandler(h interface{}) func() {
	r.handlers = append(r.handlers, h)
	return func() {}
}

func TestCachedMemberUsesStateAndCaches(t *testing.T) {
	state := discordgo.NewState()
	member := &discordgo.Member{User: &discordgo.User{ID: "user"}}
	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "guild", Members: []*discordgo.Member{member}}))

	e := NewEntities(newStubSession(), state, Config{Size: 16, TTL: time.Minute})

	got, ok := e.CachedMember("guild", "user")
	require.True(t, ok)
	require.Equal(t, "user", got.User.ID)
	require.Equal(t, 1, e.Stats().Members)

	u, ok := e.CachedUser("user")
	require.True(t, ok, "member lookups remember the user")
	require.Equal(t, "user", u.ID)
}

func TestCachedMemberCopiesStateValue(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID:      "guild",
		Members: []*discordgo.Member{{User: &discordgo.User{ID: "user"}, Nick: "before"}},
	}))
	e := NewEntities(newStubSession(), state, Config{Size: 16, TTL: time.Minute})

	got, ok := e.CachedMember("guild", "user")
	require.True(t, ok)
	owned, err := state.Member("guild", "user")
	require.NoError(t, err)
	require.NotSame(t, owned, got)

	owned.Nick = "after"
	cached, ok := e.CachedMember("guild", "user")
	require.True(t, ok)
	require.Equal(t, "before", cached.Nick)
}

func TestPutMemberLeavesArgumentUntouched(t *testing.T) {
	e := NewEntities(newStubSession(), nil, Config{})
	m := &discordgo.Member{User: &discordgo.User{ID: "u"}}

	e.PutMember("g", m)
	require.Empty(t, m.GuildID)

	got, ok := e.CachedMember("g", "u")
	require.True(t, ok)
	require.Equal(t, "g", got.GuildID)
	require.NotSame(t, m, got)
}

func TestCachedLookupsMissWithoutREST(t *testing.T) {
	sess := newStubSession()
	e := NewEntities(sess, nil, Config{})

	_, ok := e.CachedMember("g", "u")
	require.False(t, ok)
	_, ok = e.CachedChannel("c")
	require.False(t, ok)
	_, ok = e.CachedRole("g", "r")
	require.False(t, ok)
	_, ok = e.CachedMessage("c", "m")
	require.False(t, ok)
	require.Empty(t, sess.calls)
}

func TestCachedRoleAndChannelFromState(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID:       "g",
		Roles:    []*discordgo.Role{{ID: "r", Name: "mods"}},
		Channels: []*discordgo.Channel{{ID: "c", GuildID: "g", Name: "general"}},
	}))
	e := NewEntities(newStubSession(), state, Config{})

	role, ok := e.CachedRole("g", "r")
	require.True(t, ok)
	require.Equal(t, "mods", role.Name)

	ch, ok := e.CachedChannel("c")
	require.True(t, ok)
	require.Equal(t, "general", ch.Name)
}

func TestFetchWritesThrough(t *testing.T) {
	sess := newStubSession()
	sess.members["u"] = &discordgo.Member{User: &discordgo.User{ID: "u"}}
	e := NewEntities(sess, nil, Config{})
	ctx := context.Background()

	m, err := e.FetchMember(ctx, "g", "u")
	require.NoError(t, err)
	require.Equal(t, "g", m.GuildID)
	cached, ok := e.CachedMember("g", "u")
	require.True(t, ok)
	require.Same(t, m, cached)

	_, err = e.FetchChannel(ctx, "c")
	require.NoError(t, err)
	_, ok = e.CachedChannel("c")
	require.True(t, ok)

	msg, err := e.FetchMessage(ctx, "c", "m")
	require.NoError(t, err)
	require.Equal(t, "m", msg.ID)
	_, ok = e.CachedMessage("c", "m")
	require.True(t, ok)

	require.Equal(t, 1, sess.calls["member"])
}

func TestFetchRoleCachesWholeList(t *testing.T) {
	sess := newStubSession()
	sess.roles = []*discordgo.Role{{ID: "a"}, {ID: "b"}, nil}
	e := NewEntities(sess, nil, Config{})

	role, err := e.FetchRole(context.Background(), "g", "b")
	require.NoError(t, err)
	require.Equal(t, "b", role.ID)
	_, ok := e.CachedRole("g", "a")
	require.True(t, ok)

	missing, err := e.FetchRole(context.Background(), "g", "zzz")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFetchErrorIsReturned(t *testing.T) {
	sess := newStubSession()
	sess.err = errors.New("boom")
	e := NewEntities(sess, nil, Config{})

	_, err := e.FetchMember(context.Background(), "g", "u")
	require.ErrorIs(t, err, sess.err)
	require.Equal(t, 0, e.Stats().Members)
}

func TestInvalidationHandlers(t *testing.T) {
	e := NewEntities(newStubSession(), nil, Config{})
	e.PutChannel(&discordgo.Channel{ID: "c"})
	e.PutMember("g", &discordgo.Member{User: &discordgo.User{ID: "u"}})
	e.PutRole("g", &discordgo.Role{ID: "r"})

	adder := &recordingAdder{}
	e.RegisterInvalidationHandlers(adder)
	require.NotEmpty(t, adder.handlers)

	for _, h := range adder.handlers {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.ChannelDelete):
			fn(nil, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "c"}})
		case func(*discordgo.Session, *discordgo.GuildMemberRemove):
			fn(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "u"}}})
		case func(*discordgo.Session, *discordgo.GuildRoleDelete):
			fn(nil, &discordgo.GuildRoleDelete{GuildID: "g", RoleID: "r"})
		}
	}

	_, ok := e.CachedChannel("c")
	require.False(t, ok)
	_, ok = e.CachedMember("g", "u")
	require.False(t, ok)
	_, ok = e.CachedRole("g", "r")
	require.False(t, ok)
}

func TestPurge(t *testing.T) {
	e := NewEntities(newStubSession(), nil, Config{})
	e.PutUser(&discordgo.User{ID: "u"})
	e.PutMessage(&discordgo.Message{ID: "m", ChannelID: "c"})
	e.Purge()
	require.Equal(t, Stats{}, e.Stats())
}
