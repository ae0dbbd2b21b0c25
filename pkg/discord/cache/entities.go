package cache

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/small-frappuccino/discordui/pkg/errutil"
)

// Session is the REST surface used on cache misses.
type Session interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Session = (*discordgo.Session)(nil)

// Config sizes the per-kind LRUs.
type Config struct {
	Size int
	TTL  time.Duration
}

// Entities caches users, members, channels, roles and messages seen by the bot.
// Reads go LRU, then gateway state; REST is only used by the Fetch methods,
// which write the result through to the LRU.
type Entities struct {
	session Session
	state   *discordgo.State

	members  *expirable.LRU[string, *discordgo.Member]
	users    *expirable.LRU[string, *discordgo.User]
	channels *expirable.LRU[string, *discordgo.Channel]
	roles    *expirable.LRU[string, *discordgo.Role]
	messages *expirable.LRU[string, *discordgo.Message]
}

// NewEntities creates the cache. state may be nil.
func NewEntities(session Session, state *discordgo.State, cfg Config) *Entities {
	if cfg.Size <= 0 {
		cfg.Size = 2048
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &Entities{
		session:  session,
		state:    state,
		members:  expirable.NewLRU[string, *discordgo.Member](cfg.Size, nil, cfg.TTL),
		users:    expirable.NewLRU[string, *discordgo.User](cfg.Size, nil, cfg.TTL),
		channels: expirable.NewLRU[string, *discordgo.Channel](cfg.Size, nil, cfg.TTL),
		roles:    expirable.NewLRU[string, *discordgo.Role](cfg.Size, nil, cfg.TTL),
		messages: expirable.NewLRU[string, *discordgo.Message](cfg.Size, nil, cfg.TTL),
	}
}

func pair(a, b string) string { return a + ":" + b }

// fromState copies a value owned by the gateway state under its read lock;
// the gateway updates those values in place.
func fromState[T any](s *discordgo.State, v *T) *T {
	s.RLock()
	defer s.RUnlock()
	cp := *v
	return &cp
}

// CachedMember returns a member without touching REST.
func (e *Entities) CachedMember(guildID, userID string) (*discordgo.Member, bool) {
	if m, ok := e.members.Get(pair(guildID, userID)); ok {
		return m, true
	}
	if e.state != nil {
		if m, err := e.state.Member(guildID, userID); err == nil && m != nil {
			m = fromState(e.state, m)
			e.PutMember(guildID, m)
			return m, true
		}
	}
	return nil, false
}

// CachedUser returns a user without touching REST. Members cached in any
// guild do not count; users are remembered when resolved or fetched.
func (e *Entities) CachedUser(userID string) (*discordgo.User, bool) {
	if u, ok := e.users.Get(userID); ok {
		return u, true
	}
	if e.state != nil && e.state.User != nil && e.state.User.ID == userID {
		return e.state.User, true
	}
	return nil, false
}

func (e *Entities) CachedChannel(channelID string) (*discordgo.Channel, bool) {
	if c, ok := e.channels.Get(channelID); ok {
		return c, true
	}
	if e.state != nil {
		if c, err := e.state.Channel(channelID); err == nil && c != nil {
			c = fromState(e.state, c)
			e.channels.Add(channelID, c)
			return c, true
		}
	}
	return nil, false
}

func (e *Entities) CachedRole(guildID, roleID string) (*discordgo.Role, bool) {
	if r, ok := e.roles.Get(pair(guildID, roleID)); ok {
		return r, true
	}
	if e.state != nil {
		if r, err := e.state.Role(guildID, roleID); err == nil && r != nil {
			r = fromState(e.state, r)
			e.roles.Add(pair(guildID, roleID), r)
			return r, true
		}
	}
	return nil, false
}

func (e *Entities) CachedMessage(channelID, messageID string) (*discordgo.Message, bool) {
	if m, ok := e.messages.Get(pair(channelID, messageID)); ok {
		return m, true
	}
	if e.state != nil {
		if m, err := e.state.Message(channelID, messageID); err == nil && m != nil {
			m = fromState(e.state, m)
			e.messages.Add(pair(channelID, messageID), m)
			return m, true
		}
	}
	return nil, false
}

// FetchMember retrieves a member over REST and caches it.
func (e *Entities) FetchMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	var m *discordgo.Member
	err := errutil.HandleDiscordError("fetch_member", func() error {
		var err error
		m, err = e.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	if m != nil && m.GuildID == "" {
		m.GuildID = guildID
	}
	e.PutMember(guildID, m)
	return m, nil
}

func (e *Entities) FetchUser(ctx context.Context, userID string) (*discordgo.User, error) {
	var u *discordgo.User
	err := errutil.HandleDiscordError("fetch_user", func() error {
		var err error
		u, err = e.session.User(userID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	e.PutUser(u)
	return u, nil
}

func (e *Entities) FetchChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	var c *discordgo.Channel
	err := errutil.HandleDiscordError("fetch_channel", func() error {
		var err error
		c, err = e.session.Channel(channelID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	e.PutChannel(c)
	return c, nil
}

// FetchRole lists the guild's roles (there is no single-role route) and
// caches all of them. A role missing from the list yields (nil, nil).
func (e *Entities) FetchRole(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	var roles []*discordgo.Role
	err := errutil.HandleDiscordError("fetch_roles", func() error {
		var err error
		roles, err = e.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	var found *discordgo.Role
	for _, r := range roles {
		if r == nil {
			continue
		}
		e.PutRole(guildID, r)
		if r.ID == roleID {
			found = r
		}
	}
	return found, nil
}

func (e *Entities) FetchMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	var m *discordgo.Message
	err := errutil.HandleDiscordError("fetch_message", func() error {
		var err error
		m, err = e.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	e.PutMessage(m)
	return m, nil
}

// PutMember stores a copy of m (and its user). m itself is not modified.
func (e *Entities) PutMember(guildID string, m *discordgo.Member) {
	if m == nil || m.User == nil {
		return
	}
	cp := *m
	if cp.GuildID == "" {
		cp.GuildID = guildID
	}
	e.members.Add(pair(guildID, cp.User.ID), &cp)
	e.users.Add(cp.User.ID, cp.User)
}

func (e *Entities) PutUser(u *discordgo.User) {
	if u != nil && u.ID != "" {
		e.users.Add(u.ID, u)
	}
}

func (e *Entities) PutChannel(c *discordgo.Channel) {
	if c != nil && c.ID != "" {
		e.channels.Add(c.ID, c)
	}
}

func (e *Entities) PutRole(guildID string, r *discordgo.Role) {
	if r != nil && r.ID != "" {
		e.roles.Add(pair(guildID, r.ID), r)
	}
}

func (e *Entities) PutMessage(m *discordgo.Message) {
	if m != nil && m.ID != "" {
		e.messages.Add(pair(m.ChannelID, m.ID), m)
	}
}

// Stats reports the number of live entries per kind.
type Stats struct {
	Members, Users, Channels, Roles, Messages int
}

func (e *Entities) Stats() Stats {
	return Stats{
		Members:  e.members.Len(),
		Users:    e.users.Len(),
		Channels: e.channels.Len(),
		Roles:    e.roles.Len(),
		Messages: e.messages.Len(),
	}
}

// Purge drops every cached entry.
func (e *Entities) Purge() {
	e.members.Purge()
	e.users.Purge()
	e.channels.Purge()
	e.roles.Purge()
	e.messages.Purge()
}

// HandlerAdder is implemented by *discordgo.Session.
type HandlerAdder interface {
	AddHandler(handler interface{}) func()
}

// RegisterInvalidationHandlers keeps the cache consistent with gateway events.
// The returned func removes the handlers.
func (e *Entities) RegisterInvalidationHandlers(s HandlerAdder) func() {
	removers := []func(){
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
			if m.Member != nil && m.User != nil {
				e.members.Remove(pair(m.GuildID, m.User.ID))
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
			if m.Member != nil && m.User != nil {
				e.members.Remove(pair(m.GuildID, m.User.ID))
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, u *discordgo.UserUpdate) {
			if u.User != nil {
				e.users.Remove(u.ID)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) {
			if r.GuildRole != nil && r.Role != nil {
				e.roles.Remove(pair(r.GuildID, r.Role.ID))
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
			e.roles.Remove(pair(r.GuildID, r.RoleID))
		}),
		s.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelUpdate) {
			if c.Channel != nil {
				e.channels.Remove(c.ID)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
			if c.Channel != nil {
				e.channels.Remove(c.ID)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
			if m.Message != nil {
				e.messages.Remove(pair(m.ChannelID, m.ID))
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
			if m.Message != nil {
				e.messages.Remove(pair(m.ChannelID, m.ID))
			}
		}),
	}
	return func() {
		for _, rm := range removers {
			rm()
		}
	}
}
