package resolve

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

// Fetcher retrieves entities over REST.
type Fetcher interface {
	FetchMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	FetchUser(ctx context.Context, userID string) (*discordgo.User, error)
	FetchChannel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	FetchRole(ctx context.Context, guildID, roleID string) (*discordgo.Role, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)
}

// Lookup reads entities already known locally.
type Lookup interface {
	CachedMember(guildID, userID string) (*discordgo.Member, bool)
	CachedUser(userID string) (*discordgo.User, bool)
	CachedChannel(channelID string) (*discordgo.Channel, bool)
	CachedRole(guildID, roleID string) (*discordgo.Role, bool)
	CachedMessage(channelID, messageID string) (*discordgo.Message, bool)
}

// Request describes one value to resolve.
type Request struct {
	Name      string
	Value     any
	Type      model.OptionType
	GuildID   string
	ChannelID string
	Resolved  *discordgo.ApplicationCommandInteractionDataResolved
}

// Resolver turns raw option values into typed values.
type Resolver struct {
	fetcher Fetcher
	lookup  Lookup
	method  Method
	log     *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMethod sets the method reported by Method, used by callers as their default.
func WithMethod(m Method) Option { return func(r *Resolver) { r.method = m } }

func WithLogger(l *logging.Logger) Option { return func(r *Resolver) { r.log = l } }

// New creates a resolver. fetcher and lookup may be nil, in which case the
// corresponding methods always fail over to the next step.
func New(fetcher Fetcher, lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{fetcher: fetcher, lookup: lookup}
	for _, o := range opts {
		o(r)
	}
	r.log = logging.OrGlobal(r.log).WithField("component", "resolve")
	return r
}

// Method returns the resolver's default method.
func (r *Resolver) Method() Method { return r.method }

// Thing resolves one value with the given method. Scalars come back as
// received whatever the method, except that integers decoded from JSON are
// converted to int64. Under Auto every failing step is logged and the next
// one is tried, ending with the raw value as received.
func (r *Resolver) Thing(ctx context.Context, req Request, m Method) (any, error) {
	if req.Type.Scalar() {
		return scalar(req.Type, req.Value)
	}
	if req.Type == model.OptionAttachment {
		return r.attachment(req)
	}

	if m != Auto {
		return r.step(ctx, req, m)
	}
	for _, step := range []Method{Resolve, Fetch, Cache} {
		v, err := r.step(ctx, req, step)
		if err == nil && v != nil {
			return v, nil
		}
		if err == nil {
			err = errNotFound
		}
		r.log.WithFields(map[string]any{
			"option": req.Name,
			"type":   req.Type.String(),
			"method": step.String(),
			"value":  fmt.Sprint(req.Value),
			"error":  err.Error(),
		}).Warn("Option resolution failed, trying next method")
	}
	return r.step(ctx, req, Raw)
}

func (r *Resolver) step(ctx context.Context, req Request, m Method) (any, error) {
	if m == Raw {
		return req.Value, nil
	}
	id, ok := req.Value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a snowflake string, got %T", req.Value)
	}
	switch m {
	case Resolve:
		return r.fromResolved(req, id)
	case Fetch:
		if r.fetcher == nil {
			return nil, errors.New("no fetcher configured")
		}
		return r.fetch(ctx, req, id)
	case Cache:
		if r.lookup == nil {
			return nil, errNotCached
		}
		return r.cached(req, id)
	}
	return nil, fmt.Errorf("unknown parse method %s", m)
}

func (r *Resolver) fromResolved(req Request, id string) (any, error) {
	res := req.Resolved
	if res == nil {
		return nil, errNotResolved
	}
	switch req.Type {
	case model.OptionUser:
		if v := resolvedUser(req, id); v != nil {
			return v, nil
		}
	case model.OptionChannel:
		if c, ok := res.Channels[id]; ok && c != nil {
			return c, nil
		}
	case model.OptionRole:
		if role, ok := res.Roles[id]; ok && role != nil {
			return role, nil
		}
	case model.OptionMentionable:
		if v := resolvedUser(req, id); v != nil {
			return v, nil
		}
		if role, ok := res.Roles[id]; ok && role != nil {
			return role, nil
		}
	case model.OptionMessage:
		if msg, ok := res.Messages[id]; ok && msg != nil {
			return msg, nil
		}
	}
	return nil, errNotResolved
}

// resolvedUser prefers the guild member, completed with its user, over the bare user.
func resolvedUser(req Request, id string) any {
	res := req.Resolved
	user := res.Users[id]
	if m, ok := res.Members[id]; ok && m != nil && req.GuildID != "" {
		member := *m
		if member.User == nil {
			member.User = user
		}
		if member.GuildID == "" {
			member.GuildID = req.GuildID
		}
		return &member
	}
	if user != nil {
		return user
	}
	return nil
}

func (r *Resolver) fetch(ctx context.Context, req Request, id string) (any, error) {
	switch req.Type {
	case model.OptionUser:
		if req.GuildID != "" {
			return nonNil(r.fetcher.FetchMember(ctx, req.GuildID, id))
		}
		return nonNil(r.fetcher.FetchUser(ctx, id))
	case model.OptionChannel:
		return nonNil(r.fetcher.FetchChannel(ctx, id))
	case model.OptionRole:
		if req.GuildID == "" {
			return nil, errNoGuild
		}
		return nonNil(r.fetcher.FetchRole(ctx, req.GuildID, id))
	case model.OptionMentionable:
		if req.GuildID == "" {
			return nonNil(r.fetcher.FetchUser(ctx, id))
		}
		if m, err := r.fetcher.FetchMember(ctx, req.GuildID, id); err == nil && m != nil {
			return m, nil
		}
		return nonNil(r.fetcher.FetchRole(ctx, req.GuildID, id))
	case model.OptionMessage:
		return nonNil(r.fetcher.FetchMessage(ctx, req.ChannelID, id))
	}
	return nil, fmt.Errorf("cannot fetch option type %s", req.Type)
}

func (r *Resolver) cached(req Request, id string) (any, error) {
	var (
		v  any
		ok bool
	)
	switch req.Type {
	case model.OptionUser:
		v, ok = r.cachedUser(req.GuildID, id)
	case model.OptionChannel:
		v, ok = r.lookup.CachedChannel(id)
	case model.OptionRole:
		v, ok = r.lookup.CachedRole(req.GuildID, id)
	case model.OptionMentionable:
		if v, ok = r.cachedUser(req.GuildID, id); !ok {
			v, ok = r.lookup.CachedRole(req.GuildID, id)
		}
	case model.OptionMessage:
		v, ok = r.lookup.CachedMessage(req.ChannelID, id)
	}
	if !ok {
		return nil, errNotCached
	}
	return v, nil
}

func (r *Resolver) cachedUser(guildID, id string) (any, bool) {
	if guildID != "" {
		if m, ok := r.lookup.CachedMember(guildID, id); ok {
			return m, true
		}
	}
	if u, ok := r.lookup.CachedUser(id); ok {
		return u, true
	}
	return nil, false
}

func (r *Resolver) attachment(req Request) (any, error) {
	id, _ := req.Value.(string)
	if req.Resolved != nil {
		if a, ok := req.Resolved.Attachments[id]; ok && a != nil {
			return a, nil
		}
	}
	return req.Value, nil
}

// nonNil converts a typed nil result into an error so typed nils never leak out as any.
func nonNil[T any](v *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errNotFound
	}
	return v, nil
}

// scalar returns v unchanged, apart from whole JSON numbers of INTEGER
// options which become int64.
func scalar(t model.OptionType, v any) (any, error) {
	if n, ok := v.(float64); ok && t == model.OptionInteger && n == math.Trunc(n) {
		return int64(n), nil
	}
	return v, nil
}

// Options resolves the leaf options of an invocation into a name → value map.
// declared supplies the declared types (Message options travel as strings)
// and which options are required; a required option that resolves to nothing
// fails with a *ParseError. Optional options that cannot be resolved are left
// out and logged.
func (r *Resolver) Options(ctx context.Context, declared []*model.Option, given []*discordgo.ApplicationCommandInteractionDataOption, base Request, m Method) (map[string]any, error) {
	byName := lo.KeyBy(lo.Compact(declared), func(o *model.Option) string { return o.Name })

	out := make(map[string]any, len(given))
	for _, opt := range given {
		if opt == nil {
			continue
		}
		typ := model.OptionType(opt.Type)
		if typ.Nested() {
			continue
		}
		required := false
		if d, ok := byName[opt.Name]; ok {
			typ = d.Type
			required = d.Required
		}

		req := base
		req.Name = opt.Name
		req.Value = opt.Value
		req.Type = typ

		v, err := r.Thing(ctx, req, m)
		if err != nil || v == nil {
			if required {
				return nil, &ParseError{Option: opt.Name, Value: opt.Value, Type: typ, Method: m, Err: err}
			}
			fields := map[string]any{"option": opt.Name, "method": m.String()}
			if err != nil {
				fields["error"] = err.Error()
			}
			r.log.WithFields(fields).Warn("Optional option could not be parsed, skipping")
			continue
		}
		out[opt.Name] = v
	}
	return out, nil
}

// Target resolves the target of a context menu command: a member/user for
// user commands, the message for message commands.
func (r *Resolver) Target(ctx context.Context, t model.CommandType, targetID string, base Request, m Method) (any, error) {
	req := base
	req.Name = "target"
	req.Value = targetID
	switch t {
	case model.UserCommand:
		req.Type = model.OptionUser
	case model.MessageCommand:
		req.Type = model.OptionMessage
	default:
		return nil, fmt.Errorf("command type %s has no target", t)
	}
	v, err := r.Thing(ctx, req, m)
	if err != nil || v == nil {
		return nil, &ParseError{Option: req.Name, Value: targetID, Type: req.Type, Method: m, Err: err}
	}
	return v, nil
}
