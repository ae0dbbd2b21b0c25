package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/components"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/small-frappuccino/discordui/pkg/discord/perf"
	"github.com/small-frappuccino/discordui/pkg/discord/resolve"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

const (
	unknownCommandMessage = "Command not found"
	genericErrorMessage   = "An error occurred while executing the command"
)

// RouterConfig tunes how commands are answered.
type RouterConfig struct {
	// AutoDefer acknowledges every command before its options are resolved,
	// giving slow handlers the full token lifetime.
	AutoDefer       bool
	AutoDeferHidden bool
	// WaitSync holds invocations until the first sync has completed.
	WaitSync bool
	// SlowThreshold is how long a handler may run before a warning is logged.
	// Zero disables the warning.
	SlowThreshold time.Duration
}

// Router dispatches inbound interactions to command handlers, autocomplete
// handlers and component listeners.
type Router struct {
	cache      *Cache
	resolver   *resolve.Resolver
	session    interaction.Session
	components *components.Registry
	scheduler  interaction.Scheduler
	cfg        RouterConfig
	log        *logging.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

func WithComponents(reg *components.Registry) RouterOption {
	return func(r *Router) { r.components = reg }
}

// WithScheduler runs delayed response deletions as tasks.
func WithScheduler(s interaction.Scheduler) RouterOption {
	return func(r *Router) { r.scheduler = s }
}

func WithRouterConfig(cfg RouterConfig) RouterOption {
	return func(r *Router) { r.cfg = cfg }
}

func WithRouterLogger(l *logging.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// NewRouter creates a router over cache that resolves options with resolver
// and answers through session.
func NewRouter(cache *Cache, resolver *resolve.Resolver, session interaction.Session, opts ...RouterOption) *Router {
	r := &Router{cache: cache, resolver: resolver, session: session}
	for _, o := range opts {
		o(r)
	}
	r.log = logging.OrGlobal(r.log).WithField("component", "interaction_router")
	return r
}

// HandleInteraction is the discordgo event handler.
func (r *Router) HandleInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interaction.TokenLifetime)
	defer cancel()
	// failures are logged where they happen
	_ = r.Handle(ctx, ic.Interaction)
}

// Handle routes one interaction and returns the error that ended it, after it
// has been reported to the user where possible.
func (r *Router) Handle(ctx context.Context, raw *discordgo.Interaction) error {
	ev, err := Classify(raw)
	if err != nil {
		r.log.WithError(err).Debug("Ignoring interaction")
		return err
	}
	opts := []interaction.Option{interaction.WithLogger(r.log)}
	if r.scheduler != nil {
		opts = append(opts, interaction.WithScheduler(r.scheduler))
	}
	i, err := interaction.New(r.session, raw, opts...)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case PingEvent:
		return i.Pong(ctx)
	case CommandEvent:
		return r.command(ctx, i, e)
	case AutocompleteEvent:
		return r.autocomplete(ctx, i, e)
	case ComponentEvent:
		return r.component(ctx, i)
	default:
		return fmt.Errorf("route %T: %w", ev, interaction.ErrNotSupported)
	}
}

// lookup prefers the registry id, then the name in the invoking guild, then
// the global name.
func (r *Router) lookup(e CommandEvent, guildID string) (*Entry, string, bool) {
	if e.ID != "" {
		if entry, scope, ok := r.cache.Lookup(e.ID, e.Path[1:]); ok {
			return entry, scope, true
		}
	}
	scopes := []string{model.GlobalScope}
	if guildID != "" {
		scopes = []string{guildID, model.GlobalScope}
	}
	for _, scope := range scopes {
		if entry, ok := r.cache.Find(scope, e.Type, e.Path...); ok {
			return entry, scope, true
		}
	}
	return nil, "", false
}

func (r *Router) logFor(i *interaction.Interaction, e CommandEvent) *logging.Logger {
	fields := map[string]any{
		"command": strings.Join(e.Path, " "),
		"guildID": i.GuildID(),
	}
	if u := i.User(); u != nil {
		fields["userID"] = u.ID
	}
	return r.log.WithFields(fields)
}

func (r *Router) command(ctx context.Context, i *interaction.Interaction, e CommandEvent) error {
	log := r.logFor(i, e)

	if r.cfg.WaitSync {
		if err := r.cache.WaitSynced(ctx); err != nil {
			return fmt.Errorf("wait for command sync: %w", err)
		}
	}

	entry, scope, ok := r.lookup(e, i.GuildID())
	if !ok {
		log.Warn("Received unknown command")
		if _, err := i.Respond(ctx, interaction.Response{Content: unknownCommandMessage, Hidden: true}); err != nil {
			log.WithError(err).Warn("Failed to answer unknown command")
		}
		return fmt.Errorf("%w: %s", ErrUnknownCommand, strings.Join(e.Path, " "))
	}

	if r.cfg.AutoDefer {
		if err := i.Defer(ctx, r.cfg.AutoDeferHidden); err != nil {
			return err
		}
	}

	base := resolve.Request{GuildID: i.GuildID(), ChannelID: i.ChannelID(), Resolved: e.Resolved}
	method := r.resolver.Method()
	options, err := r.resolver.Options(ctx, entry.Command.Options(), e.Options, base, method)
	if err != nil {
		r.fail(ctx, i, log, err)
		return err
	}
	var target any
	if e.Type != model.ChatInput {
		if target, err = r.resolver.Target(ctx, e.Type, e.TargetID, base, method); err != nil {
			r.fail(ctx, i, log, err)
			return err
		}
	}

	c := &Context{
		Interaction: i,
		ctx:         ctx,
		Command:     entry.Command,
		Scope:       scope,
		Options:     options,
		Target:      target,
		Logger:      log,
	}
	done := perf.Start(log, r.cfg.SlowThreshold, "command "+strings.Join(e.Path, " "))
	err = entry.Handler(c)
	elapsed := done()
	if err != nil {
		r.fail(ctx, i, log, err)
		return err
	}
	log.WithField("duration", elapsed.String()).Debug("Command executed")
	return nil
}

// fail reports err to the invoking user. Handler-provided CommandErrors are
// shown as written; parse failures name the option; anything else gets a
// generic hidden message.
func (r *Router) fail(ctx context.Context, i *interaction.Interaction, log *logging.Logger, err error) {
	var (
		cmdErr   *CommandError
		parseErr *resolve.ParseError
		resp     interaction.Response
	)
	switch {
	case errors.As(err, &cmdErr):
		log.WithField("code", cmdErr.Code).Info("Command returned a user error")
		resp = interaction.Response{Content: cmdErr.Message, Hidden: cmdErr.Ephemeral}
	case errors.As(err, &parseErr):
		log.WithError(err).Warn("Could not parse command options")
		resp = interaction.Response{Content: fmt.Sprintf("Could not parse option `%s`.", parseErr.Option), Hidden: true}
	default:
		log.WithError(err).Error("Command failed")
		resp = interaction.Response{Content: genericErrorMessage, Hidden: true}
	}
	if _, rerr := i.Respond(ctx, resp); rerr != nil {
		log.WithError(rerr).Warn("Failed to report command error")
	}
}

func (r *Router) autocomplete(ctx context.Context, i *interaction.Interaction, e AutocompleteEvent) error {
	log := r.logFor(i, e.CommandEvent).WithField("option", e.Focused.Name)

	entry, _, ok := r.lookup(e.CommandEvent, i.GuildID())
	if !ok {
		log.Warn("Autocomplete for unknown command")
		if err := i.Choices(ctx, nil); err != nil {
			log.WithError(err).Warn("Failed to answer autocomplete")
		}
		return fmt.Errorf("%w: %s", ErrUnknownCommand, strings.Join(e.Path, " "))
	}
	if entry.Autocomplete == nil {
		return i.Choices(ctx, nil)
	}

	ac := &AutocompleteContext{
		Interaction: i,
		ctx:         ctx,
		Command:     entry.Command,
		Focused:     e.Focused.Name,
		Value:       e.Focused.Value,
		Options:     e.Options,
		Logger:      log,
	}
	done := perf.Start(log, r.cfg.SlowThreshold, "autocomplete "+strings.Join(e.Path, " "))
	choices, err := entry.Autocomplete(ac)
	done()
	if err != nil {
		log.WithError(err).Error("Autocomplete handler failed")
		if cerr := i.Choices(ctx, nil); cerr != nil {
			log.WithError(cerr).Warn("Failed to answer autocomplete")
		}
		return err
	}
	return i.Choices(ctx, choices)
}

func (r *Router) component(ctx context.Context, i *interaction.Interaction) error {
	if r.components == nil {
		r.log.Debug("Component interaction without a listener registry")
		return nil
	}
	ev, err := components.NewEvent(i)
	if err != nil {
		return err
	}
	matched, err := r.components.Dispatch(ctx, ev)
	if err != nil {
		r.log.WithError(err).WithField("customID", ev.CustomID).Error("Component listener failed")
		return err
	}
	if !matched {
		r.log.WithField("customID", ev.CustomID).Debug("No listener for component")
	}
	return nil
}
