// Package discordui wires slash commands, context menus, autocomplete and
// message components onto a discordgo session.
//
// One UI is built per bot session. Commands are declared on it, Start syncs
// them with the command registry and begins answering interactions.
package discordui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/config"
	"github.com/small-frappuccino/discordui/pkg/discord/cache"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/core"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/remote"
	"github.com/small-frappuccino/discordui/pkg/discord/components"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/small-frappuccino/discordui/pkg/discord/resolve"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/small-frappuccino/discordui/pkg/service"
	"github.com/small-frappuccino/discordui/pkg/storage"
	"github.com/small-frappuccino/discordui/pkg/task"
	"golang.org/x/time/rate"
)

// TaskSync is the task type that runs a full command sync.
const TaskSync = "commands.sync"

var ErrNoApplicationID = errors.New("discordui: application id unknown; set it in the config or open the session first")

// UI owns the command cache, router, component listeners and entity cache of
// one bot session.
type UI struct {
	cfg     config.Config
	session *discordgo.Session
	remote  remote.Session
	store   *storage.Store
	log     *logging.Logger

	Entities   *cache.Entities
	Resolver   *resolve.Resolver
	Components *components.Registry
	Commands   *core.Cache
	Router     *core.Router
	Tasks      *task.Router

	services *service.Manager
	removers []func()
}

// Option configures a UI.
type Option func(*UI)

// WithStore persists registry ids so interactions can be routed by id right
// after a restart.
func WithStore(s *storage.Store) Option { return func(u *UI) { u.store = s } }

func WithLogger(l *logging.Logger) Option { return func(u *UI) { u.log = l } }

// WithRemote sends command registry calls through s instead of the session.
func WithRemote(s remote.Session) Option { return func(u *UI) { u.remote = s } }

// New builds a UI on s. The application id comes from cfg, or from the bot
// user once the session is open.
func New(s *discordgo.Session, cfg config.Config, opts ...Option) (*UI, error) {
	if s == nil {
		return nil, errors.New("discordui: nil session")
	}
	u := &UI{cfg: cfg, session: s}
	for _, o := range opts {
		o(u)
	}
	u.log = logging.OrGlobal(u.log)

	appID := cfg.ApplicationID
	if appID == "" && s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		return nil, ErrNoApplicationID
	}
	method, err := resolve.ParseMethod(cfg.ParseMethod)
	if err != nil {
		return nil, err
	}

	var registry remote.Session = s
	if u.remote != nil {
		registry = u.remote
	}
	clientOpts := []remote.Option{remote.WithLogger(u.log.WithField("component", "command_client"))}
	if cfg.SyncRate > 0 {
		clientOpts = append(clientOpts, remote.WithLimiter(rate.NewLimiter(rate.Limit(cfg.SyncRate), max(cfg.SyncBurst, 1))))
	}
	client := remote.NewClient(registry, appID, clientOpts...)

	u.Entities = cache.NewEntities(s, s.State, cache.Config{Size: cfg.CacheSize, TTL: cfg.CacheTTL})
	u.Resolver = resolve.New(u.Entities, u.Entities,
		resolve.WithMethod(method),
		resolve.WithLogger(u.log.WithField("component", "resolver")),
	)
	u.Components = components.NewRegistry(u.log.WithField("component", "components"))

	cacheOpts := []core.CacheOption{core.WithLogger(u.log)}
	if u.store != nil {
		cacheOpts = append(cacheOpts, core.WithStore(u.store))
	}
	u.Commands = core.NewCache(client, cacheOpts...)

	tcfg := task.Defaults()
	tcfg.Logger = u.log.WithField("component", "tasks")
	u.Tasks = task.NewRouter(tcfg)
	interaction.RegisterTasks(u.Tasks)
	u.Tasks.RegisterHandler(TaskSync, func(ctx context.Context, _ any) error {
		_, err := u.Sync(ctx)
		return err
	})

	u.Router = core.NewRouter(u.Commands, u.Resolver, s,
		core.WithComponents(u.Components),
		core.WithScheduler(u.Tasks),
		core.WithRouterConfig(core.RouterConfig{
			AutoDefer:       cfg.AutoDefer,
			AutoDeferHidden: cfg.AutoDeferHidden,
			WaitSync:        cfg.WaitSync,
			SlowThreshold:   cfg.SlowHandler,
		}),
		core.WithRouterLogger(u.log),
	)

	u.services = service.NewManager(u.log)
	for _, svc := range []service.Service{
		service.NewFunc("tasks", nil, nil, u.stopTasks),
		service.NewFunc("entities", nil, u.startEntities, nil),
		service.NewFunc("commands", []string{"tasks", "entities"}, u.startCommands, nil),
	} {
		if err := u.services.Register(svc); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Config returns the configuration the UI was built with.
func (u *UI) Config() config.Config { return u.cfg }

// Services reports the lifecycle state of the UI's internal services.
func (u *UI) Services() []service.Info { return u.services.Services() }

// Start restores persisted command ids, installs the gateway handlers and
// queues the first sync. Commands can still be declared afterwards; call
// RequestSync to push them.
func (u *UI) Start(ctx context.Context) error {
	if err := u.services.StartAll(ctx); err != nil {
		return fmt.Errorf("start discordui: %w", err)
	}
	return nil
}

// Close removes the gateway handlers and stops background work.
func (u *UI) Close(ctx context.Context) error {
	for _, remove := range u.removers {
		remove()
	}
	u.removers = nil
	err := u.services.StopAll(ctx)
	// the router exists from New on, even if Start never ran
	u.Tasks.Close()
	return err
}

func (u *UI) stopTasks(context.Context) error {
	u.Tasks.Close()
	return nil
}

func (u *UI) startEntities(context.Context) error {
	u.removers = append(u.removers, u.Entities.RegisterInvalidationHandlers(u.session))
	return nil
}

func (u *UI) startCommands(ctx context.Context) error {
	if _, err := u.Commands.Restore(ctx); err != nil {
		u.log.WithError(err).Warn("Could not restore command ids")
	}
	u.removers = append(u.removers,
		u.session.AddHandler(u.Router.HandleInteraction),
		u.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
			if err := u.RequestSync(context.Background()); err != nil {
				u.log.WithError(err).Debug("Sync on ready not queued")
			}
		}),
	)
	return u.RequestSync(ctx)
}

// RequestSync queues a background sync. Queued syncs run one after another;
// failed runs are retried with backoff. A request made while another sync is
// still waiting in the queue is folded into it.
func (u *UI) RequestSync(ctx context.Context) error {
	err := u.Tasks.Dispatch(ctx, task.Task{
		Type: TaskSync,
		Options: task.Options{
			GroupKey:       "commands",
			IdempotencyKey: TaskSync,
			ReleaseOnStart: true,
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
		},
	})
	if errors.Is(err, task.ErrDuplicateTask) {
		return nil
	}
	return err
}

// Sync pushes the declared commands to the registry now. Guilds the bot is
// in are taken from the gateway state for unused-command cleanup.
func (u *UI) Sync(ctx context.Context) (*core.SyncReport, error) {
	return u.Commands.Sync(ctx, core.SyncOptions{
		DeleteUnused: u.cfg.DeleteUnused,
		BotGuilds:    u.botGuilds(),
	})
}

func (u *UI) botGuilds() []string {
	st := u.session.State
	if st == nil {
		return nil
	}
	st.RLock()
	defer st.RUnlock()
	out := make([]string, 0, len(st.Guilds))
	for _, g := range st.Guilds {
		out = append(out, g.ID)
	}
	return out
}
