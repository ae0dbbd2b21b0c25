package remote

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/errutil"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"golang.org/x/time/rate"
)

// Session is the part of *discordgo.Session the client talks to. Tests swap in a mock.
type Session interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommand(appID, guildID, cmdID string, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandEdit(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
	ApplicationCommandPermissions(appID, guildID, cmdID string, options ...discordgo.RequestOption) (*discordgo.GuildApplicationCommandPermissions, error)
	ApplicationCommandPermissionsEdit(appID, guildID, cmdID string, permissions *discordgo.ApplicationCommandPermissionsList, options ...discordgo.RequestOption) error
}

var _ Session = (*discordgo.Session)(nil)

// Client issues the remote command registry calls. An empty guildID addresses
// the global scope. Mutations are paced by a token bucket so a large sync does
// not burn through the route's rate limit in one burst.
type Client struct {
	session Session
	appID   string
	limiter *rate.Limiter
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter replaces the default mutation limiter. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithLogger(l *logging.Logger) Option { return func(c *Client) { c.logger = l } }

// NewClient creates a client for the given application.
func NewClient(session Session, appID string, opts ...Option) *Client {
	c := &Client{
		session: session,
		appID:   appID,
		limiter: rate.NewLimiter(rate.Limit(4), 2),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = logging.OrGlobal(c.logger).WithField("component", "remote_commands")
	return c
}

// AppID returns the application id the client acts for.
func (c *Client) AppID() string { return c.appID }

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

// ListGlobal returns every global command.
func (c *Client) ListGlobal(ctx context.Context) ([]*discordgo.ApplicationCommand, error) {
	var out []*discordgo.ApplicationCommand
	err := errutil.HandleDiscordError("list_global_commands", func() error {
		var err error
		out, err = c.session.ApplicationCommands(c.appID, "", discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list global commands: %w", err)
	}
	return out, nil
}

// ListGuild returns the commands of one guild. A forbidden response means the bot
// cannot see that guild's command scope; it is logged and reported as no commands.
func (c *Client) ListGuild(ctx context.Context, guildID string) ([]*discordgo.ApplicationCommand, error) {
	var out []*discordgo.ApplicationCommand
	err := errutil.HandleDiscordError("list_guild_commands", func() error {
		var err error
		out, err = c.session.ApplicationCommands(c.appID, guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		if errutil.IsForbidden(err) {
			c.logger.WithField("guildID", guildID).Warn("Missing access to guild commands, treating as empty")
			return nil, nil
		}
		return nil, fmt.Errorf("list commands of guild %s: %w", guildID, err)
	}
	return out, nil
}

// List dispatches to ListGlobal or ListGuild.
func (c *Client) List(ctx context.Context, guildID string) ([]*discordgo.ApplicationCommand, error) {
	if guildID == "" {
		return c.ListGlobal(ctx)
	}
	return c.ListGuild(ctx, guildID)
}

// Get fetches one command by id.
func (c *Client) Get(ctx context.Context, guildID, cmdID string) (*discordgo.ApplicationCommand, error) {
	var out *discordgo.ApplicationCommand
	err := errutil.HandleDiscordError("get_command", func() error {
		var err error
		out, err = c.session.ApplicationCommand(c.appID, guildID, cmdID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get command %s: %w", cmdID, err)
	}
	return out, nil
}

// Create registers a new command and returns it with its assigned id.
func (c *Client) Create(ctx context.Context, guildID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out *discordgo.ApplicationCommand
	err := errutil.HandleDiscordError("create_command", func() error {
		var err error
		out, err = c.session.ApplicationCommandCreate(c.appID, guildID, cmd, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create command %q: %w", cmd.Name, err)
	}
	return out, nil
}

// Edit overwrites an existing command.
func (c *Client) Edit(ctx context.Context, guildID, cmdID string, cmd *discordgo.ApplicationCommand) (*discordgo.ApplicationCommand, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out *discordgo.ApplicationCommand
	err := errutil.HandleDiscordError("edit_command", func() error {
		var err error
		out, err = c.session.ApplicationCommandEdit(c.appID, guildID, cmdID, cmd, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("edit command %q: %w", cmd.Name, err)
	}
	return out, nil
}

// Delete removes a command by id.
func (c *Client) Delete(ctx context.Context, guildID, cmdID string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := errutil.HandleDiscordError("delete_command", func() error {
		return c.session.ApplicationCommandDelete(c.appID, guildID, cmdID, discordgo.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("delete command %s: %w", cmdID, err)
	}
	return nil
}

// Permissions returns the permission entries of a command in a guild. A command
// that never had permissions set answers 404, which is reported as an empty list.
func (c *Client) Permissions(ctx context.Context, guildID, cmdID string) ([]*discordgo.ApplicationCommandPermissions, error) {
	var out *discordgo.GuildApplicationCommandPermissions
	err := errutil.HandleDiscordError("get_command_permissions", func() error {
		var err error
		out, err = c.session.ApplicationCommandPermissions(c.appID, guildID, cmdID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		if errutil.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get permissions of command %s: %w", cmdID, err)
	}
	if out == nil {
		return nil, nil
	}
	return out.Permissions, nil
}

// SetPermissions replaces the permission entries of a command in a guild.
func (c *Client) SetPermissions(ctx context.Context, guildID, cmdID string, perms []*discordgo.ApplicationCommandPermissions) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	list := &discordgo.ApplicationCommandPermissionsList{Permissions: perms}
	err := errutil.HandleDiscordError("set_command_permissions", func() error {
		return c.session.ApplicationCommandPermissionsEdit(c.appID, guildID, cmdID, list, discordgo.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("set permissions of command %s: %w", cmdID, err)
	}
	return nil
}
