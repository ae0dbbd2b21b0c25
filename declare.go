package discordui

import (
	"context"
	"time"

	"github.com/small-frappuccino/discordui/pkg/discord/commands/core"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/components"
)

// register scopes commands declared without guilds to the configured guilds,
// then adds them to the cache.
func (u *UI) register(cmd *model.Command, h core.Handler, ac core.AutocompleteHandler) (*model.Command, error) {
	if cmd.IsGlobal() && len(u.cfg.GuildIDs) > 0 {
		if err := cmd.SetGuildIDs(u.cfg.GuildIDs...); err != nil {
			return nil, err
		}
	}
	if err := u.Commands.Add(core.Entry{Command: cmd, Handler: h, Autocomplete: ac}); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Add registers a prepared entry.
func (u *UI) Add(e core.Entry) error {
	return u.Commands.Add(e)
}

// Slash declares and registers a chat-input command.
func (u *UI) Slash(name, description string, options []*model.Option, h core.Handler, settings ...model.Setting) (*model.Command, error) {
	cmd, err := model.NewSlash(name, description, options, settings...)
	if err != nil {
		return nil, err
	}
	return u.register(cmd, h, nil)
}

// SlashWithAutocomplete is Slash with an autocomplete handler for its
// autocomplete options.
func (u *UI) SlashWithAutocomplete(name, description string, options []*model.Option, h core.Handler, ac core.AutocompleteHandler, settings ...model.Setting) (*model.Command, error) {
	cmd, err := model.NewSlash(name, description, options, settings...)
	if err != nil {
		return nil, err
	}
	return u.register(cmd, h, ac)
}

// Subcommand declares a subcommand under one base name, or under a base and
// group name.
func (u *UI) Subcommand(base []string, name, description string, options []*model.Option, h core.Handler, settings ...model.Setting) (*model.Command, error) {
	cmd, err := model.NewSubcommand(base, name, description, options, settings...)
	if err != nil {
		return nil, err
	}
	return u.register(cmd, h, nil)
}

// UserCommand declares a user context menu command.
func (u *UI) UserCommand(name string, h core.Handler, settings ...model.Setting) (*model.Command, error) {
	return u.contextCommand(model.UserCommand, name, h, settings)
}

// MessageCommand declares a message context menu command.
func (u *UI) MessageCommand(name string, h core.Handler, settings ...model.Setting) (*model.Command, error) {
	return u.contextCommand(model.MessageCommand, name, h, settings)
}

func (u *UI) contextCommand(t model.CommandType, name string, h core.Handler, settings []model.Setting) (*model.Command, error) {
	cmd, err := model.NewContext(t, name, settings...)
	if err != nil {
		return nil, err
	}
	return u.register(cmd, h, nil)
}

// Listen registers a handler for one component custom id.
func (u *UI) Listen(customID string, h components.Handler) error {
	return u.Components.Register(customID, h)
}

// WaitFor blocks until a component interaction matching filter arrives.
func (u *UI) WaitFor(ctx context.Context, timeout time.Duration, filter components.Filter) (*components.Event, error) {
	return u.Components.WaitFor(ctx, timeout, filter)
}
