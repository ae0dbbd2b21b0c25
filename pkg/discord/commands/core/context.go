package core

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

// Handler runs a command invocation.
type Handler func(ctx *Context) error

// AutocompleteHandler returns choices for the focused option. At most 25
// are sent.
type AutocompleteHandler func(ctx *AutocompleteContext) ([]*discordgo.ApplicationCommandOptionChoice, error)

// Context is what a command handler receives: the interaction with its
// response methods, the matched command and the resolved options.
type Context struct {
	*interaction.Interaction

	ctx     context.Context
	Command *model.Command
	// Scope is "globals" or the guild id the command was matched in.
	Scope   string
	Options map[string]any
	// Target is the resolved member, user or message of a context menu command.
	Target any
	Logger *logging.Logger
}

// Context returns the request context, cancelled when the token expires.
func (c *Context) Context() context.Context { return c.ctx }

// UserID is the id of the invoking user.
func (c *Context) UserID() string {
	if u := c.User(); u != nil {
		return u.ID
	}
	return ""
}

// Reply answers with a plain message, following the response state machine.
func (c *Context) Reply(content string, hidden bool) error {
	_, err := c.Respond(c.ctx, interaction.Response{Content: content, Hidden: hidden})
	return err
}

// Replyf is Reply with formatting; the reply is hidden.
func (c *Context) Replyf(format string, args ...any) error {
	return c.Reply(fmt.Sprintf(format, args...), true)
}

// Option returns a resolved option value converted to T.
func Option[T any](c *Context, name string) (T, bool) {
	var zero T
	v, ok := c.Options[name]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (c *Context) StringOption(name string) string {
	v, _ := Option[string](c, name)
	return v
}

func (c *Context) IntOption(name string) int64 {
	v, _ := Option[int64](c, name)
	return v
}

func (c *Context) FloatOption(name string) float64 {
	v, _ := Option[float64](c, name)
	return v
}

func (c *Context) BoolOption(name string) bool {
	v, _ := Option[bool](c, name)
	return v
}

// MemberOption returns a member option; nil outside guilds or when the value
// resolved to a plain user.
func (c *Context) MemberOption(name string) *discordgo.Member {
	v, _ := Option[*discordgo.Member](c, name)
	return v
}

// UserOption returns the user behind a user option whether it resolved to a
// member or a user.
func (c *Context) UserOption(name string) *discordgo.User {
	switch v := c.Options[name].(type) {
	case *discordgo.Member:
		return v.User
	case *discordgo.User:
		return v
	}
	return nil
}

func (c *Context) ChannelOption(name string) *discordgo.Channel {
	v, _ := Option[*discordgo.Channel](c, name)
	return v
}

func (c *Context) RoleOption(name string) *discordgo.Role {
	v, _ := Option[*discordgo.Role](c, name)
	return v
}

func (c *Context) MessageOption(name string) *discordgo.Message {
	v, _ := Option[*discordgo.Message](c, name)
	return v
}

func (c *Context) AttachmentOption(name string) *discordgo.MessageAttachment {
	v, _ := Option[*discordgo.MessageAttachment](c, name)
	return v
}

// AutocompleteContext is what an autocomplete handler receives.
type AutocompleteContext struct {
	*interaction.Interaction

	ctx     context.Context
	Command *model.Command
	// Focused is the name of the option being typed into and Value its
	// current raw content.
	Focused string
	Value   any
	// Options are the other leaf options as typed so far, unresolved.
	Options []*discordgo.ApplicationCommandInteractionDataOption
	Logger  *logging.Logger
}

func (a *AutocompleteContext) Context() context.Context { return a.ctx }

// Input returns the focused value as text.
func (a *AutocompleteContext) Input() string {
	if s, ok := a.Value.(string); ok {
		return s
	}
	if a.Value == nil {
		return ""
	}
	return fmt.Sprint(a.Value)
}
