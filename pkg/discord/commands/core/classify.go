package core

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
)

// Event is the classified form of an inbound interaction.
type Event interface {
	event()
}

// PingEvent is the platform's liveness check.
type PingEvent struct{}

// CommandEvent is an application command invocation.
type CommandEvent struct {
	ID   string
	Name string
	Type model.CommandType
	// Path is the base name followed by group and subcommand names.
	Path []string
	// Options are the leaf options, below any group or subcommand.
	Options  []*discordgo.ApplicationCommandInteractionDataOption
	TargetID string
	Resolved *discordgo.ApplicationCommandInteractionDataResolved
}

// AutocompleteEvent asks for choices for the focused option.
type AutocompleteEvent struct {
	CommandEvent
	Focused *discordgo.ApplicationCommandInteractionDataOption
}

// ComponentEvent is a button press or select menu choice.
type ComponentEvent struct {
	Data discordgo.MessageComponentInteractionData
}

func (PingEvent) event()         {}
func (CommandEvent) event()      {}
func (AutocompleteEvent) event() {}
func (ComponentEvent) event()    {}

// Classify turns a raw interaction into an Event. Modal submissions and
// unknown types are not supported.
func Classify(raw *discordgo.Interaction) (Event, error) {
	if raw == nil {
		return nil, fmt.Errorf("classify: nil interaction")
	}
	switch raw.Type {
	case discordgo.InteractionPing:
		return PingEvent{}, nil
	case discordgo.InteractionApplicationCommand:
		return commandEvent(raw.ApplicationCommandData()), nil
	case discordgo.InteractionApplicationCommandAutocomplete:
		data := raw.ApplicationCommandData()
		ev := commandEvent(data)
		focused := FocusedOption(ev.Options)
		if focused == nil {
			return nil, fmt.Errorf("classify autocomplete %q: no focused option", data.Name)
		}
		return AutocompleteEvent{CommandEvent: ev, Focused: focused}, nil
	case discordgo.InteractionMessageComponent:
		return ComponentEvent{Data: raw.MessageComponentData()}, nil
	default:
		return nil, fmt.Errorf("classify type %d: %w", raw.Type, interaction.ErrNotSupported)
	}
}

func commandEvent(data discordgo.ApplicationCommandInteractionData) CommandEvent {
	typ := data.CommandType
	if typ == 0 {
		typ = discordgo.ChatApplicationCommand
	}
	ev := CommandEvent{
		ID:       data.ID,
		Name:     data.Name,
		Type:     model.CommandType(typ),
		Path:     []string{data.Name},
		Options:  data.Options,
		TargetID: data.TargetID,
		Resolved: data.Resolved,
	}
	// at most two levels: group then subcommand
	for i := 0; i < 2; i++ {
		if len(ev.Options) != 1 {
			break
		}
		o := ev.Options[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommandGroup && o.Type != discordgo.ApplicationCommandOptionSubCommand {
			break
		}
		ev.Path = append(ev.Path, o.Name)
		ev.Options = o.Options
	}
	return ev
}

// FocusedOption returns the option the user is typing into, or nil.
func FocusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if opt.Focused {
			return opt
		}
		if f := FocusedOption(opt.Options); f != nil {
			return f
		}
	}
	return nil
}

// HasFocusedOption reports whether any option is focused.
func HasFocusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) bool {
	return FocusedOption(options) != nil
}
