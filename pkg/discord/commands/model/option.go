package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Choice is a predefined value offered for an option.
type Choice struct {
	Name  string
	Value any
}

// Option is a typed command parameter. Subcommands and subcommand groups are
// options too and carry their own nested Options.
type Option struct {
	Type         OptionType
	Name         string
	Description  string
	Required     bool
	Choices      []Choice
	Autocomplete bool
	ChannelTypes []discordgo.ChannelType
	MinValue     *float64
	MaxValue     *float64
	Options      []*Option
}

// OptionSetting customizes an option built by NewOption.
type OptionSetting func(*Option)

func Required() OptionSetting { return func(o *Option) { o.Required = true } }

func WithChoices(choices ...Choice) OptionSetting {
	return func(o *Option) { o.Choices = append(o.Choices, choices...) }
}

func WithAutocomplete() OptionSetting { return func(o *Option) { o.Autocomplete = true } }

func WithChannelTypes(types ...discordgo.ChannelType) OptionSetting {
	return func(o *Option) { o.ChannelTypes = append(o.ChannelTypes, types...) }
}

func WithMin(v float64) OptionSetting { return func(o *Option) { o.MinValue = &v } }

func WithMax(v float64) OptionSetting { return func(o *Option) { o.MaxValue = &v } }

func WithSubOptions(opts ...*Option) OptionSetting {
	return func(o *Option) { o.Options = append(o.Options, opts...) }
}

// NewOption builds and validates an option. The name is normalized first.
func NewOption(t OptionType, name, description string, settings ...OptionSetting) (*Option, error) {
	o := &Option{Type: t, Description: strings.TrimSpace(description)}
	if t.Nested() {
		o.Name = FormatName(name)
	} else {
		o.Name = FormatOptionName(name)
	}
	for _, s := range settings {
		s(o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the option and its nested options.
func (o *Option) Validate() error {
	field := "option " + o.Name
	switch o.Type {
	case OptionSubCommand, OptionSubCommandGroup, OptionString, OptionInteger, OptionBoolean,
		OptionUser, OptionChannel, OptionRole, OptionMentionable, OptionNumber, OptionAttachment, OptionMessage:
	default:
		return wrongType(field+" type", "a known option type", o.Type)
	}
	if err := validateName(field+" name", o.Name); err != nil {
		return err
	}
	if err := checkLength(field+" description", o.Description, 1, MaxDescriptionLength); err != nil {
		return err
	}

	if o.Autocomplete && len(o.Choices) > 0 {
		return conflict(field, "autocomplete cannot be combined with choices")
	}
	if o.Autocomplete && o.Type != OptionString && !o.Type.Numeric() {
		return conflict(field, "autocomplete requires a string, integer or number option")
	}
	if len(o.Choices) > 0 {
		if o.Type != OptionString && !o.Type.Numeric() {
			return conflict(field, fmt.Sprintf("choices are not allowed for %s options", o.Type))
		}
		if len(o.Choices) > MaxChoices {
			return &ValidationError{Field: field, Message: fmt.Sprintf("at most %d choices", MaxChoices), Err: ErrInvalidLength}
		}
		for _, c := range o.Choices {
			if err := checkLength(field+" choice name", c.Name, 1, MaxDescriptionLength); err != nil {
				return err
			}
			if err := checkChoiceValue(field+" choice "+c.Name, o.Type, c.Value); err != nil {
				return err
			}
		}
	}
	if len(o.ChannelTypes) > 0 && o.Type != OptionChannel {
		return conflict(field, "channel types only apply to channel options")
	}
	if (o.MinValue != nil || o.MaxValue != nil) && !o.Type.Numeric() {
		return conflict(field, "min/max only apply to numeric options")
	}
	if o.MinValue != nil && o.MaxValue != nil && *o.MinValue > *o.MaxValue {
		return conflict(field, "min is greater than max")
	}

	switch {
	case o.Type == OptionSubCommandGroup:
		for _, sub := range o.Options {
			if sub != nil && sub.Type != OptionSubCommand {
				return conflict(field, "a subcommand group may only contain subcommands")
			}
		}
	case o.Type == OptionSubCommand:
		for _, sub := range o.Options {
			if sub != nil && sub.Type.Nested() {
				return conflict(field, "subcommands cannot nest further")
			}
		}
	case len(o.Options) > 0:
		return conflict(field, "only subcommands and groups take nested options")
	}
	return checkOptions(field, o.Options)
}

// checkOptions validates a sibling list: no nil entries, unique names, required first.
func checkOptions(field string, opts []*Option) error {
	if len(opts) > MaxOptions {
		return &ValidationError{Field: field, Message: fmt.Sprintf("at most %d options", MaxOptions), Err: ErrInvalidLength}
	}
	seen := make(map[string]struct{}, len(opts))
	optionalSeen := false
	nested := 0
	for i, o := range opts {
		if o == nil {
			return wrongType(fmt.Sprintf("%s options[%d]", field, i), "*model.Option", o)
		}
		if _, dup := seen[o.Name]; dup {
			return conflict(field, fmt.Sprintf("duplicate option name %q", o.Name))
		}
		seen[o.Name] = struct{}{}
		if o.Type.Nested() {
			nested++
		} else if o.Required && optionalSeen {
			return conflict(field, fmt.Sprintf("required option %q follows an optional one", o.Name))
		} else if !o.Required {
			optionalSeen = true
		}
		if err := o.Validate(); err != nil {
			return err
		}
	}
	if nested > 0 && nested != len(opts) {
		return conflict(field, "subcommands cannot be mixed with plain options")
	}
	return nil
}

func checkChoiceValue(field string, t OptionType, v any) error {
	switch t {
	case OptionString:
		if _, ok := v.(string); !ok {
			return wrongType(field, "string", v)
		}
	case OptionInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return wrongType(field, "integer", v)
		}
	case OptionNumber:
		if _, ok := toFloat(v); !ok {
			return wrongType(field, "number", v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Clone returns a deep copy.
func (o *Option) Clone() *Option {
	if o == nil {
		return nil
	}
	c := *o
	c.Choices = append([]Choice(nil), o.Choices...)
	c.ChannelTypes = append([]discordgo.ChannelType(nil), o.ChannelTypes...)
	if o.MinValue != nil {
		v := *o.MinValue
		c.MinValue = &v
	}
	if o.MaxValue != nil {
		v := *o.MaxValue
		c.MaxValue = &v
	}
	c.Options = cloneOptions(o.Options)
	return &c
}

func cloneOptions(opts []*Option) []*Option {
	if opts == nil {
		return nil
	}
	out := make([]*Option, len(opts))
	for i, o := range opts {
		out[i] = o.Clone()
	}
	return out
}

// Find returns the direct child option with the given name.
func (o *Option) Find(name string) *Option {
	return findOption(o.Options, name)
}

func findOption(opts []*Option, name string) *Option {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// ToDiscord converts the option into its wire form.
func (o *Option) ToDiscord() *discordgo.ApplicationCommandOption {
	out := &discordgo.ApplicationCommandOption{
		Type:         o.Type.Wire(),
		Name:         o.Name,
		Description:  o.Description,
		Required:     o.Required,
		Autocomplete: o.Autocomplete,
		ChannelTypes: append([]discordgo.ChannelType(nil), o.ChannelTypes...),
	}
	if o.MinValue != nil {
		v := *o.MinValue
		out.MinValue = &v
	}
	if o.MaxValue != nil {
		out.MaxValue = *o.MaxValue
	}
	for _, c := range o.Choices {
		out.Choices = append(out.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
	}
	for _, sub := range o.Options {
		out.Options = append(out.Options, sub.ToDiscord())
	}
	return out
}
