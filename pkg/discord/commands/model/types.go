package model

import "github.com/bwmarrin/discordgo"

// CommandType is the kind of application command.
type CommandType int

const (
	ChatInput      CommandType = CommandType(discordgo.ChatApplicationCommand)
	UserCommand    CommandType = CommandType(discordgo.UserApplicationCommand)
	MessageCommand CommandType = CommandType(discordgo.MessageApplicationCommand)
)

func (t CommandType) String() string {
	switch t {
	case ChatInput:
		return "chat_input"
	case UserCommand:
		return "user"
	case MessageCommand:
		return "message"
	default:
		return "unknown"
	}
}

// OptionType is the declared type of an option.
type OptionType int

const (
	OptionSubCommand      OptionType = OptionType(discordgo.ApplicationCommandOptionSubCommand)
	OptionSubCommandGroup OptionType = OptionType(discordgo.ApplicationCommandOptionSubCommandGroup)
	OptionString          OptionType = OptionType(discordgo.ApplicationCommandOptionString)
	OptionInteger         OptionType = OptionType(discordgo.ApplicationCommandOptionInteger)
	OptionBoolean         OptionType = OptionType(discordgo.ApplicationCommandOptionBoolean)
	OptionUser            OptionType = OptionType(discordgo.ApplicationCommandOptionUser)
	OptionChannel         OptionType = OptionType(discordgo.ApplicationCommandOptionChannel)
	OptionRole            OptionType = OptionType(discordgo.ApplicationCommandOptionRole)
	OptionMentionable     OptionType = OptionType(discordgo.ApplicationCommandOptionMentionable)
	OptionNumber          OptionType = OptionType(discordgo.ApplicationCommandOptionNumber)
	OptionAttachment      OptionType = OptionType(discordgo.ApplicationCommandOptionAttachment)

	// OptionMessage is sent to Discord as a string option holding a message id and
	// resolved into the message on the way back in.
	OptionMessage OptionType = 44
)

// Wire returns the option type Discord sees.
func (t OptionType) Wire() discordgo.ApplicationCommandOptionType {
	if t == OptionMessage {
		return discordgo.ApplicationCommandOptionString
	}
	return discordgo.ApplicationCommandOptionType(t)
}

// Scalar reports whether values of this type are used as received.
func (t OptionType) Scalar() bool {
	switch t {
	case OptionString, OptionInteger, OptionBoolean, OptionNumber:
		return true
	}
	return false
}

// Numeric reports whether min/max bounds apply.
func (t OptionType) Numeric() bool {
	return t == OptionInteger || t == OptionNumber
}

// Nested reports whether the option is a subcommand or a subcommand group.
func (t OptionType) Nested() bool {
	return t == OptionSubCommand || t == OptionSubCommandGroup
}

func (t OptionType) String() string {
	switch t {
	case OptionSubCommand:
		return "subcommand"
	case OptionSubCommandGroup:
		return "subcommand_group"
	case OptionString:
		return "string"
	case OptionInteger:
		return "integer"
	case OptionBoolean:
		return "boolean"
	case OptionUser:
		return "user"
	case OptionChannel:
		return "channel"
	case OptionRole:
		return "role"
	case OptionMentionable:
		return "mentionable"
	case OptionNumber:
		return "number"
	case OptionAttachment:
		return "attachment"
	case OptionMessage:
		return "message"
	default:
		return "unknown"
	}
}

// GlobalScope is the scope key of global commands. Guild commands use the guild id.
const GlobalScope = "globals"
