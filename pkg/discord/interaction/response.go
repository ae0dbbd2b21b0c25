package interaction

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Response is the message payload used by Respond, Send, Update and Edit.
type Response struct {
	Content         string
	Embeds          []*discordgo.MessageEmbed
	Components      []discordgo.MessageComponent
	Files           []*discordgo.File
	AllowedMentions *discordgo.MessageAllowedMentions
	TTS             bool

	// Hidden makes the message ephemeral. Follow-ups inherit it once set.
	Hidden bool
	// DeleteAfter schedules deletion of the sent message.
	DeleteAfter time.Duration
}

// Validate reports construction errors before anything goes over the wire.
func (r Response) Validate() error {
	if r.Hidden && r.DeleteAfter > 0 {
		return ErrEphemeralDeletion
	}
	return nil
}

func flags(hidden bool) discordgo.MessageFlags {
	if hidden {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

func (r Response) data(hidden bool) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		TTS:             r.TTS,
		Content:         r.Content,
		Embeds:          r.Embeds,
		Components:      r.Components,
		Files:           r.Files,
		AllowedMentions: r.AllowedMentions,
		Flags:           flags(hidden),
	}
}

func (r Response) edit() *discordgo.WebhookEdit {
	e := &discordgo.WebhookEdit{
		Content:         &r.Content,
		Files:           r.Files,
		AllowedMentions: r.AllowedMentions,
	}
	if r.Embeds != nil {
		e.Embeds = &r.Embeds
	}
	if r.Components != nil {
		e.Components = &r.Components
	}
	return e
}

func (r Response) params(hidden bool) *discordgo.WebhookParams {
	return &discordgo.WebhookParams{
		Content:         r.Content,
		TTS:             r.TTS,
		Files:           r.Files,
		Components:      r.Components,
		Embeds:          r.Embeds,
		AllowedMentions: r.AllowedMentions,
		Flags:           flags(hidden),
	}
}
