package model

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/bwmarrin/discordgo"
)

type canonicalCommand struct {
	Type              int               `json:"type"`
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	DefaultPermission bool              `json:"default_permission"`
	MemberPermissions *int64            `json:"default_member_permissions,omitempty"`
	Options           []canonicalOption `json:"options,omitempty"`
}

type canonicalOption struct {
	Type         int               `json:"type"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Required     bool              `json:"required,omitempty"`
	Autocomplete bool              `json:"autocomplete,omitempty"`
	Choices      []canonicalChoice `json:"choices,omitempty"`
	ChannelTypes []int             `json:"channel_types,omitempty"`
	MinValue     *float64          `json:"min_value,omitempty"`
	MaxValue     *float64          `json:"max_value,omitempty"`
	Options      []canonicalOption `json:"options,omitempty"`
}

type canonicalChoice struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Hash is a stable fingerprint of the parts of a command Discord lets us change.
// Two commands with the same hash need no edit.
func Hash(cmd *discordgo.ApplicationCommand) string {
	if cmd == nil {
		return ""
	}
	c := canonicalCommand{
		Type:              int(cmd.Type),
		Name:              cmd.Name,
		Description:       cmd.Description,
		DefaultPermission: cmd.DefaultPermission == nil || *cmd.DefaultPermission,
		MemberPermissions: cmd.DefaultMemberPermissions,
		Options:           canonicalOptions(cmd.Options),
	}
	if c.Type == 0 {
		c.Type = int(discordgo.ChatApplicationCommand)
	}

	b, _ := json.Marshal(c)
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether local and remote are structurally equal for sync purposes.
func Equal(local, remote *discordgo.ApplicationCommand) bool {
	return Hash(local) == Hash(remote)
}

func canonicalOptions(opts []*discordgo.ApplicationCommandOption) []canonicalOption {
	if len(opts) == 0 {
		return nil
	}
	out := make([]canonicalOption, 0, len(opts))
	for _, o := range opts {
		if o == nil {
			continue
		}
		co := canonicalOption{
			Type:         int(o.Type),
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			Autocomplete: o.Autocomplete,
			MinValue:     o.MinValue,
			Options:      canonicalOptions(o.Options),
		}
		if o.MaxValue != 0 {
			v := o.MaxValue
			co.MaxValue = &v
		}
		for _, ct := range o.ChannelTypes {
			co.ChannelTypes = append(co.ChannelTypes, int(ct))
		}
		sort.Ints(co.ChannelTypes)
		for _, ch := range o.Choices {
			if ch == nil {
				continue
			}
			co.Choices = append(co.Choices, canonicalChoice{Name: ch.Name, Value: canonicalValue(ch.Value)})
		}
		out = append(out, co)
	}
	return out
}

// canonicalValue folds every numeric representation into float64, which is what
// a choice value decodes to when it comes back from the API.
func canonicalValue(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	return v
}
