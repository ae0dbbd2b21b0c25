package model

import (
	"sort"

	"github.com/bwmarrin/discordgo"
)

// PermissionType is the kind of subject a permission entry targets.
type PermissionType int

const (
	PermissionRole PermissionType = PermissionType(discordgo.ApplicationCommandPermissionTypeRole)
	PermissionUser PermissionType = PermissionType(discordgo.ApplicationCommandPermissionTypeUser)
)

// Subject is a role or user referenced by a permission entry.
type Subject struct {
	ID   string
	Type PermissionType
}

func Role(id string) Subject { return Subject{ID: id, Type: PermissionRole} }
func User(id string) Subject { return Subject{ID: id, Type: PermissionUser} }

// Permissions is the per-guild allow/deny list of a command.
type Permissions struct {
	Allow []Subject
	Deny  []Subject
}

// Empty reports whether no entry is set.
func (p Permissions) Empty() bool { return len(p.Allow) == 0 && len(p.Deny) == 0 }

// ToDiscord renders the entries in the {id, type, permission} wire form.
func (p Permissions) ToDiscord() []*discordgo.ApplicationCommandPermissions {
	out := make([]*discordgo.ApplicationCommandPermissions, 0, len(p.Allow)+len(p.Deny))
	for _, s := range p.Allow {
		out = append(out, &discordgo.ApplicationCommandPermissions{
			ID: s.ID, Type: discordgo.ApplicationCommandPermissionType(s.Type), Permission: true,
		})
	}
	for _, s := range p.Deny {
		out = append(out, &discordgo.ApplicationCommandPermissions{
			ID: s.ID, Type: discordgo.ApplicationCommandPermissionType(s.Type), Permission: false,
		})
	}
	return out
}

// PermissionsFromDiscord is the inverse of ToDiscord.
func PermissionsFromDiscord(list []*discordgo.ApplicationCommandPermissions) Permissions {
	var p Permissions
	for _, e := range list {
		if e == nil {
			continue
		}
		s := Subject{ID: e.ID, Type: PermissionType(e.Type)}
		if e.Permission {
			p.Allow = append(p.Allow, s)
		} else {
			p.Deny = append(p.Deny, s)
		}
	}
	return p
}

// Equal compares two permission sets ignoring order.
func (p Permissions) Equal(o Permissions) bool {
	a, b := p.keys(), o.keys()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type permKey struct {
	id    string
	typ   PermissionType
	allow bool
}

func (p Permissions) keys() []permKey {
	seen := make(map[permKey]struct{}, len(p.Allow)+len(p.Deny))
	for _, s := range p.Allow {
		seen[permKey{s.ID, s.Type, true}] = struct{}{}
	}
	for _, s := range p.Deny {
		seen[permKey{s.ID, s.Type, false}] = struct{}{}
	}
	out := make([]permKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		if out[i].typ != out[j].typ {
			return out[i].typ < out[j].typ
		}
		return !out[i].allow && out[j].allow
	})
	return out
}

func (p Permissions) clone() Permissions {
	return Permissions{
		Allow: append([]Subject(nil), p.Allow...),
		Deny:  append([]Subject(nil), p.Deny...),
	}
}
