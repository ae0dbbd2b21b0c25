package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// Command is a locally declared application command: a plain slash command, a
// subcommand (1 or 2 base names) or a user/message context command.
//
// Values are validated on construction and on every setter; an invalid change
// leaves the command untouched.
type Command struct {
	mu sync.RWMutex

	typ               CommandType
	name              string
	description       string
	options           []*Option
	baseNames         []string
	defaultPermission bool
	memberPermissions *int64
	guildIDs          []string
	permissions       map[string]Permissions

	// registry ids keyed by scope (GlobalScope or guild id)
	ids map[string]string
}

// Setting customizes a command at construction time.
type Setting func(*Command)

// WithGuilds scopes the command to the given guilds. Without it the command is global.
func WithGuilds(ids ...string) Setting {
	return func(c *Command) { c.guildIDs = normalizeGuilds(append(c.guildIDs, ids...)) }
}

// WithDefaultPermission sets whether members can use the command by default.
func WithDefaultPermission(enabled bool) Setting {
	return func(c *Command) { c.defaultPermission = enabled }
}

// WithMemberPermissions sets the default member permission bitset.
func WithMemberPermissions(bits int64) Setting {
	return func(c *Command) { c.memberPermissions = &bits }
}

// WithPermissions sets the allow/deny list used in one guild.
func WithPermissions(guildID string, p Permissions) Setting {
	return func(c *Command) {
		if c.permissions == nil {
			c.permissions = make(map[string]Permissions)
		}
		c.permissions[guildID] = p.clone()
	}
}

func newCommand(t CommandType, settings []Setting) *Command {
	c := &Command{typ: t, defaultPermission: true, ids: make(map[string]string)}
	for _, s := range settings {
		s(c)
	}
	return c
}

// NewSlash declares a chat-input command.
func NewSlash(name, description string, options []*Option, settings ...Setting) (*Command, error) {
	c := newCommand(ChatInput, settings)
	c.name = FormatName(name)
	c.description = strings.TrimSpace(description)
	c.options = options
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSubcommand declares a subcommand addressed as "/base name" or "/base group name".
func NewSubcommand(baseNames []string, name, description string, options []*Option, settings ...Setting) (*Command, error) {
	if len(baseNames) < 1 || len(baseNames) > 2 {
		return nil, &ValidationError{
			Field:   "base_names",
			Message: fmt.Sprintf("expected 1 or 2 base names, got %d", len(baseNames)),
			Err:     ErrInvalidLength,
		}
	}
	c := newCommand(ChatInput, settings)
	c.name = FormatName(name)
	c.description = strings.TrimSpace(description)
	c.options = options
	for _, b := range baseNames {
		c.baseNames = append(c.baseNames, FormatName(b))
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewContext declares a user or message context-menu command. Its name keeps its case.
func NewContext(t CommandType, name string, settings ...Setting) (*Command, error) {
	if t != UserCommand && t != MessageCommand {
		return nil, wrongType("type", "user or message command type", t)
	}
	c := newCommand(t, settings)
	c.name = strings.TrimSpace(name)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Command) validate() error {
	if err := validateName("name", c.name); err != nil {
		return err
	}
	for i, b := range c.baseNames {
		if err := validateName(fmt.Sprintf("base_names[%d]", i), b); err != nil {
			return err
		}
	}
	if c.typ == ChatInput {
		if err := validateDescription(c.description); err != nil {
			return err
		}
	} else {
		if c.description != "" {
			return conflict("description", "context commands have no description")
		}
		if len(c.options) > 0 {
			return conflict("options", "context commands take no options")
		}
	}
	if err := checkOptions("options", c.options); err != nil {
		return err
	}
	if len(c.baseNames) > 0 {
		for _, o := range c.options {
			if o.Type.Nested() {
				return conflict("options", "a subcommand cannot declare nested subcommands")
			}
		}
	}
	for gid := range c.permissions {
		if strings.TrimSpace(gid) == "" {
			return conflict("permissions", "permissions need a guild id")
		}
	}
	return nil
}

func normalizeGuilds(ids []string) []string {
	ids = lo.Map(ids, func(id string, _ int) string { return strings.TrimSpace(id) })
	return lo.Uniq(lo.Compact(ids))
}

func (c *Command) Type() CommandType {
	return c.typ
}

func (c *Command) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Command) Description() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.description
}

// Options returns a copy of the option list.
func (c *Command) Options() []*Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneOptions(c.options)
}

// Option returns a direct option by name.
func (c *Command) Option(name string) *Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return findOption(c.options, name)
}

func (c *Command) BaseNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.baseNames...)
}

func (c *Command) IsSubcommand() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.baseNames) > 0
}

// Path is the name chain used to address the command: base names followed by the name.
func (c *Command) Path() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(append([]string(nil), c.baseNames...), c.name)
}

// QualifiedName is the path joined by spaces, as users type it.
func (c *Command) QualifiedName() string {
	return strings.Join(c.Path(), " ")
}

func (c *Command) DefaultPermission() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultPermission
}

func (c *Command) MemberPermissions() *int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.memberPermissions == nil {
		return nil
	}
	v := *c.memberPermissions
	return &v
}

func (c *Command) GuildIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.guildIDs...)
}

func (c *Command) IsGlobal() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guildIDs) == 0
}

// Scopes lists the registry scopes the command lives in.
func (c *Command) Scopes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.guildIDs) == 0 {
		return []string{GlobalScope}
	}
	return append([]string(nil), c.guildIDs...)
}

// Permissions returns the allow/deny list declared for a guild.
func (c *Command) Permissions(guildID string) (Permissions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.permissions[guildID]
	return p.clone(), ok
}

// PermissionGuilds lists guilds with a declared permission set.
func (c *Command) PermissionGuilds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(c.permissions)
}

// ID returns the registry id assigned in scope, or "".
func (c *Command) ID(scope string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids[scope]
}

// SetID records the registry id assigned in scope. An empty id clears it.
func (c *Command) SetID(scope, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" {
		delete(c.ids, scope)
		return
	}
	c.ids[scope] = id
}

// IDs returns a copy of all assigned registry ids keyed by scope.
func (c *Command) IDs() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.ids))
	for k, v := range c.ids {
		out[k] = v
	}
	return out
}

// SetName renames the command after validating the new name.
func (c *Command) SetName(name string) error {
	return c.update(func(n *Command) {
		if n.typ == ChatInput {
			n.name = FormatName(name)
		} else {
			n.name = strings.TrimSpace(name)
		}
	})
}

func (c *Command) SetDescription(desc string) error {
	return c.update(func(n *Command) { n.description = strings.TrimSpace(desc) })
}

func (c *Command) SetOptions(opts []*Option) error {
	return c.update(func(n *Command) { n.options = opts })
}

func (c *Command) SetDefaultPermission(enabled bool) error {
	return c.update(func(n *Command) { n.defaultPermission = enabled })
}

func (c *Command) SetGuildIDs(ids ...string) error {
	return c.update(func(n *Command) { n.guildIDs = normalizeGuilds(ids) })
}

func (c *Command) SetPermissions(guildID string, p Permissions) error {
	return c.update(func(n *Command) { WithPermissions(guildID, p)(n) })
}

// update applies fn to a copy, validates it, and only then commits.
func (c *Command) update(fn func(*Command)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.cloneLocked()
	fn(next)
	if err := next.validate(); err != nil {
		return err
	}
	c.name = next.name
	c.description = next.description
	c.options = next.options
	c.defaultPermission = next.defaultPermission
	c.memberPermissions = next.memberPermissions
	c.guildIDs = next.guildIDs
	c.permissions = next.permissions
	return nil
}

// Reset overwrites every declared field with the values of from. Registry ids
// are left as they are.
func (c *Command) Reset(from *Command) {
	snap := from.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = snap.name
	c.description = snap.description
	c.options = snap.options
	c.defaultPermission = snap.defaultPermission
	c.memberPermissions = snap.memberPermissions
	c.guildIDs = snap.guildIDs
	c.permissions = snap.permissions
}

// Clone returns a deep copy, registry ids included.
func (c *Command) Clone() *Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cloneLocked()
}

func (c *Command) cloneLocked() *Command {
	n := &Command{
		typ:               c.typ,
		name:              c.name,
		description:       c.description,
		options:           cloneOptions(c.options),
		baseNames:         append([]string(nil), c.baseNames...),
		defaultPermission: c.defaultPermission,
		guildIDs:          append([]string(nil), c.guildIDs...),
		ids:               make(map[string]string, len(c.ids)),
	}
	if c.memberPermissions != nil {
		v := *c.memberPermissions
		n.memberPermissions = &v
	}
	if c.permissions != nil {
		n.permissions = make(map[string]Permissions, len(c.permissions))
		for k, v := range c.permissions {
			n.permissions[k] = v.clone()
		}
	}
	for k, v := range c.ids {
		n.ids[k] = v
	}
	return n
}

// ToDiscord renders a top-level command. Subcommands are rendered by their
// synthesized parent through ToOption instead.
func (c *Command) ToDiscord() *discordgo.ApplicationCommand {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dp := c.defaultPermission
	out := &discordgo.ApplicationCommand{
		Type:              discordgo.ApplicationCommandType(c.typ),
		Name:              c.name,
		Description:       c.description,
		DefaultPermission: &dp,
	}
	if c.memberPermissions != nil {
		v := *c.memberPermissions
		out.DefaultMemberPermissions = &v
	}
	for _, o := range c.options {
		out.Options = append(out.Options, o.ToDiscord())
	}
	return out
}

// ToOption renders a subcommand as a SUB_COMMAND option.
func (c *Command) ToOption() *Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Option{
		Type:        OptionSubCommand,
		Name:        c.name,
		Description: c.description,
		Options:     cloneOptions(c.options),
	}
}

func (c *Command) String() string {
	return fmt.Sprintf("%s command %q", c.typ, c.QualifiedName())
}
