package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/errutil"
	"github.com/small-frappuccino/discordui/pkg/storage"
)

// MetaLastSync is the runtime metadata key written after each successful sync.
const MetaLastSync = "commands.last_sync"

// SyncOptions controls a full sync.
type SyncOptions struct {
	// DeleteUnused removes remote commands that are no longer declared.
	DeleteUnused bool
	// BotGuilds are the guilds the bot is in. With DeleteUnused, guilds among
	// them that have no declared commands are cleared too.
	BotGuilds []string
}

// SyncReport counts what a sync did.
type SyncReport struct {
	Created            int
	Updated            int
	Unchanged          int
	Deleted            int
	PermissionsUpdated int
	// Skipped lists scopes the bot was not allowed to manage.
	Skipped []string
}

func (r *SyncReport) skip(scope string) {
	if !slices.Contains(r.Skipped, scope) {
		r.Skipped = append(r.Skipped, scope)
	}
}

// planned is the wire form of one top-level command about to be synced.
type planned struct {
	key   topKey
	cmd   *discordgo.ApplicationCommand
	hash  string
	perms map[string]model.Permissions
}

// wireScope maps a cache scope to the guild id the API expects.
func wireScope(scope string) string {
	if scope == model.GlobalScope {
		return ""
	}
	return scope
}

func hashOf(cmd *discordgo.ApplicationCommand) string { return model.Hash(cmd) }

// render builds the wire command of a top-level node. A node that only groups
// subcommands gets a synthesized chat-input parent whose description is its
// name and whose permission defaults come from its first subcommand.
func render(key topKey, n *node) *discordgo.ApplicationCommand {
	if n.entry != nil && len(n.children) == 0 {
		return n.entry.Command.ToDiscord()
	}

	var first *model.Command
	n.walk(func(e *Entry) {
		if first == nil {
			first = e.Command
		}
	})
	dp := true
	parent := &discordgo.ApplicationCommand{
		Type:              discordgo.ChatApplicationCommand,
		Name:              key.name,
		Description:       key.name,
		DefaultPermission: &dp,
	}
	if first != nil {
		dp = first.DefaultPermission()
		parent.DefaultMemberPermissions = first.MemberPermissions()
	}

	for _, name := range n.order {
		child := n.children[name]
		if child.entry != nil {
			parent.Options = append(parent.Options, child.entry.Command.ToOption().ToDiscord())
			continue
		}
		group := &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
			Name:        name,
			Description: name,
		}
		for _, leafName := range child.order {
			if leaf := child.children[leafName]; leaf.entry != nil {
				group.Options = append(group.Options, leaf.entry.Command.ToOption().ToDiscord())
			}
		}
		parent.Options = append(parent.Options, group)
	}
	return parent
}

// permissionsOf collects the allow/deny lists to apply for a top-level node.
// Guild commands only carry the list of their own guild; global commands
// carry every guild they declare one for.
func permissionsOf(scope string, n *node) map[string]model.Permissions {
	out := make(map[string]model.Permissions)
	n.walk(func(e *Entry) {
		guilds := []string{scope}
		if scope == model.GlobalScope {
			guilds = e.Command.PermissionGuilds()
		}
		for _, g := range guilds {
			if _, done := out[g]; done {
				continue
			}
			if p, ok := e.Command.Permissions(g); ok {
				out[g] = p
			}
		}
	})
	return out
}

func (c *Cache) plan(scope string) []planned {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := c.scopes[scope]
	if tree == nil {
		return nil
	}
	out := make([]planned, 0, len(tree.order))
	for _, key := range tree.order {
		n := tree.top[key]
		cmd := render(key, n)
		out = append(out, planned{key: key, cmd: cmd, hash: hashOf(cmd), perms: permissionsOf(scope, n)})
	}
	return out
}

func (c *Cache) hasTop(scope string, key topKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := c.scopes[scope]
	return tree != nil && tree.top[key] != nil
}

// adopt records the registry id of a synced top-level command in memory and in the store.
func (c *Cache) adopt(scope string, p planned, id string) {
	c.mu.Lock()
	c.setIDLocked(location{scope: scope, key: p.key}, id)
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	err := c.store.UpsertCommand(storage.CommandRecord{
		Scope:      scope,
		Type:       int(p.key.typ),
		Name:       p.key.name,
		RegistryID: id,
		Hash:       p.hash,
		SyncedAt:   time.Now().UTC(),
	})
	if err != nil {
		c.log.WithError(err).WithField("command", p.key.name).Warn("Failed to persist command id")
	}
}

func (c *Cache) forget(scope string, typ model.CommandType, name string) {
	if c.store == nil {
		return
	}
	if err := c.store.DeleteCommand(scope, int(typ), name); err != nil {
		c.log.WithError(err).WithField("command", name).Warn("Failed to forget command id")
	}
}

// Sync makes the remote registry match the cache: globals first, then every
// guild scope in declaration order. Each scope is listed once; missing
// commands are created, changed ones edited and matching ones left alone.
// Declared permissions are reconciled afterwards. Scopes the bot may not
// manage are skipped with a warning. A second sync with nothing changed
// issues no create or edit call.
func (c *Cache) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	if !c.syncMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer c.syncMu.Unlock()

	start := time.Now()
	report := &SyncReport{}

	declared := c.Scopes()
	scopes := []string{model.GlobalScope}
	for _, s := range declared {
		if s != model.GlobalScope {
			scopes = append(scopes, s)
		}
	}
	if !opts.DeleteUnused && !slices.Contains(declared, model.GlobalScope) {
		scopes = scopes[1:]
	}

	for _, scope := range scopes {
		if err := c.syncScope(ctx, scope, opts.DeleteUnused, report); err != nil {
			return report, err
		}
	}

	if opts.DeleteUnused {
		for _, guildID := range opts.BotGuilds {
			if slices.Contains(declared, guildID) {
				continue
			}
			n, err := c.nukeScope(ctx, guildID, report)
			if err != nil {
				return report, err
			}
			report.Deleted += n
		}
	}

	c.markSynced()
	if c.store != nil {
		if err := c.store.SetMetadata(MetaLastSync, time.Now().UTC()); err != nil {
			c.log.WithError(err).Warn("Failed to record sync time")
		}
	}

	c.log.WithFields(map[string]any{
		"created":            report.Created,
		"updated":            report.Updated,
		"unchanged":          report.Unchanged,
		"deleted":            report.Deleted,
		"permissionsUpdated": report.PermissionsUpdated,
		"skipped":            len(report.Skipped),
		"duration":           time.Since(start).Round(time.Millisecond).String(),
	}).Info("Command synchronization completed")
	return report, nil
}

func (c *Cache) syncScope(ctx context.Context, scope string, deleteUnused bool, report *SyncReport) error {
	guildID := wireScope(scope)
	log := c.log.WithField("scope", scope)

	existing, err := c.client.List(ctx, guildID)
	if err != nil {
		return &SyncError{Scope: scope, Op: "list", Err: err}
	}
	byKey := make(map[topKey]*discordgo.ApplicationCommand, len(existing))
	for _, r := range existing {
		typ := r.Type
		if typ == 0 {
			typ = discordgo.ChatApplicationCommand
		}
		byKey[topKey{model.CommandType(typ), r.Name}] = r
	}

	seen := make(map[string]bool)
	for _, p := range c.plan(scope) {
		cur := byKey[p.key]
		var id string
		switch {
		case cur == nil:
			created, err := c.client.Create(ctx, guildID, p.cmd)
			if err != nil {
				if errutil.IsForbidden(err) {
					log.WithError(err).Warn("Missing access to create commands, skipping scope")
					report.skip(scope)
					return nil
				}
				return &SyncError{Scope: scope, Command: p.key.name, Op: "create", Err: err}
			}
			id = created.ID
			report.Created++
			log.WithField("command", p.key.name).Info("Created command")
		case !model.Equal(p.cmd, cur):
			if _, err := c.client.Edit(ctx, guildID, cur.ID, p.cmd); err != nil {
				if errutil.IsForbidden(err) {
					log.WithError(err).Warn("Missing access to edit commands, skipping scope")
					report.skip(scope)
					return nil
				}
				return &SyncError{Scope: scope, Command: p.key.name, Op: "edit", Err: err}
			}
			id = cur.ID
			report.Updated++
			log.WithField("command", p.key.name).Info("Updated command")
		default:
			id = cur.ID
			report.Unchanged++
		}
		seen[id] = true
		c.adopt(scope, p, id)

		if err := c.syncPermissions(ctx, scope, p, id, report); err != nil {
			return err
		}
	}

	if !deleteUnused {
		return nil
	}
	for _, r := range existing {
		if seen[r.ID] {
			continue
		}
		if err := c.client.Delete(ctx, guildID, r.ID); err != nil {
			log.WithError(err).WithField("command", r.Name).Warn("Failed to delete unused command")
			continue
		}
		report.Deleted++
		c.forget(scope, model.CommandType(r.Type), r.Name)
		log.WithField("command", r.Name).Info("Deleted unused command")
	}
	return nil
}

func (c *Cache) syncPermissions(ctx context.Context, scope string, p planned, id string, report *SyncReport) error {
	for _, guildID := range lo.Keys(p.perms) {
		want := p.perms[guildID]
		current, err := c.client.Permissions(ctx, guildID, id)
		if err != nil {
			if errutil.IsForbidden(err) {
				c.log.WithFields(map[string]any{"command": p.key.name, "guildID": guildID}).Warn("Missing access to command permissions")
				report.skip(guildID)
				continue
			}
			return &SyncError{Scope: scope, Command: p.key.name, Op: "get_permissions", Err: err}
		}
		if want.Equal(model.PermissionsFromDiscord(current)) {
			continue
		}
		if err := c.client.SetPermissions(ctx, guildID, id, want.ToDiscord()); err != nil {
			if errutil.IsForbidden(err) {
				c.log.WithFields(map[string]any{"command": p.key.name, "guildID": guildID}).Warn("Missing access to command permissions")
				report.skip(guildID)
				continue
			}
			return &SyncError{Scope: scope, Command: p.key.name, Op: "set_permissions", Err: err}
		}
		report.PermissionsUpdated++
	}
	return nil
}

// nukeScope deletes every remote command of a scope. A forbidden scope counts
// as skipped rather than failed.
func (c *Cache) nukeScope(ctx context.Context, scope string, report *SyncReport) (int, error) {
	guildID := wireScope(scope)
	existing, err := c.client.List(ctx, guildID)
	if err != nil {
		return 0, &SyncError{Scope: scope, Op: "list", Err: err}
	}
	deleted := 0
	for _, r := range existing {
		if err := c.client.Delete(ctx, guildID, r.ID); err != nil {
			if errutil.IsForbidden(err) {
				c.log.WithField("scope", scope).Warn("Missing access to delete commands, skipping scope")
				report.skip(scope)
				return deleted, nil
			}
			return deleted, &SyncError{Scope: scope, Command: r.Name, Op: "delete", Err: err}
		}
		deleted++
	}

	c.mu.Lock()
	if tree := c.scopes[scope]; tree != nil {
		for _, key := range tree.order {
			c.clearIDLocked(location{scope: scope, key: key})
		}
	}
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.DeleteScope(scope); err != nil {
			c.log.WithError(err).WithField("scope", scope).Warn("Failed to forget scope")
		}
	}
	return deleted, nil
}

// Nuke deletes every remote command in the given scopes ("globals" or guild
// ids). Local declarations stay; a later Sync recreates them.
func (c *Cache) Nuke(ctx context.Context, scopes ...string) (*SyncReport, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	report := &SyncReport{}
	for _, scope := range scopes {
		n, err := c.nukeScope(ctx, scope, report)
		report.Deleted += n
		if err != nil {
			return report, err
		}
	}
	c.log.WithFields(map[string]any{"scopes": scopes, "deleted": report.Deleted}).Info("Cleared remote commands")
	return report, nil
}

func (c *Cache) entryOf(cmd *model.Command) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, scope := range c.scopeOrder {
		var found *Entry
		for _, n := range c.scopes[scope].top {
			n.walk(func(e *Entry) {
				if e.Command == cmd {
					found = e
				}
			})
			if found != nil {
				return found, true
			}
		}
	}
	return nil, false
}

// Edit applies fn to a registered command and pushes the result. If fn fails
// or the edited command no longer fits the tree, the previous definition is
// put back and nothing is sent.
func (c *Cache) Edit(ctx context.Context, cmd *model.Command, fn func(*model.Command) error) error {
	entry, ok := c.entryOf(cmd)
	if !ok {
		return fmt.Errorf("edit %s: %w", cmd, ErrUnknownCommand)
	}
	before := cmd.Clone()
	oldIDs := cmd.IDs()
	oldKey := topKey{cmd.Type(), cmd.Path()[0]}

	c.Remove(cmd)
	if err := fn(cmd); err != nil {
		cmd.Reset(before)
		if addErr := c.Add(*entry); addErr != nil {
			return errors.Join(err, addErr)
		}
		return fmt.Errorf("edit %s: %w", cmd, err)
	}
	if err := c.Add(*entry); err != nil {
		cmd.Reset(before)
		if restoreErr := c.Add(*entry); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	newScopes := cmd.Scopes()
	report := &SyncReport{}
	for _, scope := range lo.Union(before.Scopes(), newScopes) {
		if err := c.syncScope(ctx, scope, false, report); err != nil {
			return err
		}
		if id := oldIDs[scope]; id != "" && !c.hasTop(scope, oldKey) {
			if err := c.client.Delete(ctx, wireScope(scope), id); err != nil && !errutil.IsNotFound(err) {
				return &SyncError{Scope: scope, Command: oldKey.name, Op: "delete", Err: err}
			}
			c.forget(scope, oldKey.typ, oldKey.name)
		}
		if !slices.Contains(newScopes, scope) {
			cmd.SetID(scope, "")
		}
	}
	return nil
}

// Delete removes a command locally and remotely. When it was one subcommand
// among several, the parent is re-synced instead of deleted.
func (c *Cache) Delete(ctx context.Context, cmd *model.Command) error {
	ids := cmd.IDs()
	key := topKey{cmd.Type(), cmd.Path()[0]}
	c.mu.RLock()
	scopes := c.scopesOfLocked(cmd)
	c.mu.RUnlock()
	if !c.Remove(cmd) {
		return fmt.Errorf("delete %s: %w", cmd, ErrUnknownCommand)
	}

	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	report := &SyncReport{}
	for _, scope := range scopes {
		cmd.SetID(scope, "")
		if c.hasTop(scope, key) {
			if err := c.syncScope(ctx, scope, false, report); err != nil {
				return err
			}
			continue
		}
		id := ids[scope]
		if id == "" {
			continue
		}
		if err := c.client.Delete(ctx, wireScope(scope), id); err != nil && !errutil.IsNotFound(err) {
			return &SyncError{Scope: scope, Command: key.name, Op: "delete", Err: err}
		}
		c.forget(scope, key.typ, key.name)
	}
	return nil
}

// UpdatePermissions stores a new allow/deny list for guildID on cmd and sends it.
func (c *Cache) UpdatePermissions(ctx context.Context, cmd *model.Command, guildID string, p model.Permissions) error {
	if err := cmd.SetPermissions(guildID, p); err != nil {
		return err
	}
	scope := model.GlobalScope
	if slices.Contains(cmd.GuildIDs(), guildID) {
		scope = guildID
	}
	id := cmd.ID(scope)
	if id == "" {
		return fmt.Errorf("update permissions of %s: %w", cmd, ErrNotSynced)
	}
	if err := c.client.SetPermissions(ctx, guildID, id, p.ToDiscord()); err != nil {
		return &SyncError{Scope: scope, Command: cmd.QualifiedName(), Op: "set_permissions", Err: err}
	}
	return nil
}
