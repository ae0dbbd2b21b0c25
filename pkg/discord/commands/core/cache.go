package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/remote"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/small-frappuccino/discordui/pkg/storage"
)

// Store persists registry ids between runs. *storage.Store implements it.
type Store interface {
	Commands(scope string) ([]storage.CommandRecord, error)
	UpsertCommand(r storage.CommandRecord) error
	DeleteCommand(scope string, typ int, name string) error
	DeleteScope(scope string) error
	SetMetadata(key string, ts time.Time) error
}

var _ Store = (*storage.Store)(nil)

// Entry is a registered command with its callbacks.
type Entry struct {
	Command      *model.Command
	Handler      Handler
	Autocomplete AutocompleteHandler
}

type topKey struct {
	typ  model.CommandType
	name string
}

type node struct {
	entry    *Entry
	children map[string]*node
	order    []string
}

func (n *node) child(name string) *node {
	if n.children == nil {
		return nil
	}
	return n.children[name]
}

// walk visits every entry below n in declaration order.
func (n *node) walk(fn func(*Entry)) {
	if n.entry != nil {
		fn(n.entry)
	}
	for _, name := range n.order {
		n.children[name].walk(fn)
	}
}

type scopeTree struct {
	top   map[topKey]*node
	order []topKey
}

type location struct {
	scope string
	key   topKey
}

// Cache mirrors the commands this process declares, per scope ("globals" or a
// guild id), command type and name, with subcommands nested below their base.
// A flat index maps registry ids to top-level commands for dispatch.
type Cache struct {
	mu         sync.RWMutex
	scopes     map[string]*scopeTree
	scopeOrder []string
	byID       map[string]location

	client *remote.Client
	store  Store
	log    *logging.Logger

	syncMu     sync.Mutex
	syncedOnce sync.Once
	synced     chan struct{}
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStore persists registry ids and restores them with Restore.
func WithStore(s Store) CacheOption { return func(c *Cache) { c.store = s } }

func WithLogger(l *logging.Logger) CacheOption { return func(c *Cache) { c.log = l } }

// NewCache creates an empty cache that syncs through client.
func NewCache(client *remote.Client, opts ...CacheOption) *Cache {
	c := &Cache{
		scopes: make(map[string]*scopeTree),
		byID:   make(map[string]location),
		client: client,
		synced: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrGlobal(c.log).WithField("component", "command_cache")
	return c
}

// Add registers e in every scope of its command. It fails without changing
// anything when the command is already registered or its path collides with
// an existing tree.
func (c *Cache) Add(e Entry) error {
	if e.Command == nil {
		return fmt.Errorf("add command: nil command")
	}
	if e.Handler == nil {
		return fmt.Errorf("add %s: nil handler", e.Command)
	}
	cmd := e.Command
	typ, path, scopes := cmd.Type(), cmd.Path(), cmd.Scopes()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, scope := range scopes {
		if err := c.checkPlacementLocked(scope, typ, path); err != nil {
			return fmt.Errorf("add %s in %s: %w", cmd, scope, err)
		}
	}

	entry := &e
	for _, scope := range scopes {
		c.placeLocked(scope, typ, path, entry)
		if id := cmd.ID(scope); id != "" {
			c.byID[id] = location{scope: scope, key: topKey{typ, path[0]}}
		}
	}
	c.warnCollisionsLocked(cmd, typ, path[0], scopes)
	return nil
}

func (c *Cache) checkPlacementLocked(scope string, typ model.CommandType, path []string) error {
	tree := c.scopes[scope]
	if tree == nil {
		return nil
	}
	n := tree.top[topKey{typ, path[0]}]
	if n == nil {
		return nil
	}
	if len(path) == 1 {
		if n.entry != nil {
			return ErrDuplicateCommand
		}
		return ErrConflictingCommand
	}
	if n.entry != nil {
		return ErrConflictingCommand
	}
	for _, name := range path[1 : len(path)-1] {
		next := n.child(name)
		if next == nil {
			return nil
		}
		if next.entry != nil {
			return ErrConflictingCommand
		}
		n = next
	}
	leaf := n.child(path[len(path)-1])
	switch {
	case leaf == nil:
		return nil
	case leaf.entry != nil:
		return ErrDuplicateCommand
	default:
		return ErrConflictingCommand
	}
}

func (c *Cache) placeLocked(scope string, typ model.CommandType, path []string, e *Entry) {
	tree := c.scopes[scope]
	if tree == nil {
		tree = &scopeTree{top: make(map[topKey]*node)}
		c.scopes[scope] = tree
		c.scopeOrder = append(c.scopeOrder, scope)
	}
	key := topKey{typ, path[0]}
	n := tree.top[key]
	if n == nil {
		n = &node{}
		tree.top[key] = n
		tree.order = append(tree.order, key)
	}
	for _, name := range path[1:] {
		next := n.child(name)
		if next == nil {
			next = &node{}
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			n.children[name] = next
			n.order = append(n.order, name)
		}
		n = next
	}
	n.entry = e
}

// warnCollisionsLocked logs commands that exist both globally and in a guild.
// Both stay registered; dispatch by name prefers the guild one.
func (c *Cache) warnCollisionsLocked(cmd *model.Command, typ model.CommandType, top string, scopes []string) {
	key := topKey{typ, top}
	for _, scope := range scopes {
		var others []string
		if scope == model.GlobalScope {
			for _, s := range c.scopeOrder {
				if s != model.GlobalScope && c.scopes[s].top[key] != nil {
					others = append(others, s)
				}
			}
		} else if g := c.scopes[model.GlobalScope]; g != nil && g.top[key] != nil {
			others = append(others, model.GlobalScope)
		}
		if len(others) > 0 {
			c.log.WithFields(map[string]any{
				"command": cmd.QualifiedName(),
				"scope":   scope,
				"also_in": others,
			}).Warn("Command name registered both globally and in a guild")
		}
	}
}

// Remove drops cmd from the local tree. Remote commands are left alone; see Delete.
func (c *Cache) Remove(cmd *model.Command) bool {
	if cmd == nil {
		return false
	}
	typ, path := cmd.Type(), cmd.Path()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	for _, scope := range c.scopesOfLocked(cmd) {
		tree := c.scopes[scope]
		key := topKey{typ, path[0]}
		top := tree.top[key]
		if top == nil {
			continue
		}
		ok, empty := removeFrom(top, path[1:], cmd)
		if !ok {
			continue
		}
		removed = true
		if empty {
			delete(tree.top, key)
			tree.order = slices.DeleteFunc(tree.order, func(k topKey) bool { return k == key })
			loc := location{scope: scope, key: key}
			for id, l := range c.byID {
				if l == loc {
					delete(c.byID, id)
				}
			}
		}
		if len(tree.top) == 0 {
			delete(c.scopes, scope)
			c.scopeOrder = slices.DeleteFunc(c.scopeOrder, func(s string) bool { return s == scope })
		}
	}
	return removed
}

// scopesOfLocked lists every scope whose tree holds cmd, which may differ from
// cmd.Scopes() while an edit is in flight.
func (c *Cache) scopesOfLocked(cmd *model.Command) []string {
	var out []string
	for _, scope := range c.scopeOrder {
		found := false
		for _, n := range c.scopes[scope].top {
			n.walk(func(e *Entry) {
				if e.Command == cmd {
					found = true
				}
			})
			if found {
				break
			}
		}
		if found {
			out = append(out, scope)
		}
	}
	return out
}

func removeFrom(n *node, path []string, cmd *model.Command) (removed, empty bool) {
	if len(path) == 0 {
		if n.entry == nil || n.entry.Command != cmd {
			return false, false
		}
		n.entry = nil
		return true, len(n.children) == 0
	}
	child := n.child(path[0])
	if child == nil {
		return false, false
	}
	removed, childEmpty := removeFrom(child, path[1:], cmd)
	if childEmpty {
		delete(n.children, path[0])
		n.order = slices.DeleteFunc(n.order, func(s string) bool { return s == path[0] })
	}
	return removed, removed && n.entry == nil && len(n.children) == 0
}

// Lookup finds the entry addressed by a registry id and the subcommand path
// below it (group and subcommand names, possibly empty). It also returns the
// scope the id belongs to.
func (c *Cache) Lookup(id string, sub []string) (*Entry, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.byID[id]
	if !ok {
		return nil, "", false
	}
	n := c.scopes[loc.scope].top[loc.key]
	e := descend(n, sub)
	return e, loc.scope, e != nil
}

// Find looks a command up by scope, type and full path.
func (c *Cache) Find(scope string, typ model.CommandType, path ...string) (*Entry, bool) {
	if len(path) == 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := c.scopes[scope]
	if tree == nil {
		return nil, false
	}
	e := descend(tree.top[topKey{typ, path[0]}], path[1:])
	return e, e != nil
}

func descend(n *node, path []string) *Entry {
	for _, name := range path {
		if n == nil {
			return nil
		}
		n = n.child(name)
	}
	if n == nil {
		return nil
	}
	return n.entry
}

// Scopes lists the scopes with declared commands in declaration order.
func (c *Cache) Scopes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.scopeOrder...)
}

// Commands lists the commands of one scope in declaration order.
func (c *Cache) Commands(scope string) []*model.Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tree := c.scopes[scope]
	if tree == nil {
		return nil
	}
	var out []*model.Command
	for _, key := range tree.order {
		tree.top[key].walk(func(e *Entry) { out = append(out, e.Command) })
	}
	return out
}

// All lists every declared command once.
func (c *Cache) All() []*model.Command {
	var out []*model.Command
	for _, scope := range c.Scopes() {
		out = append(out, c.Commands(scope)...)
	}
	return lo.Uniq(out)
}

// setIDLocked records id for the top-level command at loc and all commands below it.
func (c *Cache) setIDLocked(loc location, id string) {
	n := c.scopes[loc.scope].top[loc.key]
	if n == nil {
		return
	}
	for old, l := range c.byID {
		if l == loc && old != id {
			delete(c.byID, old)
		}
	}
	c.byID[id] = loc
	n.walk(func(e *Entry) { e.Command.SetID(loc.scope, id) })
}

func (c *Cache) clearIDLocked(loc location) {
	for old, l := range c.byID {
		if l == loc {
			delete(c.byID, old)
		}
	}
	if n := c.scopes[loc.scope].top[loc.key]; n != nil {
		n.walk(func(e *Entry) { e.Command.SetID(loc.scope, "") })
	}
}

// Restore re-adopts persisted registry ids whose recorded definition hash
// still matches the local declaration, so interactions can be dispatched by
// id before the first sync. It returns how many commands were adopted.
func (c *Cache) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	records, err := c.store.Commands("")
	if err != nil {
		return 0, fmt.Errorf("restore command ids: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	adopted := 0
	for _, r := range records {
		if ctx.Err() != nil {
			return adopted, ctx.Err()
		}
		tree := c.scopes[r.Scope]
		if tree == nil {
			continue
		}
		key := topKey{model.CommandType(r.Type), r.Name}
		n := tree.top[key]
		if n == nil {
			continue
		}
		if hashOf(render(key, n)) != r.Hash {
			c.log.WithFields(map[string]any{"command": r.Name, "scope": r.Scope}).Debug("Stored command id is stale, waiting for sync")
			continue
		}
		c.setIDLocked(location{scope: r.Scope, key: key}, r.RegistryID)
		adopted++
	}
	c.log.WithFields(map[string]any{"adopted": adopted, "stored": len(records)}).Info("Restored command ids")
	return adopted, nil
}

// Synced reports whether a full sync has completed.
func (c *Cache) Synced() bool {
	select {
	case <-c.synced:
		return true
	default:
		return false
	}
}

// WaitSynced blocks until the first full sync completes or ctx ends.
func (c *Cache) WaitSynced(ctx context.Context) error {
	select {
	case <-c.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) markSynced() {
	c.syncedOnce.Do(func() { close(c.synced) })
}
