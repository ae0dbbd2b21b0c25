// Package remotetest provides an in-memory command registry that satisfies
// remote.Session, for tests that exercise sync end to end.
package remotetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Registry keeps commands per scope ("" for global) and counts every call.
type Registry struct {
	mu        sync.Mutex
	nextID    int
	commands  map[string]map[string]*discordgo.ApplicationCommand
	perms     map[string][]*discordgo.ApplicationCommandPermissions
	forbidden map[string]bool
	failNext  map[string]error

	Calls map[string]int
}

func New() *Registry {
	return &Registry{
		nextID:    100,
		commands:  make(map[string]map[string]*discordgo.ApplicationCommand),
		perms:     make(map[string][]*discordgo.ApplicationCommandPermissions),
		forbidden: make(map[string]bool),
		failNext:  make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// Forbid makes every call against guildID answer 403.
func (r *Registry) Forbid(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forbidden[guildID] = true
}

// FailNext makes the next call of op (for example "create") for the command
// named name fail with err.
func (r *Registry) FailNext(op, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext[op+"/"+name] = err
}

// Seed stores a command as if it had been created earlier and returns its id.
func (r *Registry) Seed(guildID string, cmd *discordgo.ApplicationCommand) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(guildID, cmd).ID
}

// Count returns how many times op was called.
func (r *Registry) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Calls[op]
}

// ResetCounts clears the call counters.
func (r *Registry) ResetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = make(map[string]int)
}

// Snapshot lists the commands of a scope sorted by name.
func (r *Registry) Snapshot(guildID string) []*discordgo.ApplicationCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(guildID)
}

func forbiddenError() error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
		Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess, Message: "Missing Access"},
	}
}

func notFoundError() error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
}

func (r *Registry) enter(op, guildID, name string) error {
	r.Calls[op]++
	if r.forbidden[guildID] {
		return forbiddenError()
	}
	if err, ok := r.failNext[op+"/"+name]; ok {
		delete(r.failNext, op+"/"+name)
		return err
	}
	return nil
}

// copyCommand deep copies through JSON, the same way the API would hand it back.
func copyCommand(cmd *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
	b, err := json.Marshal(cmd)
	if err != nil {
		panic(err)
	}
	var out discordgo.ApplicationCommand
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func (r *Registry) store(guildID string, cmd *discordgo.ApplicationCommand) *discordgo.ApplicationCommand {
	c := copyCommand(cmd)
	r.nextID++
	c.ID = strconv.Itoa(r.nextID)
	c.GuildID = guildID
	if c.Type == 0 {
		c.Type = discordgo.ChatApplicationCommand
	}
	if r.commands[guildID] == nil {
		r.commands[guildID] = make(map[string]*discordgo.ApplicationCommand)
	}
	r.commands[guildID][c.ID] = c
	return copyCommand(c)
}

func (r *Registry) list(guildID string) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(r.commands[guildID]))
	for _, c := range r.commands[guildID] {
		out = append(out, copyCommand(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) ApplicationCommands(appID, guildID string, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("list", guildID, ""); err != nil {
		return nil, err
	}
	return r.list(guildID), nil
}

func (r *Registry) ApplicationCommand(appID, guildID, cmdID string, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("get", guildID, ""); err != nil {
		return nil, err
	}
	c, ok := r.commands[guildID][cmdID]
	if !ok {
		return nil, notFoundError()
	}
	return copyCommand(c), nil
}

func (r *Registry) ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("create", guildID, cmd.Name); err != nil {
		return nil, err
	}
	for _, existing := range r.commands[guildID] {
		if existing.Name == cmd.Name && existing.Type == cmd.Type {
			return nil, errors.New("remotetest: duplicate command name")
		}
	}
	return r.store(guildID, cmd), nil
}

func (r *Registry) ApplicationCommandEdit(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("edit", guildID, cmd.Name); err != nil {
		return nil, err
	}
	if _, ok := r.commands[guildID][cmdID]; !ok {
		return nil, notFoundError()
	}
	c := copyCommand(cmd)
	c.ID = cmdID
	c.GuildID = guildID
	if c.Type == 0 {
		c.Type = discordgo.ChatApplicationCommand
	}
	r.commands[guildID][cmdID] = c
	return copyCommand(c), nil
}

func (r *Registry) ApplicationCommandDelete(appID, guildID, cmdID string, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("delete", guildID, ""); err != nil {
		return err
	}
	if _, ok := r.commands[guildID][cmdID]; !ok {
		return notFoundError()
	}
	delete(r.commands[guildID], cmdID)
	delete(r.perms, permKey(guildID, cmdID))
	return nil
}

func (r *Registry) ApplicationCommandPermissions(appID, guildID, cmdID string, _ ...discordgo.RequestOption) (*discordgo.GuildApplicationCommandPermissions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("get_permissions", guildID, ""); err != nil {
		return nil, err
	}
	p, ok := r.perms[permKey(guildID, cmdID)]
	if !ok {
		return nil, notFoundError()
	}
	return &discordgo.GuildApplicationCommandPermissions{ID: cmdID, GuildID: guildID, Permissions: p}, nil
}

func (r *Registry) ApplicationCommandPermissionsEdit(appID, guildID, cmdID string, permissions *discordgo.ApplicationCommandPermissionsList, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("set_permissions", guildID, ""); err != nil {
		return err
	}
	r.perms[permKey(guildID, cmdID)] = append([]*discordgo.ApplicationCommandPermissions(nil), permissions.Permissions...)
	return nil
}

func permKey(guildID, cmdID string) string {
	return fmt.Sprintf("%s/%s", guildID, cmdID)
}
