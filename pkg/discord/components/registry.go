package components

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

var (
	ErrDuplicateListener = errors.New("components: custom id already has a listener")
	ErrWaitTimeout       = errors.New("components: timed out waiting for a component interaction")
)

// Event is a pressed button or a submitted select menu.
type Event struct {
	Interaction *interaction.Interaction
	CustomID    string
	Type        discordgo.ComponentType
	Values      []string
	MessageID   string
	UserID      string
}

func (e *Event) IsButton() bool { return e.Type == discordgo.ButtonComponent }

// IsSelect reports whether the event comes from any kind of select menu.
func (e *Event) IsSelect() bool {
	switch e.Type {
	case discordgo.SelectMenuComponent, discordgo.UserSelectMenuComponent, discordgo.RoleSelectMenuComponent,
		discordgo.MentionableSelectMenuComponent, discordgo.ChannelSelectMenuComponent:
		return true
	}
	return false
}

// NewEvent builds the event for a component interaction.
func NewEvent(i *interaction.Interaction) (*Event, error) {
	raw := i.Raw()
	if raw.Type != discordgo.InteractionMessageComponent {
		return nil, fmt.Errorf("components: interaction type %d is not a component", raw.Type)
	}
	data := raw.MessageComponentData()
	e := &Event{
		Interaction: i,
		CustomID:    data.CustomID,
		Type:        data.ComponentType,
		Values:      data.Values,
	}
	if raw.Message != nil {
		e.MessageID = raw.Message.ID
	}
	if u := i.User(); u != nil {
		e.UserID = u.ID
	}
	return e, nil
}

// Handler reacts to a component event.
type Handler func(ctx context.Context, e *Event) error

// Filter selects the events a waiter accepts.
type Filter func(e *Event) bool

func ByCustomID(id string) Filter   { return func(e *Event) bool { return e.CustomID == id } }
func ByUser(userID string) Filter   { return func(e *Event) bool { return e.UserID == userID } }
func ByMessage(msgID string) Filter { return func(e *Event) bool { return e.MessageID == msgID } }

// All combines filters; nil filters are ignored.
func All(filters ...Filter) Filter {
	return func(e *Event) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

type snapshot struct {
	byID    map[string]Handler
	buttons []Handler
	selects []Handler
}

type waiter struct {
	filter Filter
	ch     chan *Event
}

// Registry maps custom ids to handlers. Reads take a snapshot, so dispatch
// never blocks on registration.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
	waiters map[string]*waiter
	log     *logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(l *logging.Logger) *Registry {
	r := &Registry{
		waiters: make(map[string]*waiter),
		log:     logging.OrGlobal(l).WithField("component", "components"),
	}
	r.current.Store(&snapshot{byID: map[string]Handler{}})
	return r
}

// update must be called with r.mu held.
func (r *Registry) update(fn func(next *snapshot)) {
	cur := r.current.Load()
	next := &snapshot{
		byID:    make(map[string]Handler, len(cur.byID)+1),
		buttons: append([]Handler(nil), cur.buttons...),
		selects: append([]Handler(nil), cur.selects...),
	}
	for k, v := range cur.byID {
		next.byID[k] = v
	}
	fn(next)
	r.current.Store(next)
}

// Register binds customID to h. Binding an id twice fails.
func (r *Registry) Register(customID string, h Handler) error {
	if customID == "" || h == nil {
		return fmt.Errorf("components: custom id and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.current.Load().byID[customID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateListener, customID)
	}
	r.update(func(next *snapshot) { next.byID[customID] = h })
	return nil
}

// Remove unbinds customID and reports whether it was bound.
func (r *Registry) Remove(customID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.current.Load().byID[customID]; !ok {
		return false
	}
	r.update(func(next *snapshot) { delete(next.byID, customID) })
	return true
}

// Has reports whether customID is bound.
func (r *Registry) Has(customID string) bool {
	_, ok := r.current.Load().byID[customID]
	return ok
}

// OnButton adds a listener called for every button press.
func (r *Registry) OnButton(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.update(func(next *snapshot) { next.buttons = append(next.buttons, h) })
}

// OnSelect adds a listener called for every select menu submission.
func (r *Registry) OnSelect(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.update(func(next *snapshot) { next.selects = append(next.selects, h) })
}

// Dispatch delivers e to every matching waiter, the listener bound to its custom
// id, then the generic button or select listeners. It reports whether a waiter
// or a bound listener took the event; the error is the bound listener's.
func (r *Registry) Dispatch(ctx context.Context, e *Event) (bool, error) {
	matched := r.deliverToWaiters(e)

	snap := r.current.Load()
	var err error
	if h, ok := snap.byID[e.CustomID]; ok {
		matched = true
		err = h(ctx, e)
	}

	generic := snap.selects
	if e.IsButton() {
		generic = snap.buttons
	}
	for _, h := range generic {
		if gerr := h(ctx, e); gerr != nil {
			r.log.WithFields(map[string]any{"custom_id": e.CustomID, "error": gerr.Error()}).Warn("Component listener failed")
		}
	}
	return matched, err
}

// deliverToWaiters hands e to every waiter whose filter accepts it.
func (r *Registry) deliverToWaiters(e *Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivered := false
	for id, w := range r.waiters {
		if w.filter != nil && !w.filter(e) {
			continue
		}
		select {
		case w.ch <- e:
			delete(r.waiters, id)
			delivered = true
		default:
		}
	}
	return delivered
}

// WaitFor blocks until a component event accepted by filter arrives, the
// timeout elapses (ErrWaitTimeout) or ctx ends. The temporary waiter is
// removed on every path. A timeout <= 0 waits on ctx alone.
func (r *Registry) WaitFor(ctx context.Context, timeout time.Duration, filter Filter) (*Event, error) {
	id := uuid.NewString()
	w := &waiter{filter: filter, ch: make(chan *Event, 1)}

	r.mu.Lock()
	r.waiters[id] = w
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiters, id)
		r.mu.Unlock()
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case e := <-w.ch:
		return e, nil
	case <-expired:
		select {
		case e := <-w.ch:
			return e, nil
		default:
			return nil, ErrWaitTimeout
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Waiting returns the number of pending waiters.
func (r *Registry) Waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
