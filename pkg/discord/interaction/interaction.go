package interaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/errutil"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/small-frappuccino/discordui/pkg/task"
)

// Session is the part of *discordgo.Session used to answer interactions.
type Session interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(i *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageDelete(i *discordgo.Interaction, messageID string, options ...discordgo.RequestOption) error
}

var _ Session = (*discordgo.Session)(nil)

// Scheduler runs delayed tasks; *task.Router implements it.
type Scheduler interface {
	After(delay time.Duration, t task.Task) task.Cancel
}

// Kind is the closed set of interaction kinds this package answers.
type Kind int

const (
	KindPing Kind = iota + 1
	KindCommand
	KindComponent
	KindAutocomplete
	KindModal
)

// KindOf maps the wire interaction type.
func KindOf(t discordgo.InteractionType) (Kind, bool) {
	switch t {
	case discordgo.InteractionPing:
		return KindPing, true
	case discordgo.InteractionApplicationCommand:
		return KindCommand, true
	case discordgo.InteractionMessageComponent:
		return KindComponent, true
	case discordgo.InteractionApplicationCommandAutocomplete:
		return KindAutocomplete, true
	case discordgo.InteractionModalSubmit:
		return KindModal, true
	}
	return 0, false
}

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindCommand:
		return "command"
	case KindComponent:
		return "component"
	case KindAutocomplete:
		return "autocomplete"
	case KindModal:
		return "modal"
	}
	return "unknown"
}

// State of the response lifecycle.
type State int

const (
	Fresh State = iota
	Deferred
	Responded
	FollowedUp
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Deferred:
		return "deferred"
	case Responded:
		return "responded"
	case FollowedUp:
		return "followed_up"
	}
	return "unknown"
}

const (
	// TokenLifetime is how long the interaction token accepts follow-ups.
	TokenLifetime = 15 * time.Minute
	// InitialDeadline is how long the platform waits for the first response.
	InitialDeadline = 3 * time.Second
)

// Interaction wraps one inbound interaction and tracks its response state.
// All methods are safe for concurrent use; transitions are serialized.
type Interaction struct {
	raw       *discordgo.Interaction
	kind      Kind
	session   Session
	scheduler Scheduler
	log       *logging.Logger

	mu     sync.Mutex
	state  State
	hidden bool
}

// Option configures an Interaction.
type Option func(*Interaction)

func WithScheduler(s Scheduler) Option { return func(i *Interaction) { i.scheduler = s } }

func WithLogger(l *logging.Logger) Option { return func(i *Interaction) { i.log = l } }

// New wraps raw. It fails for interaction types this package does not know.
func New(session Session, raw *discordgo.Interaction, opts ...Option) (*Interaction, error) {
	if raw == nil {
		return nil, fmt.Errorf("interaction: nil payload")
	}
	kind, ok := KindOf(raw.Type)
	if !ok {
		return nil, fmt.Errorf("interaction: unknown type %d", raw.Type)
	}
	i := &Interaction{raw: raw, kind: kind, session: session}
	for _, o := range opts {
		o(i)
	}
	i.log = logging.OrGlobal(i.log).WithFields(map[string]any{
		"interaction_id": raw.ID,
		"kind":           kind.String(),
	})
	return i, nil
}

func (i *Interaction) Raw() *discordgo.Interaction { return i.raw }
func (i *Interaction) Kind() Kind                  { return i.kind }
func (i *Interaction) ID() string                  { return i.raw.ID }
func (i *Interaction) GuildID() string             { return i.raw.GuildID }
func (i *Interaction) ChannelID() string           { return i.raw.ChannelID }
func (i *Interaction) Locale() discordgo.Locale    { return i.raw.Locale }

// User returns the invoking user, from the member in guilds.
func (i *Interaction) User() *discordgo.User {
	if i.raw.Member != nil && i.raw.Member.User != nil {
		return i.raw.Member.User
	}
	return i.raw.User
}

func (i *Interaction) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Hidden reports whether the first response or defer was ephemeral.
func (i *Interaction) Hidden() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.hidden
}

// CreatedAt is decoded from the interaction snowflake.
func (i *Interaction) CreatedAt() time.Time {
	t, err := discordgo.SnowflakeTimestamp(i.raw.ID)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ExpiresAt is the end of the token window. The platform enforces it; calls
// after this point fail remotely and the error is returned as is.
func (i *Interaction) ExpiresAt() time.Time {
	created := i.CreatedAt()
	if created.IsZero() {
		return created
	}
	return created.Add(TokenLifetime)
}

func (i *Interaction) commandLike() bool {
	return i.kind == KindCommand || i.kind == KindComponent || i.kind == KindModal
}

// Defer acknowledges the interaction without a message; a loading state is
// shown until Respond edits it. Deferring twice is logged and ignored.
func (i *Interaction) Defer(ctx context.Context, hidden bool) error {
	return i.deferAs(ctx, discordgo.InteractionResponseDeferredChannelMessageWithSource, hidden)
}

// DeferUpdate acknowledges a component interaction; a later Respond edits the
// message the component is attached to.
func (i *Interaction) DeferUpdate(ctx context.Context) error {
	if i.kind != KindComponent && i.kind != KindModal {
		return ErrNotSupported
	}
	return i.deferAs(ctx, discordgo.InteractionResponseDeferredMessageUpdate, false)
}

func (i *Interaction) deferAs(ctx context.Context, typ discordgo.InteractionResponseType, hidden bool) error {
	if !i.commandLike() {
		return ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != Fresh {
		i.log.WithField("state", i.state.String()).Error("Interaction already deferred or responded")
		return nil
	}
	resp := &discordgo.InteractionResponse{Type: typ}
	if typ == discordgo.InteractionResponseDeferredChannelMessageWithSource {
		resp.Data = &discordgo.InteractionResponseData{Flags: flags(hidden)}
	}
	if err := i.call("defer", func() error {
		return i.session.InteractionRespond(i.raw, resp, discordgo.WithContext(ctx))
	}); err != nil {
		return err
	}
	i.state = Deferred
	i.hidden = hidden
	return nil
}

// Respond sends the response. From Fresh it posts the initial callback, from
// Deferred it edits the placeholder, and once responded it sends a follow-up.
// The returned message is nil for an initial callback.
func (i *Interaction) Respond(ctx context.Context, r Response) (*discordgo.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !i.commandLike() {
		return nil, ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.respondLocked(ctx, r)
}

// Send sends a follow-up message, or the first response if there was none yet.
func (i *Interaction) Send(ctx context.Context, r Response) (*discordgo.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !i.commandLike() {
		return nil, ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Fresh || i.state == Deferred {
		return i.respondLocked(ctx, r)
	}
	return i.followupLocked(ctx, r)
}

func (i *Interaction) respondLocked(ctx context.Context, r Response) (*discordgo.Message, error) {
	switch i.state {
	case Responded, FollowedUp:
		return i.followupLocked(ctx, r)

	case Deferred:
		if err := i.deletableLocked(r); err != nil {
			return nil, err
		}
		var msg *discordgo.Message
		if err := i.call("respond_edit", func() error {
			var err error
			msg, err = i.session.InteractionResponseEdit(i.raw, r.edit(), discordgo.WithContext(ctx))
			return err
		}); err != nil {
			return nil, err
		}
		i.state = Responded
		i.scheduleDelete(r.DeleteAfter, "")
		return msg, nil

	default:
		resp := &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: r.data(r.Hidden),
		}
		if err := i.call("respond", func() error {
			return i.session.InteractionRespond(i.raw, resp, discordgo.WithContext(ctx))
		}); err != nil {
			return nil, err
		}
		i.state = Responded
		i.hidden = r.Hidden
		i.scheduleDelete(r.DeleteAfter, "")
		return nil, nil
	}
}

// deletableLocked rejects DeleteAfter on a message that is, or inherits,
// ephemeral. Must be called with i.mu held.
func (i *Interaction) deletableLocked(r Response) error {
	if r.DeleteAfter > 0 && (r.Hidden || i.hidden) {
		return ErrEphemeralDeletion
	}
	return nil
}

func (i *Interaction) followupLocked(ctx context.Context, r Response) (*discordgo.Message, error) {
	if err := i.deletableLocked(r); err != nil {
		return nil, err
	}
	hidden := r.Hidden || i.hidden
	var msg *discordgo.Message
	if err := i.call("followup", func() error {
		var err error
		msg, err = i.session.FollowupMessageCreate(i.raw, true, r.params(hidden), discordgo.WithContext(ctx))
		return err
	}); err != nil {
		return nil, err
	}
	i.state = FollowedUp
	if msg != nil {
		i.scheduleDelete(r.DeleteAfter, msg.ID)
	}
	return msg, nil
}

// Update replaces the message a component is attached to.
func (i *Interaction) Update(ctx context.Context, r Response) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if i.kind != KindComponent && i.kind != KindModal {
		return ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.state {
	case Fresh:
		resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseUpdateMessage, Data: r.data(false)}
		if err := i.call("update", func() error {
			return i.session.InteractionRespond(i.raw, resp, discordgo.WithContext(ctx))
		}); err != nil {
			return err
		}
	case Deferred:
		if err := i.deletableLocked(r); err != nil {
			return err
		}
		if err := i.call("update_edit", func() error {
			_, err := i.session.InteractionResponseEdit(i.raw, r.edit(), discordgo.WithContext(ctx))
			return err
		}); err != nil {
			return err
		}
	default:
		return ErrAlreadyResponded
	}
	i.state = Responded
	i.scheduleDelete(r.DeleteAfter, "")
	return nil
}

// Edit changes the original response.
func (i *Interaction) Edit(ctx context.Context, r Response) (*discordgo.Message, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !i.commandLike() {
		return nil, ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == Fresh {
		return nil, ErrNotResponded
	}
	if err := i.deletableLocked(r); err != nil {
		return nil, err
	}
	var msg *discordgo.Message
	err := i.call("edit", func() error {
		var err error
		msg, err = i.session.InteractionResponseEdit(i.raw, r.edit(), discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	if i.state == Deferred {
		i.state = Responded
	}
	i.scheduleDelete(r.DeleteAfter, "")
	return msg, nil
}

// DeleteOriginal deletes the original response.
func (i *Interaction) DeleteOriginal(ctx context.Context) error {
	if !i.commandLike() {
		return ErrNotSupported
	}
	i.mu.Lock()
	state, hidden := i.state, i.hidden
	i.mu.Unlock()
	if state == Fresh {
		return ErrNotResponded
	}
	if hidden {
		return ErrEphemeralDeletion
	}
	return i.call("delete_original", func() error {
		return i.session.InteractionResponseDelete(i.raw, discordgo.WithContext(ctx))
	})
}

// MaxChoices is the platform limit for one autocomplete result.
const MaxChoices = 25

// Choices answers an autocomplete interaction. Extra choices are dropped.
func (i *Interaction) Choices(ctx context.Context, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if i.kind != KindAutocomplete {
		return ErrNotSupported
	}
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != Fresh {
		return ErrAlreadyResponded
	}
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}
	if err := i.call("autocomplete", func() error {
		return i.session.InteractionRespond(i.raw, resp, discordgo.WithContext(ctx))
	}); err != nil {
		return err
	}
	i.state = Responded
	return nil
}

// Pong answers a ping.
func (i *Interaction) Pong(ctx context.Context) error {
	if i.kind != KindPing {
		return ErrNotSupported
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != Fresh {
		return ErrAlreadyResponded
	}
	if err := i.call("pong", func() error {
		return i.session.InteractionRespond(i.raw, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}, discordgo.WithContext(ctx))
	}); err != nil {
		return err
	}
	i.state = Responded
	return nil
}

func (i *Interaction) call(op string, fn func() error) error {
	if err := errutil.HandleDiscordError("interaction_"+op, fn); err != nil {
		return fmt.Errorf("interaction %s: %w", op, err)
	}
	return nil
}
