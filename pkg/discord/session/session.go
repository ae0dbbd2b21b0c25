package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/errutil"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// Intents are the gateway intents an interaction bot needs: guild create
// events feed the state cache and the guild list used when pruning unused
// guild commands.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

var (
	newSession   = discordgo.New
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// Configure is called on the session after creation and before the gateway
// connection opens, so handlers registered there see the Ready event.
type Configure func(s *discordgo.Session)

// NewDiscordSession creates a bot session, runs configure hooks and opens the gateway.
func NewDiscordSession(token string, configure ...Configure) (*discordgo.Session, error) {
	log := logging.WithField("component", "session")
	if token == "" {
		log.Error("Discord bot token is empty. Please set the token before starting the bot.")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession("Bot " + token)
		return sessionErr
	}); err != nil {
		log.WithError(err).Error("Failed to create Discord session")
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	s.Identify.Intents = Intents
	s.StateEnabled = true
	for _, fn := range configure {
		if fn != nil {
			fn(s)
		}
	}

	log.Info("Connecting to Discord...")
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		log.WithError(err).Error("Failed to connect to Discord")
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.Info("Connected to Discord successfully")
	return s, nil
}

// Close closes the gateway connection.
func Close(s *discordgo.Session) error {
	if s == nil {
		return nil
	}
	return closeSession(s)
}
