package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui"
	"github.com/small-frappuccino/discordui/pkg/config"
	"github.com/small-frappuccino/discordui/pkg/discord/session"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/small-frappuccino/discordui/pkg/storage"
	"github.com/small-frappuccino/discordui/pkg/util"
)

// Declare registers an application's commands and listeners on the UI.
type Declare func(ui *discordui.UI) error

// Run bootstraps a bot and blocks until shutdown.
// appName affects the data directory and database path. Configuration is read
// from DISCORDUI_* variables, with $HOME/.local/bin/.env filling in gaps.
func Run(appName string, declare Declare) error {
	started := time.Now()

	cfg, err := config.Load(appName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger first so subsequent steps can log meaningfully
	if err := logging.Setup(loggingOptions(cfg)); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer logging.Close()
	log := logging.WithField("app", appName)

	log.Info(formatStartupMessage(appName, AppVersion(), Version))

	if cfg.Token == "" {
		return fmt.Errorf("%sTOKEN not set in environment or .env file", config.Prefix)
	}

	// SQLite store for registry ids
	store := storage.NewStore(cfg.DBPath)
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer store.Close()

	log.Info("Attempting to authenticate with Discord API...")
	s, err := session.NewDiscordSession(cfg.Token, func(s *discordgo.Session) {
		s.ShouldRetryOnRateLimit = true
	})
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer session.Close(s)
	if s.State == nil || s.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	log.WithField("user", s.State.User.Username).Info("Authenticated with Discord")

	ui, err := discordui.New(s, *cfg, discordui.WithStore(store))
	if err != nil {
		return fmt.Errorf("create ui: %w", err)
	}
	if declare != nil {
		if err := declare(ui); err != nil {
			return fmt.Errorf("declare commands: %w", err)
		}
	}

	if err := ui.Start(context.Background()); err != nil {
		return err
	}
	log.WithFields(map[string]any{
		"commands": len(ui.Commands.All()),
		"startup":  time.Since(started).Round(time.Millisecond).String(),
	}).Info(fmt.Sprintf("%s running. Press Ctrl+C to stop...", appName))

	util.WaitForInterrupt()
	log.Info(fmt.Sprintf("Stopping %s...", appName))

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), 30*time.Second, fmt.Errorf("application shutdown"))
	defer cancel()
	if err := ui.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("Some services failed to stop cleanly")
	}
	return nil
}

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}
}

// formatStartupMessage names the app and its version, adding the library
// version only when it differs.
func formatStartupMessage(appName, appVersion, libVersion string) string {
	appName = strings.TrimSpace(appName)
	appVersion = strings.TrimSpace(appVersion)
	libVersion = strings.TrimSpace(libVersion)

	name := appName
	if appVersion != "" {
		name += " " + appVersion
	}
	if libVersion == "" || appVersion == libVersion {
		return fmt.Sprintf("Starting %s...", name)
	}
	return fmt.Sprintf("Starting %s (discordui %s)...", name, libVersion)
}
