package discordui

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/config"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/core"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/remote/remotetest"
	"github.com/small-frappuccino/discordui/pkg/discord/components"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/small-frappuccino/discordui/pkg/service"
	"github.com/small-frappuccino/discordui/pkg/task"
	"github.com/stretchr/testify/suite"
)

type UISuite struct {
	suite.Suite

	session  *discordgo.Session
	registry *remotetest.Registry
	cfg      config.Config
	ui       *UI
}

func TestUISuite(t *testing.T) {
	suite.Run(t, new(UISuite))
}

func (s *UISuite) SetupTest() {
	session, err := discordgo.New("Bot test-token")
	s.Require().NoError(err)
	s.session = session
	s.registry = remotetest.New()
	s.cfg = config.Config{
		ApplicationID: "app",
		ParseMethod:   "auto",
		SyncRate:      1000,
		SyncBurst:     10,
		WaitSync:      true,
	}
	s.ui = s.build(s.cfg)
}

func (s *UISuite) TearDownTest() {
	s.NoError(s.ui.Close(context.Background()))
}

func (s *UISuite) build(cfg config.Config) *UI {
	ui, err := New(s.session, cfg, WithRemote(s.registry), WithLogger(logging.Discard()))
	s.Require().NoError(err)
	return ui
}

func noop(*core.Context) error { return nil }

func (s *UISuite) TestStartSyncsDeclaredCommands() {
	_, err := s.ui.Slash("ping", "check latency", nil, noop)
	s.Require().NoError(err)
	_, err = s.ui.UserCommand("Inspect", noop)
	s.Require().NoError(err)

	s.Require().NoError(s.ui.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.ui.Commands.WaitSynced(ctx))
	s.Len(s.registry.Snapshot(""), 2)

	for _, info := range s.ui.Services() {
		s.Equal(service.StateRunning, info.State, info.Name)
	}
}

func (s *UISuite) TestConfiguredGuildsScopeCommands() {
	cfg := s.cfg
	cfg.GuildIDs = []string{"g1"}
	ui := s.build(cfg)
	defer ui.Close(context.Background())

	cmd, err := ui.Slash("ping", "check latency", nil, noop)
	s.Require().NoError(err)
	s.Equal([]string{"g1"}, cmd.GuildIDs())

	cmd, err = ui.Slash("echo", "repeat text", nil, noop, model.WithGuilds("g2"))
	s.Require().NoError(err)
	s.Equal([]string{"g2"}, cmd.GuildIDs())
}

func (s *UISuite) TestSyncClearsGuildsWithoutCommands() {
	s.registry.Seed("g9", &discordgo.ApplicationCommand{Name: "stale", Description: "left over"})
	s.Require().NoError(s.session.State.GuildAdd(&discordgo.Guild{ID: "g9"}))

	cfg := s.cfg
	cfg.DeleteUnused = true
	ui := s.build(cfg)
	defer ui.Close(context.Background())

	report, err := ui.Sync(context.Background())
	s.Require().NoError(err)
	s.Equal(1, report.Deleted)
	s.Empty(s.registry.Snapshot("g9"))
}

func (s *UISuite) TestQueuedSyncRequestsCollapse() {
	_, err := s.ui.Slash("ping", "check latency", nil, noop)
	s.Require().NoError(err)

	unblock := make(chan struct{})
	s.ui.Tasks.RegisterHandler("test.block", func(context.Context, any) error {
		<-unblock
		return nil
	})
	ctx := context.Background()
	s.Require().NoError(s.ui.Tasks.Dispatch(ctx, task.Task{Type: "test.block", Options: task.Options{GroupKey: "commands"}}))

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.ui.RequestSync(ctx))
	}
	close(unblock)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(s.ui.Commands.WaitSynced(waitCtx))
	time.Sleep(50 * time.Millisecond)
	s.Equal(1, s.registry.Count("list"))
	s.Equal(1, s.registry.Count("create"))
}

func (s *UISuite) TestDuplicateListener() {
	h := func(context.Context, *components.Event) error { return nil }
	s.Require().NoError(s.ui.Listen("confirm", h))
	s.ErrorIs(s.ui.Listen("confirm", h), components.ErrDuplicateListener)
}

func (s *UISuite) TestNewValidatesConfig() {
	cfg := s.cfg
	cfg.ApplicationID = ""
	_, err := New(s.session, cfg, WithRemote(s.registry), WithLogger(logging.Discard()))
	s.ErrorIs(err, ErrNoApplicationID)

	cfg = s.cfg
	cfg.ParseMethod = "guess"
	_, err = New(s.session, cfg, WithRemote(s.registry), WithLogger(logging.Discard()))
	s.Error(err)

	_, err = New(nil, s.cfg)
	s.Error(err)
}
