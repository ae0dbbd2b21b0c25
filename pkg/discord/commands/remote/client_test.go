package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/logging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) ApplicationCommands(appID, guildID string, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID)
	cmds, _ := args.Get(0).([]*discordgo.ApplicationCommand)
	return cmds, args.Error(1)
}

func (m *MockSession) ApplicationCommand(appID, guildID, cmdID string, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID, cmdID)
	cmd, _ := args.Get(0).(*discordgo.ApplicationCommand)
	return cmd, args.Error(1)
}

func (m *MockSession) ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID, cmd)
	out, _ := args.Get(0).(*discordgo.ApplicationCommand)
	return out, args.Error(1)
}

func (m *MockSession) ApplicationCommandEdit(appID, guildID, cmdID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	args := m.Called(appID, guildID, cmdID, cmd)
	out, _ := args.Get(0).(*discordgo.ApplicationCommand)
	return out, args.Error(1)
}

func (m *MockSession) ApplicationCommandDelete(appID, guildID, cmdID string, _ ...discordgo.RequestOption) error {
	return m.Called(appID, guildID, cmdID).Error(0)
}

func (m *MockSession) ApplicationCommandPermissions(appID, guildID, cmdID string, _ ...discordgo.RequestOption) (*discordgo.GuildApplicationCommandPermissions, error) {
	args := m.Called(appID, guildID, cmdID)
	out, _ := args.Get(0).(*discordgo.GuildApplicationCommandPermissions)
	return out, args.Error(1)
}

func (m *MockSession) ApplicationCommandPermissionsEdit(appID, guildID, cmdID string, permissions *discordgo.ApplicationCommandPermissionsList, _ ...discordgo.RequestOption) error {
	return m.Called(appID, guildID, cmdID, permissions).Error(0)
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func newTestClient(s Session) *Client {
	return NewClient(s, "app", WithLimiter(nil), WithLogger(logging.Discard()))
}

func TestListGuildForbiddenIsEmpty(t *testing.T) {
	s := new(MockSession)
	s.On("ApplicationCommands", "app", "guild").Return(nil, restError(http.StatusForbidden))

	cmds, err := newTestClient(s).ListGuild(context.Background(), "guild")
	require.NoError(t, err)
	require.Empty(t, cmds)
	s.AssertExpectations(t)
}

func TestListGlobalPropagatesErrors(t *testing.T) {
	s := new(MockSession)
	s.On("ApplicationCommands", "app", "").Return(nil, restError(http.StatusForbidden))

	_, err := newTestClient(s).ListGlobal(context.Background())
	require.Error(t, err)
}

func TestListGuildOtherErrors(t *testing.T) {
	s := new(MockSession)
	s.On("ApplicationCommands", "app", "guild").Return(nil, restError(http.StatusInternalServerError))

	_, err := newTestClient(s).List(context.Background(), "guild")
	require.Error(t, err)
	var restErr *discordgo.RESTError
	require.True(t, errors.As(err, &restErr))
}

func TestCreateEditDelete(t *testing.T) {
	s := new(MockSession)
	cmd := &discordgo.ApplicationCommand{Name: "ping", Description: "pong"}
	s.On("ApplicationCommandCreate", "app", "", cmd).Return(&discordgo.ApplicationCommand{ID: "1", Name: "ping"}, nil)
	s.On("ApplicationCommandEdit", "app", "g", "1", cmd).Return(&discordgo.ApplicationCommand{ID: "1", Name: "ping"}, nil)
	s.On("ApplicationCommandDelete", "app", "g", "1").Return(nil)

	c := newTestClient(s)
	ctx := context.Background()

	created, err := c.Create(ctx, "", cmd)
	require.NoError(t, err)
	require.Equal(t, "1", created.ID)

	_, err = c.Edit(ctx, "g", "1", cmd)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "g", "1"))
	s.AssertExpectations(t)
}

func TestCreateFailureIsWrapped(t *testing.T) {
	s := new(MockSession)
	cmd := &discordgo.ApplicationCommand{Name: "ping"}
	s.On("ApplicationCommandCreate", "app", "", cmd).Return(nil, errors.New("boom"))

	_, err := newTestClient(s).Create(context.Background(), "", cmd)
	require.ErrorContains(t, err, `create command "ping"`)
}

func TestPermissionsNotFoundIsEmpty(t *testing.T) {
	s := new(MockSession)
	s.On("ApplicationCommandPermissions", "app", "g", "1").Return(nil, restError(http.StatusNotFound))

	perms, err := newTestClient(s).Permissions(context.Background(), "g", "1")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestSetPermissions(t *testing.T) {
	s := new(MockSession)
	entries := []*discordgo.ApplicationCommandPermissions{{ID: "r", Type: discordgo.ApplicationCommandPermissionTypeRole, Permission: true}}
	s.On("ApplicationCommandPermissionsEdit", "app", "g", "1", mock.MatchedBy(func(l *discordgo.ApplicationCommandPermissionsList) bool {
		return len(l.Permissions) == 1 && l.Permissions[0].ID == "r"
	})).Return(nil)

	require.NoError(t, newTestClient(s).SetPermissions(context.Background(), "g", "1", entries))
	s.AssertExpectations(t)
}

func TestMutationsHonourCancelledContext(t *testing.T) {
	s := new(MockSession)
	c := NewClient(s, "app", WithLogger(logging.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Create(ctx, "", &discordgo.ApplicationCommand{Name: "x"})
	require.Error(t, err)
	s.AssertNotCalled(t, "ApplicationCommandCreate", mock.Anything, mock.Anything, mock.Anything)
}
