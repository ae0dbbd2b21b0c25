package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui"
	"github.com/small-frappuccino/discordui/pkg/app"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/core"
	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
	"github.com/small-frappuccino/discordui/pkg/discord/components"
	"github.com/small-frappuccino/discordui/pkg/discord/interaction"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

var colors = []string{"red", "orange", "yellow", "green", "blue", "indigo", "violet"}

// main runs a demo bot exercising commands, autocomplete and components.
func main() {
	if err := app.Run("discordui", declare); err != nil {
		logging.Errorf("Fatal: %v", err)
		os.Exit(1)
	}
}

func declare(ui *discordui.UI) error {
	if _, err := ui.Slash("ping", "Check that the bot answers", nil, func(c *core.Context) error {
		latency := time.Since(c.CreatedAt()).Round(time.Millisecond)
		return c.Reply(fmt.Sprintf("Pong! (%s)", latency), true)
	}); err != nil {
		return err
	}

	text, err := model.NewOption(model.OptionString, "text", "What to repeat", model.Required())
	if err != nil {
		return err
	}
	if _, err := ui.Slash("echo", "Repeat a message", []*model.Option{text}, func(c *core.Context) error {
		_, err := c.Respond(c.Context(), interaction.Response{Content: c.StringOption("text"), DeleteAfter: 30 * time.Second})
		return err
	}); err != nil {
		return err
	}

	color, err := model.NewOption(model.OptionString, "name", "A color", model.Required(), model.WithAutocomplete())
	if err != nil {
		return err
	}
	if _, err := ui.SlashWithAutocomplete("color", "Pick a color", []*model.Option{color},
		func(c *core.Context) error {
			return c.Reply("You picked "+c.StringOption("name"), false)
		},
		func(ac *core.AutocompleteContext) ([]*discordgo.ApplicationCommandOptionChoice, error) {
			var out []*discordgo.ApplicationCommandOptionChoice
			for _, name := range colors {
				if strings.HasPrefix(name, strings.ToLower(ac.Input())) {
					out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
				}
			}
			return out, nil
		},
	); err != nil {
		return err
	}

	question, err := model.NewOption(model.OptionString, "question", "What to ask", model.Required())
	if err != nil {
		return err
	}
	if _, err := ui.Subcommand([]string{"poll"}, "yesno", "Ask a yes/no question", []*model.Option{question}, func(c *core.Context) error {
		return askYesNo(ui, c)
	}); err != nil {
		return err
	}

	if _, err := ui.UserCommand("Inspect", func(c *core.Context) error {
		switch t := c.Target.(type) {
		case *discordgo.Member:
			return c.Replyf("%s joined at %s", t.User.Username, t.JoinedAt.Format(time.DateOnly))
		case *discordgo.User:
			return c.Replyf("%s is not a member here", t.Username)
		}
		return core.NewCommandError("Could not inspect that user", true)
	}); err != nil {
		return err
	}

	ui.Components.OnButton(func(_ context.Context, e *components.Event) error {
		logging.WithFields(map[string]any{"customID": e.CustomID, "userID": e.UserID}).Debug("Button pressed")
		return nil
	})
	return nil
}

func askYesNo(ui *discordui.UI, c *core.Context) error {
	yes, no := "poll:yes:"+c.ID(), "poll:no:"+c.ID()
	row := discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Yes", Style: discordgo.SuccessButton, CustomID: yes},
		discordgo.Button{Label: "No", Style: discordgo.DangerButton, CustomID: no},
	}}
	_, err := c.Respond(c.Context(), interaction.Response{
		Content:    c.StringOption("question"),
		Components: []discordgo.MessageComponent{row},
	})
	if err != nil {
		return err
	}

	ev, err := ui.WaitFor(c.Context(), 2*time.Minute, func(e *components.Event) bool {
		return e.CustomID == yes || e.CustomID == no
	})
	if err != nil {
		_, editErr := c.Edit(c.Context(), interaction.Response{Content: "Nobody answered."})
		return editErr
	}
	answer := "no"
	if ev.CustomID == yes {
		answer = "yes"
	}
	return ev.Interaction.Update(c.Context(), interaction.Response{Content: fmt.Sprintf("<@%s> answered %s.", ev.UserID, answer)})
}
