package interaction

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/task"
)

// TaskDeleteMessage is the task type that removes a response after DeleteAfter.
const TaskDeleteMessage = "interaction.delete_message"

// DeleteJob is the payload of TaskDeleteMessage. An empty MessageID targets
// the original response.
type DeleteJob struct {
	Interaction *Interaction
	MessageID   string
}

// Run performs the deletion.
func (j DeleteJob) Run(ctx context.Context) error {
	i := j.Interaction
	if j.MessageID == "" {
		return i.call("delete_original", func() error {
			return i.session.InteractionResponseDelete(i.raw, discordgo.WithContext(ctx))
		})
	}
	return i.call("delete_followup", func() error {
		return i.session.FollowupMessageDelete(i.raw, j.MessageID, discordgo.WithContext(ctx))
	})
}

// RegisterTasks installs the deletion handler on r.
func RegisterTasks(r *task.Router) {
	r.RegisterHandler(TaskDeleteMessage, func(ctx context.Context, payload any) error {
		job, ok := payload.(DeleteJob)
		if !ok || job.Interaction == nil {
			return fmt.Errorf("unexpected payload %T for %s", payload, TaskDeleteMessage)
		}
		return job.Run(ctx)
	})
}

// scheduleDelete must be called with i.mu held.
func (i *Interaction) scheduleDelete(after time.Duration, messageID string) {
	if after <= 0 {
		return
	}
	job := DeleteJob{Interaction: i, MessageID: messageID}
	if i.scheduler == nil {
		time.AfterFunc(after, func() {
			if err := job.Run(context.Background()); err != nil {
				i.log.WithError(err).Warn("Timed message deletion failed")
			}
		})
		return
	}
	i.scheduler.After(after, task.Task{
		Type:    TaskDeleteMessage,
		Payload: job,
		Options: task.Options{GroupKey: i.raw.ID, MaxAttempts: 2},
	})
}
