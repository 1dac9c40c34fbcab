package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Bluesun-Networks/VOS/internal/daemon"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	var personaIDs []string
	var trigger string
	var wait bool

	cmd := &cobra.Command{
		Use:   "review <document-id>",
		Short: "Queue a review of a document",
		Long: `Queue a review of a document by the configured reviewer personas.

Without --persona flags all active personas review the document. With
--wait, blocks until the review finishes and prints the verdict.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			job, err := client.Enqueue(args[0], personaIDs, storage.Trigger(trigger))
			if err != nil {
				return err
			}
			fmt.Printf("Queued job %s for %q\n", job.ID, job.DocumentTitle)

			if !wait {
				return nil
			}
			return waitForJob(client, job)
		},
	}
	cmd.Flags().StringArrayVarP(&personaIDs, "persona", "p", nil, "persona ID to include (repeatable; default all active)")
	cmd.Flags().StringVar(&trigger, "trigger", "manual", "what triggered this review (manual, ci, webhook)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the review to finish")
	return cmd
}

// waitForJob follows the event stream until the job reaches a terminal
// state, then prints the outcome.
func waitForJob(client *daemon.Client, job *storage.ReviewJob) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	done := make(chan daemon.Event, 1)
	go func() {
		_ = client.StreamEvents(ctx, job.DocumentID, func(e daemon.Event) {
			if e.JobID != job.ID {
				return
			}
			switch e.Type {
			case daemon.EventReviewCompleted, daemon.EventReviewFailed, daemon.EventReviewCanceled:
				select {
				case done <- e:
				default:
				}
			}
		})
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("interrupted while waiting for job %s", job.ID)
	case e := <-done:
		switch e.Type {
		case daemon.EventReviewCompleted:
			fmt.Printf("Review %s completed: %s\n", e.ReviewID, verdictColor(storage.Verdict(e.Verdict)))
			fmt.Printf("Run 'vos show %s' for the full meta-review\n", e.ReviewID)
			return nil
		case daemon.EventReviewCanceled:
			return fmt.Errorf("job %s was canceled", job.ID)
		default:
			return fmt.Errorf("review failed: %s", e.Error)
		}
	}
}
