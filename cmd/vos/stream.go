package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/daemon"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/spf13/cobra"
)

func streamCmd() *cobra.Command {
	var documentID string

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow review events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			fmt.Println("Streaming events (ctrl-c to stop)...")
			err = client.StreamEvents(ctx, documentID, printEvent)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&documentID, "document", "d", "", "only events for this document")
	return cmd
}

func printEvent(e daemon.Event) {
	ts := e.TS.Local().Format(time.TimeOnly)
	switch e.Type {
	case daemon.EventReviewStarted:
		fmt.Printf("%s %s %q job=%s\n", ts, cyan("started"), e.DocumentTitle, shortID(e.JobID))
	case daemon.EventReviewCompleted:
		fmt.Printf("%s %s %q job=%s verdict=%s\n", ts, green("completed"), e.DocumentTitle,
			shortID(e.JobID), verdictColor(storage.Verdict(e.Verdict)))
	case daemon.EventReviewFailed:
		fmt.Printf("%s %s %q job=%s: %s\n", ts, red("failed"), e.DocumentTitle, shortID(e.JobID), e.Error)
	case daemon.EventReviewCanceled:
		fmt.Printf("%s %s %q job=%s\n", ts, yellow("canceled"), e.DocumentTitle, shortID(e.JobID))
	default:
		fmt.Printf("%s %s job=%s\n", ts, e.Type, shortID(e.JobID))
	}
}
