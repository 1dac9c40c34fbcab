package main

import (
	"fmt"
	"time"

	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and review metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			st, err := client.GetStatus()
			if err != nil {
				return err
			}
			snap, err := client.GetMetrics()
			if err != nil {
				return err
			}

			uptime := time.Duration(st.UptimeSeconds * float64(time.Second)).Round(time.Second)
			fmt.Printf("Daemon %s on %s (up %s)\n", st.Version, serverAddr, uptime)
			fmt.Printf("Workers: %d/%d active\n\n", st.ActiveWorkers, st.MaxWorkers)

			fmt.Println("Jobs:")
			for _, status := range []storage.JobStatus{
				storage.JobStatusQueued, storage.JobStatusRunning,
				storage.JobStatusDone, storage.JobStatusFailed, storage.JobStatusCanceled,
			} {
				if n := st.Jobs[status]; n > 0 {
					fmt.Printf("  %-10s %d\n", status, n)
				}
			}

			fmt.Println("\nReviews:")
			fmt.Printf("  started    %d\n", snap.ReviewsStarted)
			fmt.Printf("  completed  %d\n", snap.ReviewsCompleted)
			fmt.Printf("  failed     %d\n", snap.ReviewsFailed)
			fmt.Printf("  persona completions  %d\n", snap.PersonaCompletions)
			if snap.AvgReviewSeconds > 0 {
				fmt.Printf("  avg duration  %.1fs\n", snap.AvgReviewSeconds)
			}
			return nil
		},
	}
}
