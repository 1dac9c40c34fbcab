package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func jobsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent review jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			jobs, err := client.ListJobs(limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs")
				return nil
			}

			table := newTable([]string{"ID", "DOCUMENT", "STATUS", "TRIGGER", "ENQUEUED", "ERROR"})
			for _, j := range jobs {
				errMsg := j.ErrorMessage
				if len(errMsg) > 50 {
					errMsg = errMsg[:47] + "..."
				}
				table.Append([]string{
					cyan(shortID(j.ID)),
					j.DocumentTitle,
					jobStatusColor(j.Status),
					string(j.Trigger),
					formatAge(j.EnqueuedAt),
					errMsg,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum jobs to list")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			if err := client.CancelJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("Canceled job %s\n", args[0])
			return nil
		},
	}
}
