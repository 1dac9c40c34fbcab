package main

import (
	"fmt"
	"os"

	"github.com/Bluesun-Networks/VOS/internal/daemon"
	"github.com/Bluesun-Networks/VOS/internal/version"
	"github.com/spf13/cobra"
)

var serverAddr string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vos",
		Short: "Multi-persona document review",
		Long:  "vos reviews documents with a panel of AI reviewer personas and synthesizes their critiques into a single meta-review with an overall verdict.",
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:7878", "daemon address (host:port)")

	rootCmd.AddCommand(docCmd())
	rootCmd.AddCommand(personaCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(streamCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getClient returns a client for the configured daemon, failing fast
// when it isn't running.
func getClient() (*daemon.Client, error) {
	c := daemon.NewClient(serverAddr)
	if !c.IsAlive() {
		return nil, fmt.Errorf("daemon not running at %s (start it with 'vosd')", serverAddr)
	}
	return c, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vos version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vos %s\n", version.Version)
		},
	}
}
