package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func docCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage reviewable documents",
	}
	cmd.AddCommand(docAddCmd())
	cmd.AddCommand(docListCmd())
	cmd.AddCommand(docShowCmd())
	cmd.AddCommand(docUpdateCmd())
	return cmd
}

func docAddCmd() *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Upload a document for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			client, err := getClient()
			if err != nil {
				return err
			}
			doc, err := client.CreateDocument(title, description, string(content))
			if err != nil {
				return err
			}
			fmt.Printf("Added document %s (%q, %d lines)\n", doc.ID, doc.Title, doc.LineCount)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "document title (defaults to filename)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "document description")
	return cmd
}

func docListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			docs, err := client.ListDocuments()
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Println("No documents")
				return nil
			}

			table := newTable([]string{"ID", "TITLE", "VERSION", "LINES", "UPDATED"})
			for _, d := range docs {
				table.Append([]string{
					cyan(shortID(d.ID)),
					d.Title,
					fmt.Sprintf("v%d", d.Version),
					fmt.Sprintf("%d", d.LineCount),
					formatAge(d.UpdatedAt),
				})
			}
			table.Render()
			return nil
		},
	}
}

func docShowCmd() *cobra.Command {
	var showContent bool

	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document and its version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			doc, versions, err := client.GetDocument(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s (v%d, %d lines)\n", doc.Title, doc.Version, doc.LineCount)
			if doc.Description != "" {
				fmt.Println(doc.Description)
			}
			fmt.Println()
			for _, v := range versions {
				fmt.Printf("  v%-3d %s  %s\n", v.Version, formatAge(v.CreatedAt), faint(v.Message))
			}
			if showContent {
				fmt.Println()
				fmt.Println(doc.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showContent, "content", false, "print the document content")
	return cmd
}

func docUpdateCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "update <document-id> <file>",
		Short: "Upload new content as the next document version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			client, err := getClient()
			if err != nil {
				return err
			}
			doc, err := client.UpdateDocument(args[0], string(content), message)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %q to v%d (%d lines)\n", doc.Title, doc.Version, doc.LineCount)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "version message")
	return cmd
}
