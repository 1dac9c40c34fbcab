package main

import (
	"fmt"
	"os"

	"github.com/Bluesun-Networks/VOS/internal/persona"
	"github.com/Bluesun-Networks/VOS/internal/storage"
	"github.com/spf13/cobra"
)

func personaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Manage reviewer personas",
	}
	cmd.AddCommand(personaListCmd())
	cmd.AddCommand(personaImportCmd())
	cmd.AddCommand(personaExportCmd())
	cmd.AddCommand(personaEnableCmd())
	cmd.AddCommand(personaDisableCmd())
	return cmd
}

func personaListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviewer personas in dispatch order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			personas, err := client.ListPersonas(all)
			if err != nil {
				return err
			}
			if len(personas) == 0 {
				fmt.Println("No personas")
				return nil
			}

			table := newTable([]string{"ID", "NAME", "TONE", "WEIGHT", "FOCUS", "ACTIVE"})
			for _, p := range personas {
				active := green("yes")
				if !p.IsActive {
					active = faint("no")
				}
				table.Append([]string{
					cyan(p.ID),
					p.Name,
					string(p.Tone),
					fmt.Sprintf("%.1f", p.Weight),
					joinFocus(p.FocusAreas),
					active,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include inactive personas")
	return cmd
}

func joinFocus(areas []string) string {
	if len(areas) == 0 {
		return "-"
	}
	out := areas[0]
	for _, a := range areas[1:] {
		out += ", " + a
	}
	return out
}

// personaImportCmd loads personas from YAML straight into the local
// database; the daemon picks them up on the next review.
func personaImportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import personas from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.New(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			registry := persona.NewRegistry(db)
			n, err := registry.ImportFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d persona(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", storage.DefaultDBPath(), "path to sqlite database")
	return cmd
}

func personaExportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all personas as YAML to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.New(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			registry := persona.NewRegistry(db)
			if _, err := registry.SeedDefaults(); err != nil {
				return err
			}
			return registry.Export(os.Stdout)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", storage.DefaultDBPath(), "path to sqlite database")
	return cmd
}

func personaEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <persona-id>",
		Short: "Activate a persona",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setPersonaActive(args[0], true) },
	}
}

func personaDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <persona-id>",
		Short: "Deactivate a persona",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return setPersonaActive(args[0], false) },
	}
}

func setPersonaActive(id string, active bool) error {
	client, err := getClient()
	if err != nil {
		return err
	}
	if err := client.SetPersonaActive(id, active); err != nil {
		return err
	}
	state := "enabled"
	if !active {
		state = "disabled"
	}
	fmt.Printf("Persona %s %s\n", id, state)
	return nil
}
