package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func accountCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage sign-in accounts",
	}

	var email, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an account that can sign in to the librarian desk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer ws.Close()

			account, err := ws.authority.CreateAccount(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "Account email")
	add.Flags().StringVar(&password, "password", "", "Account password")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the merged store document as a JSON backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer ws.Close()

			data, err := json.MarshalIndent(ws.sync.Snapshot().Doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode backup: %w", err)
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "catalog-backup.json", "Output file, or - for stdout")
	return cmd
}

// credentials are the librarian sign-in every mutating command requires.
type credentials struct {
	email    string
	password string
	yes      bool
}

func (c *credentials) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "Librarian account email")
	cmd.Flags().StringVar(&c.password, "password", "", "Librarian account password")
	cmd.Flags().BoolVarP(&c.yes, "yes", "y", false, "Confirm replacing data")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

func importCmd(flags *globalFlags) *cobra.Command {
	creds := &credentials{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the catalog with the books in a CSV or TSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ws, err := openWorkspace(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer ws.Close()

			actor, err := ws.signIn(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			res, err := ws.desk.ImportCatalog(cmd.Context(), actor, string(text), creds.yes)
			if err != nil {
				return err
			}
			if err := ws.await(cmd.Context(), res.Version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d books, %d categories (version %d)\n",
				res.Books, len(res.Categories), res.Version)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

func claimCmd(flags *globalFlags) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Record an account as the store's librarian",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer ws.Close()

			actor, err := ws.signIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			version, err := ws.desk.ClaimDesk(cmd.Context(), actor)
			if err != nil {
				return err
			}
			if err := ws.await(cmd.Context(), version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now the librarian (version %d)\n", actor.Email, version)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func resetCmd(flags *globalFlags) *cobra.Command {
	creds := &credentials{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the whole store document with the built-in defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openWorkspace(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer ws.Close()

			actor, err := ws.signIn(cmd.Context(), creds.email, creds.password)
			if err != nil {
				return err
			}
			version, err := ws.desk.ResetStore(cmd.Context(), actor, creds.yes)
			if err != nil {
				return err
			}
			if err := ws.await(cmd.Context(), version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Store reset to defaults (version %d)\n", version)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}
