// Package main provides the librarian command line tool. It works directly on the
// storefront data directory, so a badger-backed server must be stopped first.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "librarian"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are the storage settings shared by every subcommand. Empty values fall
// through to the environment, the .env file and the defaults.
type globalFlags struct {
	dataPath string
	backend  string
	appID    string
	envFile  string
	logLevel string
}

func (g *globalFlags) configArgs() []string {
	var args []string
	add := func(name, value string) {
		if value != "" {
			args = append(args, "-"+name, value)
		}
	}
	add("data-path", g.dataPath)
	add("store-backend", g.backend)
	add("app-id", g.appID)
	add("env-file", g.envFile)
	add("log-level", g.logLevel)
	return args
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Manage the Stone Wall Books store from the command line",
		Long: `librarian manages librarian accounts and the shared store document.

It opens the same data directory as the server. With the badger backend the
server holds an exclusive lock, so stop it first; the sqlite backend can be
shared.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.dataPath, "data-path", "", "Base path for store data")
	pf.StringVar(&flags.backend, "store-backend", "", "Document store backend (badger, sqlite)")
	pf.StringVar(&flags.appID, "app-id", "", "Application id used in the store document path")
	pf.StringVar(&flags.envFile, "env-file", "", "Path to .env file")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		accountCmd(flags),
		claimCmd(flags),
		exportCmd(flags),
		importCmd(flags),
		resetCmd(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
			},
		},
	)

	return cmd
}
