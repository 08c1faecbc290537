// Package cli implements the CLI adapter for berth.
// The serve command runs the manager; the others talk to it over HTTP.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/bnema/berth/internal/adapters/in/cli/remote"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// globalFlags are shared by every client command.
type globalFlags struct {
	server       string
	token        string
	clientConfig string
}

// NewRootCmd creates the root command for the berth CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "berth",
		Short: "berth - a container lifecycle manager",
		Long: `berth keeps a registry of containers and drives them through their
lifecycle (create, start, stop, pause, resume, remove) against a container
runtime, reconciling the registry with what the runtime actually reports.

Run 'berth serve' on the host, then use the other commands to manage it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.server, "server", "", "berth server URL (env BERTH_SERVER)")
	pf.StringVar(&flags.token, "token", "", "API token (env BERTH_TOKEN)")
	pf.StringVar(&flags.clientConfig, "client-config", "", "Path to client config (default ~/.config/berth/client.toml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newPsCmd(flags))
	rootCmd.AddCommand(newInspectCmd(flags))
	rootCmd.AddCommand(newCreateCmd(flags))
	for _, action := range []string{"start", "stop", "pause", "resume"} {
		rootCmd.AddCommand(newIntentCmd(flags, action))
	}
	rootCmd.AddCommand(newRmCmd(flags))
	rootCmd.AddCommand(newEventsCmd(flags))
	rootCmd.AddCommand(newReconcileCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newTargetsCmd(flags))
	rootCmd.AddCommand(newVersionCmd(flags))

	return rootCmd
}

// client builds an API client from flags, env and the client config.
func (f *globalFlags) client() (*remote.Client, error) {
	config, err := remote.LoadClientConfig(f.clientConfig)
	if err != nil {
		return nil, err
	}
	url, token := remote.ResolveTarget(config, f.server, f.token)
	return remote.NewClient(url, remote.WithToken(token)), nil
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(version, commit, date string) {
	Version = version
	Commit = commit
	BuildDate = date
}
