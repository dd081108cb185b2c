package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/extbox/pkg/client"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command. Command output goes to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := &command{flags: globalFlags, out: out}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(cmd),
		createSnapshotCommand(cmd),
		createPresentationCommand(cmd),
		createModulesCommand(cmd),
		createEnableCommand(cmd, true),
		createEnableCommand(cmd, false),
		createOrderCommand(cmd),
		createPrefCommand(cmd),
		createPrefsCommand(cmd),
		createEventCommand(cmd),
		createFapCommand(cmd),
		createSpeedTestCommand(cmd),
		createHistoryCommand(cmd),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "extbox",
		Short: "Device telemetry scheduler and status aggregator",
		Long: `extbox runs telemetry modules (battery, CPU/RAM, screen time, data usage,
unlocks, steps, speed test and more) on one cooperative scheduler and
renders a compact status line from their readings.

Examples:
  extbox serve config.toml          # Start the daemon
  extbox status                     # Scheduler and module state
  extbox enable steps               # Turn a module on
  extbox event unlock               # Report a device unlock
  extbox status --api-url=http://remote:8484/api`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", client.DefaultBaseURL, "daemon API URL")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate for a TLS daemon")
	return root
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler and module status",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Status(cmd.Context()) },
	}
}

func createSnapshotCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [module]",
		Short: "Show the latest readings of one or all modules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			return c.Snapshot(cmd.Context(), key)
		},
	}
}

func createPresentationCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "presentation",
		Short: "Show the rendered title, compact line and expanded text",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Presentation(cmd.Context()) },
	}
}

func createModulesCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the module catalog",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Modules(cmd.Context()) },
	}
}

func createEnableCommand(c *command, on bool) *cobra.Command {
	use, short := "enable <module>", "Enable a module"
	if !on {
		use, short = "disable <module>", "Disable a module"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SetEnabled(cmd.Context(), args[0], on)
		},
	}
}

func createOrderCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "order <k1,k2,...>",
		Short: "Set the module display order",
		Long: `Set the order in which modules appear in the compact line and the
expanded text. Modules left out follow in priority order.

Example:
  extbox order battery,steps,cpu_ram`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Order(cmd.Context(), args[0])
		},
	}
}

func createPrefCommand(c *command) *cobra.Command {
	pref := &cobra.Command{
		Use:   "pref",
		Short: "Read or write a single preference",
	}
	pref.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a preference value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.PrefGet(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a preference value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.PrefSet(cmd.Context(), args[0], args[1])
			},
		},
	)
	return pref
}

func createPrefsCommand(c *command) *cobra.Command {
	prefs := &cobra.Command{
		Use:   "prefs",
		Short: "Bulk preference operations",
	}
	prefs.AddCommand(
		&cobra.Command{
			Use:   "export",
			Short: "Print every preference as JSON",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.PrefsExport(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "import <file.json|->",
			Short: "Import preferences from a flat JSON object",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.PrefsImport(cmd.Context(), args[0], cmd.InOrStdin())
			},
		},
		&cobra.Command{
			Use:   "reset-daily",
			Short: "Zero today's counters",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.ResetDaily(cmd.Context()) },
		},
	)
	return prefs
}

func createEventCommand(c *command) *cobra.Command {
	event := &cobra.Command{
		Use:   "event",
		Short: "Report device events to the daemon",
	}
	event.AddCommand(
		&cobra.Command{
			Use:       "screen <on|off>",
			Short:     "Report a screen state change",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Screen(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "unlock",
			Short: "Report a device unlock",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return c.Unlock(cmd.Context()) },
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Report a cumulative step counter reading",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Steps(cmd.Context(), args[0])
			},
		},
	)
	return event
}

func createFapCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "fap",
		Short: "Increment the daily counter",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.Fap(cmd.Context()) },
	}
}

func createSpeedTestCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "speedtest",
		Short: "Start a speed test now",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return c.SpeedTest(cmd.Context()) },
	}
}

func createHistoryCommand(c *command) *cobra.Command {
	hf := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history [module]",
		Short: "List recorded events",
		Long: `List events recorded by the history sinks, newest first.

Examples:
  extbox history battery --since=24h
  extbox history --since=2026-05-01T00:00:00Z --limit=500`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			return c.History(cmd.Context(), key, *hf)
		},
	}
	cmd.Flags().StringVar(&hf.Since, "since", "24h", "lookback duration or RFC 3339 time")
	cmd.Flags().IntVar(&hf.Limit, "limit", 100, "maximum number of events")
	return cmd
}
