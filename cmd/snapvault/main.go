// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-snapvault.
//
// go-snapvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-snapvault/pkg/cli"
	"github.com/jeremyhahn/go-snapvault/pkg/factory"
	"github.com/jeremyhahn/go-snapvault/pkg/version"
)

var (
	cfgFile      string
	viperConfig  *viper.Viper
	globalConfig *cli.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snapvault",
	Short: "Archive and restore replica snapshots in object storage",
	Long: `snapvault archives full and incremental state snapshots of a partition
replica to object storage and restores the newest complete backup chain.

Storage backends: ` + strings.Join(factory.Backends(), ", ") + `

Configuration can be provided via:
  - Command-line flags (highest priority)
  - Environment variables (SNAPVAULT_*, e.g. SNAPVAULT_ACCOUNT_ENDPOINT)
  - Configuration file (~/.snapvault.yaml or ./.snapvault.yaml)
  - Default values (lowest priority)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		viperConfig, err = cli.InitConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := viperConfig.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
		globalConfig = cli.GetConfig(viperConfig)
		return nil
	},
}

func outputFormat() cli.OutputFormat {
	return cli.OutputFormat(globalConfig.OutputFormat)
}

// fail prints err in the configured format and returns it so cobra exits non-zero.
func fail(err error) error {
	fmt.Fprint(os.Stderr, cli.FormatError(err, outputFormat()))
	return err
}

func newContext() (*cli.CommandContext, error) {
	return cli.NewCommandContext(globalConfig, os.Stderr)
}

var archiveCmd = &cobra.Command{
	Use:   "archive <snapshot-dir>",
	Short: "Archive a snapshot directory as the next backup",
	Long: `Compress a snapshot directory, upload it with the next sequence number and
remove the directory once the upload succeeded. An incremental backup
requires an existing full backup.`,
	Example: `  snapvault archive ./snapshot --kind full
  snapvault archive ./delta --kind incremental -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind") //nolint:errcheck // flags are validated by cobra

		cc, err := newContext()
		if err != nil {
			return fail(err)
		}
		if err := cc.ArchiveCommand(cmd.Context(), args[0], kind); err != nil {
			return fail(err)
		}

		fmt.Print(cli.FormatOperationResult(&cli.OperationResult{
			Success: true,
			Message: fmt.Sprintf("Archived '%s' as %s backup", args[0], kind),
		}, outputFormat()))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the newest backup chain to a local directory",
	Example: `  snapvault restore
  snapvault restore --out ./restored`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out") //nolint:errcheck // flags are validated by cobra

		cc, err := newContext()
		if err != nil {
			return fail(err)
		}
		path, err := cc.RestoreCommand(cmd.Context(), out)
		if err != nil {
			return fail(err)
		}

		fmt.Print(cli.FormatOperationResult(&cli.OperationResult{
			Success: true,
			Message: fmt.Sprintf("Restored latest backup to '%s'", path),
			Data:    map[string]string{"path": path},
		}, outputFormat()))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old backups beyond max-backups-to-keep",
	Long: `Delete the oldest backups beyond max-backups-to-keep. The newest full backup
and its incrementals are always kept, even when that exceeds the limit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := newContext()
		if err != nil {
			return fail(err)
		}
		deleted, err := cc.PruneCommand(cmd.Context())
		if err != nil {
			return fail(err)
		}

		fmt.Print(cli.FormatOperationResult(&cli.OperationResult{
			Success: true,
			Message: fmt.Sprintf("Deleted %d backup(s)", deleted),
			Data:    map[string]uint32{"deleted": deleted},
		}, outputFormat()))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups for the configured key range",
	Example: `  snapvault list --sorted
  snapvault list -o table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sorted, _ := cmd.Flags().GetBool("sorted") //nolint:errcheck // flags are validated by cobra

		cc, err := newContext()
		if err != nil {
			return fail(err)
		}
		descs, err := cc.ListCommand(cmd.Context(), sorted)
		if err != nil {
			return fail(err)
		}
		fmt.Print(cli.FormatBackupList(descs, outputFormat()))
		return nil
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Watch the snapshot inbox and serve the admin API",
	Long: `Run until interrupted. Snapshot directories written to
<local-temp-directory>/inbox/<name>/ are archived once the marker file
<name>.full or <name>.incremental appears. The admin API listens on --listen;
an empty value disables it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cc, err := newContext()
		if err != nil {
			return fail(err)
		}
		if err := cc.AgentCommand(cmd.Context()); err != nil {
			return fail(err)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(cli.DisplayConfig(globalConfig, outputFormat()))
		if file := viperConfig.ConfigFileUsed(); file != "" {
			fmt.Fprintf(os.Stderr, "config file: %s\n", file)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.snapvault.yaml)")
	flags.String("backend", cli.BackendLocal, "storage backend ("+strings.Join(factory.Backends(), ", ")+")")
	flags.String("backup-mode", "store", "backup mode (store, none)")
	flags.String("account-endpoint", "", "storage account endpoint, or root directory for the local backend")
	flags.String("account-credential", "", "storage credential (account:key, access-key:secret or credentials file)")
	flags.String("container-name", "", "container name (derived from partition-id when empty)")
	flags.String("partition-id", "", "partition identifier")
	flags.String("region", "", "region for cloud backends")
	flags.Int64("key-range-min", -1<<63, "low end of the partition key range")
	flags.Int64("key-range-max", 1<<63-1, "high end of the partition key range")
	flags.Int("backup-frequency-seconds", 0, "time-based backup trigger in seconds (0 disables)")
	flags.Uint64("backup-threshold", 15, "number of events between backups")
	flags.Uint32("max-backups-to-keep", 3, "retention bound used by prune")
	flags.String("local-temp-directory", "", "directory for staging and restores")
	flags.Int("download-concurrency", 1, "parallel downloads during restore")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringP("output-format", "o", "text", "output format (text, json, table)")

	archiveCmd.Flags().String("kind", "full", "backup kind (full, incremental)")
	restoreCmd.Flags().String("out", "", "move the restored state to this path (must not exist)")
	listCmd.Flags().Bool("sorted", false, "sort by descending sequence number")
	agentCmd.Flags().String("listen", "127.0.0.1:8080", "admin API listen address")

	rootCmd.AddCommand(archiveCmd, restoreCmd, pruneCmd, listCmd, agentCmd, configCmd, versionCmd)
}
