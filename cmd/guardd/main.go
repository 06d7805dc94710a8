package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"guard-go/internal/app"
	"guard-go/internal/config"
	"guard-go/internal/guard"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Run", "TrustAdd").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// newConnectedApp additionally wires the Discord-facing components.
func newConnectedApp(operation string) (*app.App, error) {
	a, err := newApp(operation)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(); err != nil {
		a.Close()
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "guardd",
	Short: "Guild guardian daemon",
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the protection daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newConnectedApp("Run")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.RunDaemon(ctx)
	},
}

// safe command
var safeCmd = &cobra.Command{
	Use:   "safe",
	Short: "Manage the trust allowlist",
}

// principalRef builds the typed reference from the ID argument and --role flag.
func principalRef(cmd *cobra.Command, id string) guard.PrincipalRef {
	isRole, _ := cmd.Flags().GetBool("role")
	ref := guard.PrincipalRef{Kind: guard.PrincipalMember, ID: id}
	if isRole {
		ref.Kind = guard.PrincipalRole
	}
	return ref
}

var safeAddCmd = &cobra.Command{
	Use:   "add SCOPE ID",
	Short: "Trust a member or role for a scope",
	Long: "Trust a member or role for one scope: full, owner, role, channel, or banandkick.\n" +
		"Principals in full are immune to every guarded action.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := guard.ParseScope(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("TrustAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		ref := principalRef(cmd, args[1])
		outcome, err := a.TrustAdd(cmd.Context(), scope, ref)
		if err != nil {
			return fmt.Errorf("updating allowlist: %w", err)
		}

		fmt.Printf("%s %s in scope %s\n", ref, outcome, scope)
		return nil
	},
}

var safeRemoveCmd = &cobra.Command{
	Use:   "remove SCOPE ID",
	Short: "Revoke trust from a member or role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := guard.ParseScope(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("TrustRemove")
		if err != nil {
			return err
		}
		defer a.Close()

		ref := principalRef(cmd, args[1])
		outcome, err := a.TrustRemove(cmd.Context(), scope, ref)
		if err != nil {
			return fmt.Errorf("updating allowlist: %w", err)
		}

		fmt.Printf("%s %s in scope %s\n", ref, outcome, scope)
		return nil
	},
}

var safeListCmd = &cobra.Command{
	Use:   "list",
	Short: "View the trust allowlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("TrustList")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.TrustList(cmd.Context())
		if err != nil {
			return fmt.Errorf("loading allowlist: %w", err)
		}

		if owners := a.SuperOwners(); len(owners) > 0 {
			fmt.Printf("%-12s %s  (from config, immutable)\n", "owners:", strings.Join(owners, " "))
		}
		sets := []struct {
			scope guard.Scope
			ids   []string
		}{
			{guard.ScopeFull, rec.Full},
			{guard.ScopeOwner, rec.Owner},
			{guard.ScopeRole, rec.Role},
			{guard.ScopeChannel, rec.Channel},
			{guard.ScopeBanAndKick, rec.BanAndKick},
		}
		for _, s := range sets {
			if len(s.ids) == 0 {
				fmt.Printf("%-12s (empty)\n", string(s.scope)+":")
				continue
			}
			fmt.Printf("%-12s %s\n", string(s.scope)+":", strings.Join(s.ids, " "))
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage guild snapshots",
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Capture a snapshot immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newConnectedApp("CaptureNow")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.CaptureNow(cmd.Context())
		if err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}

		fmt.Printf("Captured %d role(s), %d channel(s)", summary.Roles, summary.Channels)
		if summary.Failed > 0 {
			fmt.Printf(", %d failed", summary.Failed)
		}
		fmt.Println()
		return nil
	},
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored snapshots to the archive vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ExportSnapshots")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ExportSnapshots(cmd.Context())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported snapshots to %s\n", key)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Rebuild deleted guild structure from snapshots",
}

func printRestoreSummary(summary *guard.RestoreSummary) {
	fmt.Printf("Created %d, failed %d", summary.Created, summary.Failed)
	if summary.AgentsUsed > 0 {
		fmt.Printf("; assigned %d member(s), %d unassigned, via %d agent(s)",
			summary.Assigned, summary.Unassigned, summary.AgentsUsed)
	}
	fmt.Println()
}

var restoreRolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Recreate deleted roles and reassign members",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newConnectedApp("RestoreRoles")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.RestoreRoles(cmd.Context())
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		printRestoreSummary(summary)
		return nil
	},
}

var restoreChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Recreate deleted channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newConnectedApp("RestoreChannels")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.RestoreChannels(cmd.Context())
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		printRestoreSummary(summary)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

// promptSecret reads a secret from the terminal without echo.
func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

var configInitCmd = &cobra.Command{
	Use:   "init GUILD_ID",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		token, err := promptSecret("Bot token")
		if err != nil {
			return err
		}
		cfg.Token = token

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		passphrase, err := promptSecret("Export key passphrase")
		if err != nil {
			return err
		}
		a, err := app.NewApp(cfg, "ConfigInit")
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()
		if err := a.SetupEncryption(passphrase); err != nil {
			return fmt.Errorf("generating export keys: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Guild ID: %s\n", cfg.GuildID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Guild ID:      %s\n", cfg.GuildID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Owners:        %s\n", strings.Join(cfg.Owners, " "))
		fmt.Printf("Helper agents: %d\n", len(cfg.HelperTokens))
		fmt.Printf("Database:      %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Archive:       %s\n", cfg.Archive.Type)
		if cfg.Metrics.ListenAddr != "" {
			fmt.Printf("Metrics:       %s\n", cfg.Metrics.ListenAddr)
		}
		return nil
	},
}

func init() {
	// safe subcommands
	safeCmd.AddCommand(safeAddCmd)
	safeCmd.AddCommand(safeRemoveCmd)
	safeCmd.AddCommand(safeListCmd)
	safeAddCmd.Flags().Bool("role", false, "Treat ID as a role instead of a member")
	safeRemoveCmd.Flags().Bool("role", false, "Treat ID as a role instead of a member")

	// backup subcommands
	backupCmd.AddCommand(backupNowCmd)
	backupCmd.AddCommand(backupExportCmd)

	// restore subcommands
	restoreCmd.AddCommand(restoreRolesCmd)
	restoreCmd.AddCommand(restoreChannelsCmd)

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// root commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(safeCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(configCmd)
}
