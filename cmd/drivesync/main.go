package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drivesync/internal/app"
	"drivesync/internal/config"
	"drivesync/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// resolveMapping picks the mapping to operate on: the --mapping flag if
// set, otherwise the only configured mapping.
func resolveMapping(a *app.App, flagValue string) (*model.DriveMapping, error) {
	mappings, err := a.ListMappings()
	if err != nil {
		return nil, fmt.Errorf("listing mappings: %w", err)
	}
	if flagValue != "" {
		for _, m := range mappings {
			if m.ID == flagValue {
				return m, nil
			}
		}
		return nil, fmt.Errorf("mapping not found: %s", flagValue)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("no mappings configured")
	}
	if len(mappings) == 1 {
		return mappings[0], nil
	}
	return nil, fmt.Errorf("multiple mappings configured; use --mapping to pick one")
}

var rootCmd = &cobra.Command{
	Use:   "drivesync",
	Short: "Two-way folder sync with a remote drive",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
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
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Remote:    %s (%s)\n", cfg.Remote.Name, cfg.Remote.Type)
		fmt.Printf("Mappings:  %d\n", len(cfg.Mappings))
		return nil
	},
}

// mapping command
var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage drive mappings",
}

var mappingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a drive mapping to the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		local, _ := cmd.Flags().GetString("local")
		driveID, _ := cmd.Flags().GetString("drive-id")
		name, _ := cmd.Flags().GetString("name")
		root, _ := cmd.Flags().GetString("root")
		direction, _ := cmd.Flags().GetString("direction")
		priority, _ := cmd.Flags().GetInt("priority")
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		maxFileSize, _ := cmd.Flags().GetInt64("max-file-size")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")

		for _, m := range cfg.Mappings {
			if m.RemoteDriveID == driveID && m.LocalFolderPath == local {
				return fmt.Errorf("mapping already configured for %s -> %s", local, driveID)
			}
		}

		cfg.Mappings = append(cfg.Mappings, config.MappingConfig{
			LocalFolderPath: local,
			RemoteDriveID:   driveID,
			DriveName:       name,
			RootFolderID:    root,
			ExcludePatterns: exclude,
			MaxFileSize:     maxFileSize,
			SyncDirection:   direction,
			UploadPriority:  priority,
			AutoApprove:     autoApprove,
		})

		if err := config.Save(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Mapping added: %s -> %s. It is registered on the next run.\n", local, name)
		return nil
	},
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "View registered mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mappings, err := a.ListMappings()
		if err != nil {
			return err
		}

		if len(mappings) == 0 {
			fmt.Println("No mappings registered.")
			return nil
		}

		for _, m := range mappings {
			lastSync := "never"
			if m.LastSyncTime != nil {
				lastSync = m.LastSyncTime.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-20s  %-13s  last sync: %s\n  %s\n",
				m.ID, m.DriveName, m.SyncDirection, lastSync, m.LocalFolderPath)
		}
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engines until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.StartAll(ctx); err != nil {
			return err
		}
		fmt.Printf("Syncing %d mapping(s). Press Ctrl-C to stop.\n", len(a.Engines()))

		<-ctx.Done()
		fmt.Println("Shutting down...")
		return a.StopAll()
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass against the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}
		engine, err := a.Engine(m.ID)
		if err != nil {
			return err
		}

		if err := engine.Reconcile(cmd.Context()); err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}
		fmt.Println("Reconciliation complete.")
		return nil
	},
}

// pending command
var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Manage uploads awaiting approval",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "View uploads awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}
		engine, err := a.Engine(m.ID)
		if err != nil {
			return err
		}

		pendings, err := engine.PendingUploads()
		if err != nil {
			return err
		}

		if len(pendings) == 0 {
			fmt.Println("Nothing awaiting approval.")
			return nil
		}

		for _, p := range pendings {
			fmt.Printf("%s  %-10d  %-9s  %s\n", p.ID, p.FileSize, p.RecommendedMethod, p.LocalPath)
		}
		return nil
	},
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve ID",
	Short: "Approve a pending upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")
		method, _ := cmd.Flags().GetString("method")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}
		engine, err := a.Engine(m.ID)
		if err != nil {
			return err
		}

		if err := engine.Approve(args[0], method); err != nil {
			return err
		}
		fmt.Println("Approved. The upload runs on the next engine start.")
		return nil
	},
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Reject all uploads awaiting approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}
		engine, err := a.Engine(m.ID)
		if err != nil {
			return err
		}

		if err := engine.RejectAll(); err != nil {
			return err
		}
		fmt.Println("Rejected all pending uploads.")
		return nil
	},
}

// uploads command
var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "View recent uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}

		uploads, err := a.ListUploads(m.ID, limit)
		if err != nil {
			return err
		}

		if len(uploads) == 0 {
			fmt.Println("No uploads recorded.")
			return nil
		}

		for _, u := range uploads {
			line := fmt.Sprintf("%s  %-9s  %s", u.CreatedAt.Format("2006-01-02 15:04:05"), u.Status, u.LocalPath)
			if u.Status == model.TransferFailed && u.ErrorMessage != "" {
				line += "  (" + u.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// downloads command
var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "View recent downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}

		downloads, err := a.ListDownloads(m.ID, limit)
		if err != nil {
			return err
		}

		if len(downloads) == 0 {
			fmt.Println("No downloads recorded.")
			return nil
		}

		for _, d := range downloads {
			line := fmt.Sprintf("%s  %-11s  %s", d.CreatedAt.Format("2006-01-02 15:04:05"), d.Status, d.LocalPath)
			if d.Status == model.TransferFailed && d.ErrorMessage != "" {
				line += "  (" + d.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history FILENAME",
	Short: "View a file's version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}

		versions, err := a.FileHistory(m.ID, args[0])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No version history.")
			return nil
		}

		for _, v := range versions {
			current := ""
			if v.IsLatest {
				current = "  [latest]"
			}
			fmt.Printf("v%-4d %s  %s  %-7s  %d%s\n",
				v.Version,
				v.ContentHash[:12],
				v.CreatedAt.Format("2006-01-02 15:04:05"),
				v.ChangeType,
				v.FileSize,
				current,
			)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log FILENAME",
	Short: "View a file's operation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mappingID, _ := cmd.Flags().GetString("mapping")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := resolveMapping(a, mappingID)
		if err != nil {
			return err
		}

		ops, err := a.FileLog(m.ID, args[0], limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			detail := op.ToPath
			if op.Operation == model.OpRename || op.Operation == model.OpMove {
				detail = op.FromPath + " -> " + op.ToPath
			} else if op.Operation == model.OpDelete {
				detail = op.FromPath
			}
			fmt.Printf("%s  %-8s  %s\n",
				op.Timestamp.Format("2006-01-02 15:04:05"), op.Operation, detail)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	mappingCmd.AddCommand(mappingAddCmd)
	mappingCmd.AddCommand(mappingListCmd)
	mappingAddCmd.Flags().String("local", "", "Local folder path to sync")
	mappingAddCmd.Flags().String("drive-id", "", "Remote drive ID")
	mappingAddCmd.Flags().String("name", "", "Drive display name")
	mappingAddCmd.Flags().String("root", "", "Remote root folder ID")
	mappingAddCmd.Flags().String("direction", "bidirectional", "Sync direction (bidirectional, upload-only, download-only)")
	mappingAddCmd.Flags().Int("priority", 0, "Upload priority (higher first)")
	mappingAddCmd.Flags().Bool("auto-approve", false, "Queue uploads without manual approval")
	mappingAddCmd.Flags().Int64("max-file-size", 0, "Per-mapping file size limit in bytes (0 = engine default)")
	mappingAddCmd.Flags().StringSlice("exclude", nil, "Exclude patterns (repeatable)")
	mappingAddCmd.MarkFlagRequired("local")
	mappingAddCmd.MarkFlagRequired("drive-id")

	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingApproveCmd)
	pendingCmd.AddCommand(pendingRejectCmd)
	pendingCmd.PersistentFlags().String("mapping", "", "Mapping ID to operate on")
	pendingApproveCmd.Flags().String("method", "", "Upload method (single or multipart)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().String("mapping", "", "Mapping ID to operate on")
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(uploadsCmd)
	uploadsCmd.Flags().String("mapping", "", "Mapping ID to operate on")
	uploadsCmd.Flags().IntP("limit", "n", 50, "Maximum number of uploads to show")
	rootCmd.AddCommand(downloadsCmd)
	downloadsCmd.Flags().String("mapping", "", "Mapping ID to operate on")
	downloadsCmd.Flags().IntP("limit", "n", 50, "Maximum number of downloads to show")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("mapping", "", "Mapping ID to operate on")
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().String("mapping", "", "Mapping ID to operate on")
	logCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
