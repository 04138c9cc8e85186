package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"credbak/internal/app"
	"credbak/internal/archive"
	"credbak/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isEncryptedArchive reports whether the archive filename indicates
// passphrase encryption.
func isEncryptedArchive(path string) bool {
	return strings.HasSuffix(path, archive.EncryptedSuffix)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// app.Close().
func newApp() (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "credbak",
	Short: "Credentials backup tool",
	Long:  "credbak locates credential and secret files across repository checkouts\nand the home directory, copies them into an integrity-verified backup tree,\nand restores selected buckets on demand.",
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

		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determining home directory: %w", err)
		}

		cfg := config.NewConfig(defaults["backup_root"], homeDir)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Backup root: %s\n", defaults["backup_root"])
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
		fmt.Printf("Backup root: %s\n", cfg.BackupRoot)
		fmt.Printf("Repos dir:   %s\n", cfg.ReposDir)
		fmt.Printf("Home dir:    %s\n", cfg.HomeDir)
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Scan sources and back up matched files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Backup()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Run %s finished in %s\n",
			summary.RunID,
			summary.RunEnd.Sub(summary.RunStart).Truncate(time.Millisecond),
		)
		for _, b := range summary.Buckets {
			fmt.Printf("  %-30s %4d file(s)  %10d bytes  %d error(s)  %s\n",
				b.Kind.Prefix()+"/"+b.Name, b.FileCount, b.TotalBytes, b.ErrorCount, b.Status)
		}
		fmt.Printf("Total: %d bytes, %d error(s)\n", summary.TotalBytes, summary.ErrorCount())
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List restorable backup buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		refs, err := a.ListBuckets()
		if err != nil {
			return err
		}

		if len(refs) == 0 {
			fmt.Println("No backups found.")
			return nil
		}

		for _, ref := range refs {
			fmt.Printf("%-40s %4d file(s)  %10d bytes  %s\n", ref.ID, ref.FileCount, ref.TotalBytes, ref.Status)
		}
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore BUCKET TARGET_DIR",
	Short: "Restore a bucket into a target directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Restore(args[0], args[1], !noVerify)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %d file(s) to %s\n", len(report.Restored), report.TargetDir)
		if len(report.Errors) > 0 {
			fmt.Printf("%d file(s) failed:\n", len(report.Errors))
			for _, e := range report.Errors {
				fmt.Printf("  %s: %s\n", e.Path, e.Error)
			}
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hash the backup tree against its manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Verify()
		if err != nil {
			return err
		}

		fmt.Printf("Checked %d file(s) across %d bucket(s)\n", report.FilesChecked, report.Buckets)
		if report.OK() {
			fmt.Println("All digests match.")
			return nil
		}
		for _, e := range report.Errors {
			fmt.Printf("  %s: %s\n", e.Path, e.Error)
		}
		return fmt.Errorf("%d integrity error(s) found", len(report.Errors))
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No backup runs recorded.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("%s  %s  %d bucket(s)  %d file(s)  %d bytes  %d error(s)  %s\n",
				r.ID[:8],
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.BucketCount,
				r.FileCount,
				r.TotalBytes,
				r.ErrorCount,
				r.Status,
			)
		}
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Package the backup tree into an archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if encrypt {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			if passphrase == "" {
				return fmt.Errorf("empty passphrase")
			}
		}

		path, err := a.Archive(passphrase)
		if err != nil {
			return fmt.Errorf("archive failed: %w", err)
		}

		fmt.Printf("Archive written to %s\n", path)
		return nil
	},
}

// extract command
var extractCmd = &cobra.Command{
	Use:   "extract ARCHIVE DEST_DIR",
	Short: "Unpack an archive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if isEncryptedArchive(args[0]) {
			passphrase, err = promptPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		if err := a.Extract(args[0], args[1], passphrase); err != nil {
			return fmt.Errorf("extract failed: %w", err)
		}

		fmt.Printf("Archive extracted to %s\n", args[1])
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload ARCHIVE",
	Short: "Upload an archive to the configured S3 bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.Upload(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("Uploaded as %s\n", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().Bool("no-verify", false, "Skip digest verification after restore")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().Bool("encrypt", false, "Encrypt the archive with a passphrase")
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(uploadCmd)
}
