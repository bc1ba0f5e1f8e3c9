package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"vidbot/internal/config"
	"vidbot/internal/pipeline"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your vidbot installation",
		Long: `Verifies that vidbot's configuration, history database, artifacts
directory, and remote pipeline capabilities are correctly set up. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("vidbot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'vidbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Workspace directory exists
			if cfg.General.Workspace != "" {
				if info, err := os.Stat(cfg.General.Workspace); err != nil {
					printFail("Workspace", fmt.Sprintf("not found: %s", cfg.General.Workspace))
					failed++
				} else if !info.IsDir() {
					printFail("Workspace", fmt.Sprintf("not a directory: %s", cfg.General.Workspace))
					failed++
				} else {
					printPass("Workspace", cfg.General.Workspace)
					passed++
				}
			} else {
				printWarn("Workspace", "not configured (using current directory)")
				warned++
			}

			// 4. History database writable
			dbPath := cfg.History.DBPath
			if dbPath == "" {
				home, _ := os.UserHomeDir()
				dbPath = filepath.Join(home, ".vidbot", "history.db")
			}
			if err := checkDatabase(dbPath); err != nil {
				printFail("History database", err.Error())
				failed++
			} else {
				printPass("History database", dbPath)
				passed++
			}

			// 5. Artifacts directory writable (only matters for the gateway)
			if cfg.Gateway.Enabled {
				if err := os.MkdirAll(cfg.Gateway.ArtifactsDir, 0o755); err != nil {
					printFail("Artifacts dir", err.Error())
					failed++
				} else {
					printPass("Artifacts dir", cfg.Gateway.ArtifactsDir)
					passed++
				}

				if err := checkPort(cfg.Gateway.Port); err != nil {
					printWarn("Gateway port", fmt.Sprintf("port %d may be in use: %v", cfg.Gateway.Port, err))
					warned++
				} else {
					printPass("Gateway port", fmt.Sprintf(":%d available", cfg.Gateway.Port))
					passed++
				}
			}

			// 6. Capability manifest + per-capability reachability
			manifest, err := pipeline.LoadManifest(cfg.Pipeline.ManifestPath, logger)
			if err != nil {
				printFail("Capability manifest", err.Error())
				failed++
				manifest = &pipeline.Manifest{}
			} else if cfg.Pipeline.ManifestPath != "" {
				printPass("Capability manifest", cfg.Pipeline.ManifestPath)
				passed++
			}

			capabilities := []string{
				pipeline.CapHistory,
				pipeline.CapUpload,
				pipeline.CapClarify,
				pipeline.CapTranscribe,
				pipeline.CapDetect,
				pipeline.CapGenerate,
			}
			checked := make(map[string]error)
			for _, capName := range capabilities {
				base := manifest.BaseURL(capName, cfg.Pipeline.BaseURL)
				reachErr, seen := checked[base]
				if !seen {
					reachErr = checkReachable(base)
					checked[base] = reachErr
				}
				if reachErr != nil {
					printWarn("Capability: "+capName, fmt.Sprintf("%s unreachable: %v", base, reachErr))
					warned++
				} else {
					printPass("Capability: "+capName, base)
					passed++
				}
			}

			// 7. Telegram token present when enabled
			if cfg.Channels.Telegram.Enabled {
				if cfg.Channels.Telegram.Token == "" {
					printFail("Telegram", "enabled but no token configured")
					failed++
				} else {
					printPass("Telegram", "token configured")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running vidbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nvidbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! vidbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

// checkReachable dials the capability's host. Any TCP-level answer counts;
// the pipeline's HTTP behavior is the running bot's problem, not doctor's.
func checkReachable(base string) error {
	u, err := url.Parse(base)
	if err != nil {
		return err
	}
	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	_ = ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
