package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"askrelay/internal/config"
	"askrelay/internal/domain"
	"askrelay/internal/provider"
	"askrelay/internal/version"

	"github.com/spf13/cobra"
)

// checkReport tallies doctor results.
type checkReport struct {
	passed, warned, failed int
}

func (r *checkReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *checkReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *checkReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your askrelay setup",
		Long: `Verifies the configuration, history database, gateway port and the
active provider. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("askrelay doctor %s\n", version.Get())
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r checkReport

			if _, err := os.Stat(cfgPath); err != nil {
				r.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'askrelay init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			r.pass("Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config validation", "valid")

			if err := config.ValidateSettings(cfg.Settings); err != nil {
				r.fail("Settings", err.Error())
			} else {
				r.pass("Settings", cfg.Settings.Provider.Label())
			}

			if err := checkHistory(cfg); err != nil {
				r.fail("History database", err.Error())
			} else {
				r.pass("History database", cfg.History.DBPath)
			}

			if err := checkPort(cfg.Gateway.Addr()); err != nil {
				r.warn("Gateway port", fmt.Sprintf("%s may be in use: %v", cfg.Gateway.Addr(), err))
			} else {
				r.pass("Gateway port", cfg.Gateway.Addr()+" available")
			}

			dispatcher := provider.NewDispatcher(provider.DispatcherConfig{
				Settings: config.NewStaticProvider(cfg.Settings),
				Options:  providerOptions(cfg.General, logger),
				Logger:   logger,
			})
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := dispatcher.Healthy(ctx); err != nil {
				r.warn("Provider", err.Error())
			} else {
				r.pass("Provider", cfg.Settings.Provider.Label()+" reachable")
				if cfg.Settings.Provider == domain.ProviderOllama {
					if err := checkOllamaModel(ctx, cfg.Settings, providerOptions(cfg.General, logger)); err != nil {
						r.warn("Ollama model", err.Error())
					} else {
						r.pass("Ollama model", cfg.Settings.OllamaModel+" installed")
					}
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running askrelay.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\naskrelay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! askrelay is ready to run.\n")
			}
			return nil
		},
	}
}

// checkHistory opens the history database, which creates and migrates it,
// and pings it.
func checkHistory(cfg *config.Config) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := store.List(ctx); err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	return nil
}

// checkOllamaModel looks the configured model up in the server's /api/tags.
func checkOllamaModel(ctx context.Context, s domain.Settings, opts provider.Options) error {
	o := provider.NewOllama(provider.OllamaConfig{APIBase: s.OllamaEndpoint, Model: s.OllamaModel, Options: opts})
	ok, err := o.HasModel(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(o.PullHint())
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

