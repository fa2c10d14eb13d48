package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"askrelay/internal/config"
	"askrelay/internal/gateway"
	"askrelay/internal/provider"
	"askrelay/internal/version"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

var (
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "askrelay",
		Short:         "askrelay: relay questions to Gemini, OpenAI or Ollama",
		Long:          "askrelay forwards prompts to the configured LLM backend, streams the answer back and keeps a short history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.askrelay/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(popupCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(settingsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet. A file that exists but fails to parse or validate is an
// error.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("config not found, using defaults", "path", cfgPath)
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the general section. Output goes
// to stderr (or to out when non-nil) and is copied to logFile when set. The
// returned func closes the log file.
func newLogger(gen config.GeneralConfig, out io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if gen.LogLevel != "" {
		if err := level.UnmarshalText([]byte(gen.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", gen.LogLevel, err)
		}
	}
	if out == nil {
		out = os.Stderr
	}
	closer := func() {}
	if gen.LogFile != "" {
		path := config.ExpandPath(gen.LogFile)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}

// setup loads config and replaces the package logger. Callers must run the
// returned func on exit.
func setup(logOut io.Writer) (*config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	l, closeLog, err := newLogger(cfg.General, logOut)
	if err != nil {
		return nil, nil, err
	}
	logger = l
	return cfg, closeLog, nil
}

func providerOptions(gen config.GeneralConfig, l *slog.Logger) provider.Options {
	chunkDelay := time.Duration(gen.ChunkDelayMs) * time.Millisecond
	if gen.ChunkDelayMs == 0 {
		chunkDelay = -1
	}
	return provider.Options{
		Timeout:    time.Duration(gen.RequestTimeoutSeconds) * time.Second,
		ChunkDelay: chunkDelay,
		Retries:    gen.RetryAttempts,
		Logger:     l,
	}
}

func rateLimiter(gen config.GeneralConfig) *provider.RateLimiter {
	return provider.NewRateLimiter(gen.RateLimitBurst, float64(gen.RateLimitPerMinute))
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := filepath.Dir(cfg.History.DBPath)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "data", dataDir)
			fmt.Println("Next: run 'askrelay settings' to choose a provider.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket gateway",
		Long:  "Serves ask requests over WebSocket plus /status and /metrics. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(nil)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			settings := config.NewFileProvider(resolveConfigPath())
			dispatcher := provider.NewDispatcher(provider.DispatcherConfig{
				Settings: settings,
				Options:  providerOptions(cfg.General, logger),
				Limiter:  rateLimiter(cfg.General),
				Logger:   logger,
			})
			if err := dispatcher.Healthy(ctx); err != nil {
				logger.Warn("provider unhealthy at startup", "err", err)
			}

			gw := gateway.New(ctx, gateway.Config{Dispatcher: dispatcher, Logger: logger})
			srv := gateway.NewServer(gateway.ServerConfig{
				Addr:     cfg.Gateway.Addr(),
				Path:     cfg.Gateway.Path,
				Gateway:  gw,
				Settings: settings,
				Logger:   logger,
			})
			logger.Info("gateway starting", "endpoint", cfg.Gateway.Endpoint())
			if err := srv.Start(ctx); err != nil {
				return err
			}
			gw.Wait()
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the active provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(nil)
			if err != nil {
				return err
			}
			defer closeLog()

			settings := config.NewFileProvider(resolveConfigPath())
			s, err := settings.Get()
			if err != nil {
				return err
			}
			dispatcher := provider.NewDispatcher(provider.DispatcherConfig{
				Settings: settings,
				Options:  providerOptions(cfg.General, logger),
				Logger:   logger,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			table := uitable.New()
			table.Separator = "  "
			table.AddRow("provider:", s.Provider.Label())
			if err := dispatcher.Healthy(ctx); err != nil {
				table.AddRow("healthy:", "no")
				table.AddRow("error:", err.Error())
			} else {
				table.AddRow("healthy:", "yes")
			}
			table.AddRow("gateway:", cfg.Gateway.Endpoint())
			fmt.Println(table)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. settings.provider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. settings.provider ollama)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			table := uitable.New()
			table.Separator = "  "
			for _, k := range keys {
				table.AddRow(k, fmt.Sprint(paths[k]))
			}
			fmt.Println(table)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				s, err := info.ToJSON()
				if err != nil {
					return err
				}
				fmt.Println(s)
				return nil
			}
			fmt.Println(info.Text())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
