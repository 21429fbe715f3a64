package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memobot/internal/channel"
	"memobot/internal/classify"
	"memobot/internal/config"
	"memobot/internal/domain"
	"memobot/internal/intake"
	"memobot/internal/media"
	"memobot/internal/memstore"
	"memobot/internal/ratelimit"
	"memobot/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "memobot",
		Short:   "Memobot: inbound message gateway for the memory assistant",
		Long:    "Memobot receives provider webhook deliveries, verifies and admits them, and turns them into stored or recalled memories.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.memobot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
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

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			dataDir := config.ExpandPath(cfg.General.DataDir)
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "dataDir", dataDir)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				logger.Info("storage", "path", cfg.Storage.DBPath, "healthy", false, "err", err)
			} else {
				logger.Info("storage", "path", cfg.Storage.DBPath, "healthy", true)
				st.Close()
			}

			if cfg.MemoryStore.BaseURL != "" {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				remote := memstore.NewRemote(memstore.RemoteConfig{
					BaseURL: cfg.MemoryStore.BaseURL,
					APIKey:  cfg.MemoryStore.APIKey,
					Logger:  logger,
				})
				if err := remote.Healthy(ctx); err != nil {
					logger.Info("memoryStore", "url", cfg.MemoryStore.BaseURL, "healthy", false, "err", err)
				} else {
					logger.Info("memoryStore", "url", cfg.MemoryStore.BaseURL, "healthy", true)
				}
			} else {
				logger.Info("memoryStore", "configured", false, "degradedMode", cfg.MemoryStore.DegradedMode)
			}
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
		Short: "Get a config value (e.g. webhook.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
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
		Short: "Set a config value (e.g. webhook.port 8080)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
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

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the webhook intake gateway",
		Long:  "Starts the provider webhook server and the intake pipeline. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.General.LogLevel)}))

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return fmt.Errorf("interaction store: %w", err)
	}
	defer st.Close()

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	memories, err := buildMemoryStore(cfg, st)
	if err != nil {
		return err
	}
	if err := memories.Healthy(ctx); err != nil {
		logger.Warn("memory store unhealthy at startup", "err", err)
	} else {
		logger.Info("memory store healthy")
	}

	var mediaIntake *media.Intake
	if cfg.Media.BaseURL != "" {
		mediaIntake = media.NewIntake(media.NewProcessor(media.ProcessorConfig{
			BaseURL: cfg.Media.BaseURL,
			APIKey:  cfg.Media.APIKey,
			Timeout: time.Duration(cfg.Media.TimeoutSeconds) * time.Second,
			Logger:  logger,
		}), logger)
	} else {
		logger.Info("media processing disabled, attachments are stored by reference only")
	}

	orchestrator := intake.New(intake.Config{
		Store:       st,
		Memories:    memories,
		Media:       mediaIntake,
		Classifier:  classifier,
		CallTimeout: time.Duration(cfg.MemoryStore.TimeoutSeconds) * time.Second,
		SearchLimit: cfg.Classifier.SearchLimit,
		Logger:      logger,
	})

	limiter := ratelimit.New(ratelimit.Config{
		Global:   toRule(cfg.RateLimit.Global),
		Routes:   toRules(cfg.RateLimit.Routes),
		Identity: toRule(cfg.RateLimit.Identity),
		Logger:   logger,
	})
	sweep := time.Duration(cfg.RateLimit.SweepSeconds) * time.Second
	if sweep <= 0 {
		sweep = time.Minute
	}
	go limiter.Sweep(ctx, sweep)

	webhook := channel.NewWebhook(channel.WebhookConfig{
		Port:          cfg.Webhook.Port,
		Path:          cfg.Webhook.Path,
		SigningSecret: cfg.Webhook.SigningSecret,
		PublicBaseURL: cfg.Webhook.PublicBaseURL,
		Limiter:       limiter,
		Orchestrator:  orchestrator,
		Logger:        logger,
	})

	logger.Info("gateway starting", "port", cfg.Webhook.Port, "path", cfg.Webhook.Path)
	return webhook.Start(ctx)
}

func buildClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.Classifier.KeywordsPath == "" {
		return classify.New(), nil
	}
	return classify.LoadKeywords(cfg.Classifier.KeywordsPath, logger)
}

// buildMemoryStore assembles the memory store chain: remote only, remote
// with local fallback, or local only when running fully degraded.
func buildMemoryStore(cfg *config.Config, st *store.SQLiteStore) (domain.MemoryStore, error) {
	if cfg.MemoryStore.BaseURL == "" {
		if !cfg.MemoryStore.DegradedMode {
			return nil, fmt.Errorf("memoryStore.baseUrl is empty and degraded mode is off")
		}
		logger.Warn("no remote memory store configured, running on local keyword search only")
		return memstore.NewLocal(st), nil
	}

	remote := memstore.NewRemote(memstore.RemoteConfig{
		BaseURL:    cfg.MemoryStore.BaseURL,
		APIKey:     cfg.MemoryStore.APIKey,
		Timeout:    time.Duration(cfg.MemoryStore.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MemoryStore.MaxRetries,
		Logger:     logger,
	})
	if cfg.MemoryStore.DegradedMode {
		return memstore.NewTwoTier(remote, memstore.NewLocal(st), logger), nil
	}
	return memstore.NewTwoTier(remote, nil, logger), nil
}

func toRule(r config.Rule) ratelimit.Rule {
	return ratelimit.Rule{Max: r.Max, Window: time.Duration(r.WindowSeconds) * time.Second}
}

func toRules(rules map[string]config.Rule) map[string]ratelimit.Rule {
	out := make(map[string]ratelimit.Rule, len(rules))
	for name, r := range rules {
		out[name] = toRule(r)
	}
	return out
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
