package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"botd/internal/bot"
	"botd/internal/chat"
	"botd/internal/config"
	"botd/internal/httpapi"
	"botd/internal/llm"
	"botd/internal/tools"
)

type cliFlags struct {
	configPath string
	modelPath  string
	addr       string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:           "botd",
		Short:         "Local-LLM chat bot daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (.toml/.yaml/.json)")
	root.PersistentFlags().StringVar(&flags.modelPath, "model-path", "", "Path to gguf weights (overrides config and MODEL_PATH)")
	root.PersistentFlags().StringVar(&flags.addr, "addr", "", "Ops HTTP listen address")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: load model, warm session, start transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	warm := &cobra.Command{
		Use:   "warm",
		Short: "Build the base-prompt session file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(flags)
		},
	}
	root.AddCommand(serve, warm)
	return root
}

// loadConfig layers defaults < file < env < flags.
func loadConfig(flags cliFlags) (config.Config, error) {
	var cfg config.Config
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if flags.modelPath != "" {
		cfg.ModelPath = flags.modelPath
	}
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func contextConfig(cfg config.Config) llm.ContextConfig {
	threads := cfg.NThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	threadsBatch := cfg.NThreadsBatch
	if threadsBatch <= 0 {
		threadsBatch = threads
	}
	return llm.ContextConfig{
		NCtx:          int32(cfg.NCtx),
		NThreads:      int32(threads),
		NThreadsBatch: int32(threadsBatch),
	}
}

func buildEngine(cfg config.Config, log zerolog.Logger) (*llm.Engine, string, error) {
	modelPath, err := config.ResolveModelPath(cfg.ModelPath)
	if err != nil {
		return nil, "", err
	}
	log.Info().Str("model", modelPath).Msg("loading model")
	model, err := llm.OpenModel(modelPath)
	if err != nil {
		return nil, "", fmt.Errorf("open model: %w", err)
	}
	engine := llm.NewEngine(model, llm.Options{
		Context:              contextConfig(cfg),
		SessionPath:          cfg.SessionPath,
		BasePrompt:           llm.BasePrompt,
		MaxGenerationTokens:  cfg.MaxGenerationTokens,
		MaxConcurrentDecodes: cfg.MaxConcurrentDecodes,
		Logger:               log.With().Str("component", "llm").Logger(),
	})
	return engine, modelPath, nil
}

func runWarm(flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)
	engine, _, err := buildEngine(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("initialization failed")
		return err
	}
	if err := engine.Warm(context.Background()); err != nil {
		log.Error().Err(err).Msg("warm failed")
		return err
	}
	return nil
}

func runServe(flags cliFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	engine, modelPath, err := buildEngine(cfg, log)
	if err != nil {
		// model load failure makes forward progress impossible
		log.Error().Err(err).Msg("initialization failed")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Warm failure is non-fatal: the per-call fallback carries the load.
	if err := engine.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("session warm failed, first calls will be slow")
	}

	dispatcher := tools.New(tools.Options{
		Logger: log.With().Str("component", "tools").Logger(),
	})

	if cfg.TelegramToken == "" {
		err := errors.New("telegram token not configured (set BOTD_TELEGRAM_TOKEN)")
		log.Error().Err(err).Msg("initialization failed")
		return err
	}

	b := bot.New(ctx, bot.Options{
		LLM:             engine,
		Tools:           dispatcher,
		Logger:          log.With().Str("component", "lifecycle").Logger(),
		ForceResetDelay: time.Duration(cfg.ForceResetSeconds) * time.Second,
		GoodbyeDelay:    time.Duration(cfg.GoodbyeSeconds) * time.Second,
		ModelPath:       modelPath,
		SessionPath:     cfg.SessionPath,
		SessionWarm:     engine.SessionWarm,
	})
	defer b.Close()

	tg, err := chat.NewTelegram(cfg.TelegramToken, b,
		log.With().Str("component", "telegram").Logger())
	if err != nil {
		log.Error().Err(err).Msg("transport authentication failed")
		return err
	}
	b.SetSender(tg)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(b, log)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tg.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("runtime error")
		return err
	}
	log.Info().Msg("clean shutdown")
	return nil
}
