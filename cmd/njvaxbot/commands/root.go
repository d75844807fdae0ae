package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"njvaxbot/internal/config"
	"njvaxbot/internal/fetch"
	"njvaxbot/internal/logger"
	"njvaxbot/internal/metrics"
	"njvaxbot/internal/pipeline"
	"njvaxbot/internal/render"
	"njvaxbot/internal/run"
	"njvaxbot/internal/source"
	"njvaxbot/internal/telemetry"
)

const defaultConfigPath = "configs/njvaxbot.yaml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "njvaxbot",
	Short:         "njvaxbot builds choropleth maps of NJ county and Chicago zip code COVID data.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Overrides logging.level (debug, info, warn, error).")
}

// ExecuteContext runs the root command and exits 1 on error.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is everything a subcommand needs for one run.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	scraper  *source.Scraper
	pipeline *pipeline.Pipeline
	run      run.Context
	shutdown telemetry.Shutdown
}

// loadConfig resolves the config path from --config or NJVAXBOT_CONFIG and loads it.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := configPath
	if p := os.Getenv(config.EnvConfigPath); p != "" && !cmd.Flags().Changed("config") {
		path = p
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, path, err
	}

	return cfg, path, nil
}

// profile is the per-command part of the wiring.
type profile struct {
	width    int
	timezone string
}

// setup loads configuration and wires the pipeline. NJVAXBOT_CONFIG applies
// when --config is not given explicitly.
func setup(cmd *cobra.Command, pick func(*config.Config) profile) (*env, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if logLevel != "" {
		log.SetLevel(logLevel)
	}

	log.Debug("configuration loaded", "path", path, "config", cfg.String())

	shutdown, err := telemetry.Setup(cmd.Context(), telemetry.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	prof := pick(cfg)

	rc, err := run.New(time.Now(), cfg.Location(prof.timezone))
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(cfg.Retry.Budget, cfg.Retry.GetBackoff(), log)
	if err != nil {
		return nil, err
	}

	scraper := source.NewScraper(source.ScraperOptions{
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           cfg.HTTP.GetTimeout(),
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		BufferSizeKb:      cfg.HTTP.BufferSizeKb,
	})

	return &env{
		cfg:      cfg,
		log:      log,
		scraper:  scraper,
		pipeline: pipeline.New(cfg, log, fetcher, render.NewSVGSink(prof.width), metrics.New()),
		run:      rc,
		shutdown: shutdown,
	}, nil
}

// close flushes traces.
func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.shutdown(ctx); err != nil {
		e.log.Warn(fmt.Sprintf("⚠️  Failed to flush traces: %v", err))
	}
}
