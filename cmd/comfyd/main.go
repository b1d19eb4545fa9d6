package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"comfyd/internal/comfy"
	"comfyd/internal/config"
	"comfyd/internal/deliver"
	"comfyd/internal/httpapi"
	"comfyd/internal/job"
	"comfyd/internal/queue"
	"comfyd/internal/workflow"
)

func main() {
	// A .env next to the binary feeds the same variables the deployment
	// would set; absence is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file (.toml, .yaml or .json)")
	addr := flag.String("addr", "", "HTTP listen address, e.g. :8080 (overrides config)")
	workflowsDir := flag.String("workflows-dir", "", "Directory of workflow definition JSON files (overrides config)")
	outputDir := flag.String("output-dir", "", "Engine output directory (overrides config)")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (enables CORS)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	config.ApplyEnv(&cfg)
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *workflowsDir != "" {
		cfg.Workflows.Dir = *workflowsDir
	}
	if *outputDir != "" {
		cfg.Workflows.OutputDir = *outputDir
	}
	if origins := splitCSV(*corsOrigins); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.Origins = origins
	}
	if err := cfg.Normalize(); err != nil {
		log.Fatalf("normalize config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg.Log)

	reg, err := workflow.NewRegistry(cfg.Workflows.Dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Workflows.Dir).Msg("load workflows")
	}

	sup := comfy.NewSupervisor(cfg.Engine, logger)
	client := comfy.NewClient(cfg.Engine.BaseURL(), cfg.Jobs.PollInterval(), cfg.Jobs.Timeout())
	binder := workflow.NewBinder(workflow.NewFetcher(), cfg.Workflows.InputDir)
	pipeline := deliver.NewPipeline(deliver.NewS3Uploader(cfg.Storage), cfg.Storage.KeyPrefix, logger)

	runner := job.NewRunner(job.Options{
		Supervisor: sup,
		Registry:   reg,
		Binder:     binder,
		Client:     client,
		Pipeline:   pipeline,
		OutputDir:  cfg.Workflows.OutputDir,
		QueueWait:  cfg.Jobs.QueueWait(),
		Logger:     logger,
	})

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(baseCtx)
	if cfg.CORS.Enabled {
		httpapi.SetCORSOptions(true, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(runner)}

	g, gctx := errgroup.WithContext(baseCtx)

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("engine", cfg.Engine.BaseURL()).
			Strs("workflows", reg.Names()).
			Msg("comfyd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if cfg.Queue.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer rdb.Close()
		consumer := queue.NewConsumer(
			queue.NewRedisQueue(rdb, cfg.Queue.JobsList, cfg.Queue.ResultsList),
			runner, logger, cfg.Queue.PopTimeout(),
		)
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.Jobs.Prewarm {
		// Warm the engine in the background so a cold worker is ready
		// before the first request lands.
		go func() {
			if err := sup.EnsureReady(baseCtx); err != nil && baseCtx.Err() == nil {
				logger.Warn().Err(err).Msg("engine prewarm failed")
			}
		}()
	}

	err = g.Wait()
	sup.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("comfyd exited")
	}
	logger.Info().Msg("comfyd stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
