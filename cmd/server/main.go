// Package main provides the hub server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/mellowplay/hub/internal/api/gateway"
	"github.com/mellowplay/hub/internal/app/analyzer"
	"github.com/mellowplay/hub/internal/app/mixer"
	"github.com/mellowplay/hub/internal/app/notification"
	"github.com/mellowplay/hub/internal/app/session"
	"github.com/mellowplay/hub/internal/infra/audio"
	"github.com/mellowplay/hub/internal/infra/config"
	"github.com/mellowplay/hub/internal/infra/library"
	"github.com/mellowplay/hub/internal/infra/logger"
)

var (
	app        = kingpin.New("hub", "mellowplay native playback hub")
	configPath = app.Flag("config", "Path to config file").Default("config/hub.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// resolve command
	resolveCmd      = app.Command("resolve", "Resolve mix queries against a library and exit")
	resolveDB       = resolveCmd.Flag("db", "Path to the library database").Required().String()
	resolveRoot     = resolveCmd.Flag("root", "Music root directory").String()
	resolveQueries  = resolveCmd.Flag("query", "Mix query, steps as operator=parameter joined by ';' (repeatable)").Strings()
	resolveFallback = resolveCmd.Flag("fallback", "Fallback media file IDs").Int64List()
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the hub server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if command == resolveCmd.FullCommand() {
		if err := runResolve(); err != nil {
			zlog.Error().Msgf("Resolve error: %v", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if *logfile != "" {
		// Re-init with rotation limits from the config file.
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
		loggerConfig.MaxBackups = cfg.Log.MaxBackups
		if !*verbose {
			loggerConfig.Level = cfg.Log.Level
		}
		if err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		zlog.Info().Msgf("Config file %s not found, using defaults", path)
		return config.Default()
	}
	zlog.Info().Msgf("Loading config from %s", path)
	return config.Load(path)
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	engineSettings, err := audio.ParseSettings(cfg.Engine.Settings)
	if err != nil {
		return fmt.Errorf("invalid engine settings: %w", err)
	}
	if cfg.Engine.Type != "speaker" {
		return fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}

	// The analyzer taps the playback path; its frames reach clients through
	// the dispatcher created below.
	var dispatcher *gateway.Dispatcher
	var tap audio.Tap
	var spectrumAnalyzer *analyzer.Analyzer
	if cfg.Analyzer.Enabled {
		spectrumAnalyzer = analyzer.New(analyzer.Config{
			WindowSize: cfg.Analyzer.WindowSize,
			Bins:       cfg.Analyzer.Bins,
			Interval:   time.Duration(cfg.Analyzer.IntervalMs) * time.Millisecond,
		}, func(bins []float64) {
			if d := dispatcher; d != nil {
				d.PublishSpectrum(bins)
			}
		})
		tap = spectrumAnalyzer.Feed
		defer spectrumAnalyzer.Close()
	}

	engine, err := audio.NewEngine(engineSettings, tap)
	if err != nil {
		return fmt.Errorf("failed to create audio engine: %w", err)
	}
	defer engine.Close()

	sess := session.New(engine, session.Config{
		ProgressInterval: time.Duration(cfg.Playback.ProgressIntervalMs) * time.Millisecond,
	})
	defer sess.Close()

	broadcast := notification.NewManager()
	defer broadcast.Close()

	musicRoot := cfg.Library.MusicRoot
	opener := func(ctx context.Context, path string) (mixer.Library, gateway.Hydrator, error) {
		store, err := library.Open(path, musicRoot)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}

	dispatcher = gateway.NewDispatcher(sess, broadcast, opener)
	defer dispatcher.Close()

	// A configured library skips the client handshake.
	if cfg.Library.DatabasePath != "" {
		store, err := library.Open(cfg.Library.DatabasePath, cfg.Library.MusicRoot)
		if err != nil {
			return fmt.Errorf("failed to open library: %w", err)
		}
		defer store.Close()
		dispatcher.AttachLibrary(store, store)
		zlog.Info().Msgf("Media library attached: db=%s root=%s", cfg.Library.DatabasePath, cfg.Library.MusicRoot)
	}

	handler := gateway.NewHandler(dispatcher, broadcast)

	router := mux.NewRouter()
	router.HandleFunc("/ws", handler.ServeWS)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting hub: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Hub stopped")
	return nil
}

// runResolve executes mix queries from the command line and prints the
// matching tracks.
func runResolve() error {
	root := *resolveRoot
	if root == "" {
		root = "."
	}
	store, err := library.Open(*resolveDB, root)
	if err != nil {
		return err
	}
	defer store.Close()

	queries, err := parseQueries(*resolveQueries)
	if err != nil {
		return err
	}

	resolver := mixer.NewResolver(store)
	ids, err := resolver.Resolve(context.Background(), queries, *resolveFallback)
	if err != nil {
		return err
	}

	files, err := store.FilesByIDs(context.Background(), ids)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%6d  %s\n", f.ID, f.Label())
	}
	fmt.Printf("%d tracks\n", len(files))
	return nil
}

// parseQueries turns CLI flags into mix queries. Each flag value is one
// query; steps are separated by ';' and written as operator=parameter.
func parseQueries(raw []string) ([]mixer.Query, error) {
	queries := make([]mixer.Query, 0, len(raw))
	for _, q := range raw {
		var steps []mixer.Step
		for _, part := range strings.Split(q, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			op, param, _ := strings.Cut(part, "=")
			steps = append(steps, mixer.Step{Operator: op, Parameter: param})
		}
		if len(steps) == 0 {
			return nil, fmt.Errorf("empty query %q", q)
		}
		queries = append(queries, mixer.Query{Steps: steps})
	}
	return queries, nil
}
