package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gwlsn/strikelab"
	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/api"
	"github.com/gwlsn/strikelab/internal/backend"
	"github.com/gwlsn/strikelab/internal/browse"
	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/config"
	"github.com/gwlsn/strikelab/internal/ffmpeg"
	"github.com/gwlsn/strikelab/internal/handoff"
	"github.com/gwlsn/strikelab/internal/jobs"
	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
	"github.com/gwlsn/strikelab/internal/tracing"
)

// purgeInterval is how often expired handoffs and their uploads are removed
const purgeInterval = 5 * time.Minute

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (default: ./config/strikelab.yaml)")
	port := flag.Int("port", 8080, "Port to listen on")
	referencePath := flag.String("references", "", "Override reference library path from config")
	flag.Parse()

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/strikelab.yaml"
		}
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Initialize logger with default level for this warning
		logger.Init("info")
		logger.Warn("Could not load config", "path", cfgPath, "error", err)
		cfg = config.DefaultConfig()
	}

	logger.InitWithFormat(cfg.LogLevel, cfg.LogFormat)

	if *referencePath != "" {
		cfg.ReferencePath = *referencePath
	}
	if cfg.ReferencePath != "" {
		if info, err := os.Stat(cfg.ReferencePath); err != nil || !info.IsDir() {
			logger.Error("Reference path does not exist", "path", cfg.ReferencePath)
			os.Exit(1)
		}
	}

	if err := os.MkdirAll(cfg.UploadDir(), 0755); err != nil {
		logger.Error("Could not create upload directory", "path", cfg.UploadDir(), "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracer(ctx, cfg.TracingEndpoint, strikelab.Version)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	handoffs, err := handoff.Open(ctx, handoff.Options{
		Backend: cfg.HandoffBackend,
		DSN:     cfg.HandoffDSN,
		TTL:     cfg.HandoffTTL,
		Redis: handoff.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
	})
	if err != nil {
		logger.Error("Failed to open handoff store", "backend", cfg.HandoffBackend, "error", err)
		os.Exit(1)
	}
	defer handoffs.Close()

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                         STRIKELAB                         ║")
	fmt.Println("║          Compare your technique against the pros          ║")
	versionLine := fmt.Sprintf("v%s", strikelab.Version)
	padding := 59 - len(versionLine)
	fmt.Printf("║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	if cfg.ReferencePath != "" {
		fmt.Printf("  References:   %s\n", cfg.ReferencePath)
	} else {
		fmt.Printf("  References:   (uploads only)\n")
	}
	fmt.Printf("  Config:       %s\n", cfgPath)
	fmt.Printf("  Uploads:      %s\n", cfg.UploadDir())
	fmt.Printf("  Handoffs:     %s (ttl %s)\n", cfg.HandoffBackend, cfg.HandoffTTL)
	fmt.Printf("  Workers:      %d\n", cfg.Workers)
	fmt.Printf("  Frames:       %d (max %d)\n", cfg.FrameCount, cfg.MaxFrameCount)
	fmt.Printf("  Backend:      %s\n", cfg.BackendURL)
	fmt.Printf("  FFmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Printf("  FFprobe:      %s\n", cfg.FFprobePath)
	fmt.Println()

	// Initialize components
	prober := ffmpeg.NewProber(cfg.FFprobePath)

	var library *browse.Browser
	if cfg.ReferencePath != "" {
		library = browse.NewBrowser(prober, cfg.ReferencePath)
	}

	frameSampler := sampler.New(pose.StaticDetector{}, sampler.Options{
		SeekTimeout:   cfg.SeekTimeout,
		SettleDelay:   cfg.SettleDelay,
		DefaultWidth:  cfg.DefaultWidth,
		DefaultHeight: cfg.DefaultHeight,
	})
	engine := compare.New(signalProvider(cfg), regionAnalyzer(cfg))
	pipeline := analysis.NewPipeline(analysis.FFmpegOpener{Prober: prober, FFmpegPath: cfg.FFmpegPath}, frameSampler, engine)

	queue := jobs.NewQueue()
	workerPool := jobs.NewWorkerPool(queue, pipeline, cfg.Workers)

	go purgeHandoffs(ctx, handoffs, queue, cfg.UploadDir(), cfg.HandoffTTL)

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)

	handler := api.NewHandler(queue, workerPool, handoffs, library, client, cfg, cfgPath)
	router := api.NewRouter(handler)

	workerPool.Start()

	fmt.Printf("  Starting server on port %d\n", *port)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	fmt.Println("─────────────────────────────────────────────────────────────")
	fmt.Printf("  Logging started (level: %s, format: %s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Println("─────────────────────────────────────────────────────────────")
	logger.Info("Strikelab started",
		"version", strikelab.Version,
		"workers", cfg.Workers,
		"port", *port,
		"signals", cfg.Signals,
		"differences", cfg.Differences,
		"tracing", cfg.TracingEndpoint != "",
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\n  Shutting down...")
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// SSE streams never finish on their own
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		workerPool.Stop()
		os.Exit(1)
	}

	workerPool.Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(flushCtx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}

	logger.Info("Server stopped")
	fmt.Println("  Goodbye!")
}

// signalProvider picks the power/explosiveness source named in the config
func signalProvider(cfg *config.Config) compare.SignalProvider {
	switch cfg.Signals {
	case "random":
		return compare.NewRandomSignals(uint64(cfg.SignalSeed))
	case "fixed":
		return compare.FixedSignals{HipRotation: 0.5, MovementSpeed: 0.5}
	default:
		return compare.KinematicSignals{}
	}
}

// regionAnalyzer picks the difference list source named in the config
func regionAnalyzer(cfg *config.Config) compare.RegionAnalyzer {
	if cfg.Differences == "deviation" {
		return compare.DeviationRegions{Regions: compare.DefaultRegions}
	}
	return compare.PlaceholderRegions{}
}

// purgeHandoffs removes expired handoffs and the uploads they pointed at
// until ctx is done. Redis expires keys itself; SQLite rows are deleted here.
// Uploads outlive their token by a minute so a job created at the last
// moment still finds its files, and files of queued jobs are never removed.
func purgeHandoffs(ctx context.Context, store handoff.Store, queue *jobs.Queue, uploadDir string, ttl time.Duration) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	sqlite, _ := store.(*handoff.SQLiteStore)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sqlite != nil {
				n, err := sqlite.PurgeExpired(ctx)
				if err != nil {
					logger.Warn("Failed to purge expired handoffs", "error", err)
				} else if n > 0 {
					logger.Debug("Purged expired handoffs", "count", n)
				}
			}

			n, err := handoff.SweepUploads(uploadDir, ttl+time.Minute, time.Now(), queue.InUse)
			if err != nil {
				logger.Warn("Failed to sweep uploads", "dir", uploadDir, "error", err)
			}
			if n > 0 {
				logger.Debug("Swept expired uploads", "count", n)
			}
		}
	}
}
