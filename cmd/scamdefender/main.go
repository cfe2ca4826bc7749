package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/artifact"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/config"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/features"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/ml"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/sandbox"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/scan"
	"github.com/Kubojah-Dan/AI-SCAM-DEFENDER/pkg/store"
)

const Version = "0.1.0"

// Engine holds the wired scan pipeline. Postgres and Redis are optional and
// gracefully degrade to in-process equivalents when unavailable.
type Engine struct {
	config       *config.Config
	store        store.Store
	artifacts    *artifact.Cache
	orchestrator *scan.Orchestrator
	reports      *scan.Reports
	streamer     *scan.Streamer
	sandbox      *sandbox.Service
}

// NewEngine wires every component from config.
func NewEngine(ctx context.Context, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	// Persistence: Postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("○ Postgres unavailable (%v), falling back to in-memory store", err)
			st = store.NewMemoryStore()
		} else {
			log.Println("✓ Postgres persistence enabled")
			st = pg
		}
	} else {
		log.Println("○ No database configured, using in-memory store (history lost on restart)")
		st = store.NewMemoryStore()
	}

	// Verdict cache: Redis when configured, in-process otherwise
	var cache scan.VerdictCache
	switch {
	case cfg.VerdictCacheTTL <= 0:
		log.Println("○ Verdict cache disabled")
		cache = scan.NewNoopCache()
	case cfg.RedisURL != "":
		redisCache, err := scan.NewRedisCache(ctx, cfg.RedisURL, cfg.VerdictCacheTTL)
		if err != nil {
			log.Printf("○ Redis unavailable (%v), using in-process verdict cache", err)
			cache = scan.NewLocalCache(cfg.VerdictCacheTTL)
		} else {
			log.Println("✓ Redis verdict cache enabled")
			cache = redisCache
		}
	default:
		cache = scan.NewLocalCache(cfg.VerdictCacheTTL)
	}

	artifacts := artifact.NewCache(cfg.ModelDir, cfg.OnnxLibraryPath)
	models := ml.NewModelService(artifacts)

	thresholds := scan.Thresholds{
		Critical: cfg.CriticalThreshold,
		High:     cfg.HighThreshold,
		Medium:   cfg.MediumThreshold,
	}

	return &Engine{
		config:       cfg,
		store:        st,
		artifacts:    artifacts,
		orchestrator: scan.NewOrchestrator(models, st, cache, thresholds, cfg.ExcerptMaxLen),
		reports:      scan.NewReports(st),
		streamer:     scan.NewStreamer(st, cfg.StreamPollInterval, cfg.StreamBatchSize),
		sandbox:      sandbox.NewService(cfg.SandboxMaxConcurrent, cfg.SandboxMaxFileBytes),
	}
}

// Close releases the engine's external resources.
func (e *Engine) Close() {
	e.artifacts.Close()
	e.store.Close()
}

func loadConfig() *config.Config {
	path := config.GetEnv("SCAMDEFENDER_CONFIG", "scamdefender.yaml")
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("[STARTUP] %v", err)
	}
	cfg.MustValidate()
	return cfg
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cfg := loadConfig()
		if len(os.Args) > 2 {
			cfg.ListenPort = os.Args[2]
		}
		runHTTPServer(cfg)
	case "scan":
		if len(os.Args) < 4 {
			fmt.Println("Usage: scamdefender scan <email|message|url|file|fraud> <input...>")
			os.Exit(1)
		}
		runCLIScan(os.Args[2], os.Args[3:])
	case "sandbox":
		if len(os.Args) < 3 {
			fmt.Println("Usage: scamdefender sandbox <file-path>")
			os.Exit(1)
		}
		runCLISandbox(os.Args[2])
	case "stream":
		since := int64(0)
		if len(os.Args) > 3 && os.Args[2] == "--since" {
			since, _ = strconv.ParseInt(os.Args[3], 10, 64)
		}
		runCLIStream(since)
	case "models":
		listModels()
	case "version":
		fmt.Printf("Scam Defender v%s\n", Version)
		fmt.Println("Threat Scoring & Sandbox Analysis Engine")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Scam Defender v%s - Threat Scoring & Sandbox Analysis Engine\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  scamdefender serve [port]              Start HTTP server (default: 5000)")
	fmt.Println("  scamdefender scan email <subj> <body>  Classify an email")
	fmt.Println("  scamdefender scan message <text>       Classify a short message")
	fmt.Println("  scamdefender scan url <url>            Classify a URL")
	fmt.Println("  scamdefender scan file <path>          Classify a file")
	fmt.Println("  scamdefender scan fraud <json>         Classify a transaction")
	fmt.Println("  scamdefender sandbox <path>            Full sandbox analysis of a file")
	fmt.Println("  scamdefender stream [--since N]        Follow the alert stream")
	fmt.Println("  scamdefender models                    Show artifact availability")
	fmt.Println("  scamdefender version                   Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  SCAMDEFENDER_MODEL_DIR     Directory holding trained ONNX artifacts")
	fmt.Println("  SCAMDEFENDER_DATABASE_URL  Postgres DSN (empty = in-memory store)")
	fmt.Println("  SCAMDEFENDER_REDIS_URL     Redis address for the verdict cache")
	fmt.Println("  SCAMDEFENDER_ONNX_LIB      Path to libonnxruntime shared library")
}

// ============================================================================
// CLI Modes
// ============================================================================

func runCLIScan(scanType string, args []string) {
	engine := NewEngine(context.Background(), loadConfig())
	defer engine.Close()
	ctx := context.Background()

	var (
		record *store.ScanRecord
		err    error
	)
	switch scanType {
	case "email":
		subject := args[0]
		message := ""
		if len(args) > 1 {
			message = strings.Join(args[1:], " ")
		}
		record, err = engine.orchestrator.ScanEmail(ctx, subject, message)
	case "message":
		record, err = engine.orchestrator.ScanMessage(ctx, strings.Join(args, " "))
	case "url":
		record, err = engine.orchestrator.ScanURL(ctx, args[0])
	case "file":
		var data []byte
		data, err = os.ReadFile(args[0])
		if err != nil {
			log.Fatalf("read file: %v", err)
		}
		record, err = engine.orchestrator.ScanFile(ctx, data, args[0])
	case "fraud":
		var tx features.Transaction
		if err := json.Unmarshal([]byte(strings.Join(args, " ")), &tx); err != nil {
			log.Fatalf("parse transaction: %v", err)
		}
		record, err = engine.orchestrator.ScanFraud(ctx, tx)
	default:
		fmt.Printf("Unknown scan type %q\n", scanType)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	printJSON(record)
}

func runCLISandbox(path string) {
	engine := NewEngine(context.Background(), loadConfig())
	defer engine.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read file: %v", err)
	}

	report, err := engine.sandbox.AnalyzeFile(context.Background(), data, path)
	if err != nil {
		log.Fatalf("sandbox analysis failed: %v", err)
	}
	printJSON(report)
}

func runCLIStream(since int64) {
	engine := NewEngine(context.Background(), loadConfig())
	defer engine.Close()

	log.Printf("Following alert stream from id %d (Ctrl-C to stop)", since)
	for event := range engine.streamer.Subscribe(context.Background(), since) {
		if event.Type != "alert" {
			continue
		}
		printJSON(event.Alert)
	}
}

func listModels() {
	engine := NewEngine(context.Background(), loadConfig())
	defer engine.Close()

	fmt.Println("Artifact availability:")
	printJSON(engine.orchestrator.ModelStatus())
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
