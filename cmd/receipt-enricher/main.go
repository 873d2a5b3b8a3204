package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-enricher/internal/config"
	"github.com/zombor/receipt-enricher/internal/enrich"
	"github.com/zombor/receipt-enricher/internal/llm"
	"github.com/zombor/receipt-enricher/internal/metrics"
	"github.com/zombor/receipt-enricher/internal/ocr"
	"github.com/zombor/receipt-enricher/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("receipt-enricher")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "receipt-enricher.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Storage directory path")
		docEndpoint    = fs.StringLong("docintel-endpoint", "", "Document Intelligence endpoint (or set DOCUMENT_INTELLIGENCE_ENDPOINT env var)")
		docKey         = fs.StringLong("docintel-key", "", "Document Intelligence key (or set DOCUMENT_INTELLIGENCE_KEY env var)")
		docModel       = fs.StringLong("docintel-model", "prebuilt-receipt", "Document Intelligence model ID")
		aiType         = fs.StringLong("ai", "gemini", "AI categorization backend: 'gemini', 'ollama' or 'none'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llama3", "Ollama model name")
		threshold      = fs.IntLong("threshold", config.DefaultConfidenceThreshold, "Minimum overall confidence (0-100) for automatic approval")
		weightsFile    = fs.StringLong("weights-file", "", "JSON file with per-field confidence weights")
		rulesFile      = fs.StringLong("rules-file", "", "YAML or JSON file with ordered category keyword rules")
		categoriesFile = fs.StringLong("categories-file", "", "JSON file with the list of valid categories")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		checkSetup     = fs.BoolLong("check-setup", "Verify document analysis credentials and exit")
		analyzePath    = fs.StringLong("analyze", "", "Analyze a single file, print the enriched record as JSON and exit")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ENRICHER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	endpoint := firstNonEmpty(*docEndpoint, os.Getenv("DOCUMENT_INTELLIGENCE_ENDPOINT"))
	key := firstNonEmpty(*docKey, os.Getenv("DOCUMENT_INTELLIGENCE_KEY"))

	if *checkSetup {
		os.Exit(runCheckSetup(endpoint, key))
	}

	azure, err := ocr.NewAzure(endpoint, key, ocr.WithModel(*docModel))
	if err != nil {
		slog.Error("Document analysis is not configured. Set --docintel-endpoint and --docintel-key or DOCUMENT_INTELLIGENCE_ENDPOINT and DOCUMENT_INTELLIGENCE_KEY", "error", err)
		os.Exit(1)
	}

	settings := config.Load(config.Paths{
		Weights:    *weightsFile,
		Rules:      *rulesFile,
		Categories: *categoriesFile,
	}, *threshold, slog.Default())

	completer := newCompleter(*aiType, firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")), *geminiModel, *ollamaURL, *ollamaModel)
	if completer != nil {
		defer completer.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	pipeline := enrich.NewPipeline(azure, settings, completer, enrich.WithMetrics(m))

	if *analyzePath != "" {
		os.Exit(runAnalyze(pipeline, *analyzePath))
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receiptService := receipt.NewService(db, pipeline, store)

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth, promhttp.Handler())

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"threshold", settings.ConfidenceThreshold,
		"ai", completer != nil,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// newCompleter builds the optional AI categorization backend. A nil result
// means keyword rules only.
func newCompleter(aiType, geminiKey, geminiModel, ollamaURL, ollamaModel string) llm.Completer {
	switch aiType {
	case "none", "":
		slog.Info("AI categorization disabled")
		return nil
	case "gemini":
		if geminiKey == "" {
			slog.Info("No Gemini API key configured, AI categorization disabled")
			return nil
		}
		slog.Info("Initializing Gemini categorizer...", "model", geminiModel)
		g, err := llm.NewGemini(geminiKey, geminiModel)
		if err != nil {
			slog.Warn("Failed to initialize Gemini, AI categorization disabled", "error", err)
			return nil
		}
		return g
	case "ollama":
		slog.Info("Initializing Ollama categorizer...", "url", ollamaURL, "model", ollamaModel)
		o, err := llm.NewOllama(ollamaURL, ollamaModel)
		if err != nil {
			slog.Warn("Failed to initialize Ollama, AI categorization disabled", "error", err)
			return nil
		}
		return o
	default:
		slog.Error("Invalid AI type", "type", aiType, "valid", "gemini, ollama or none")
		os.Exit(1)
		return nil
	}
}

// runCheckSetup reports whether document analysis credentials are present
func runCheckSetup(endpoint, key string) int {
	fmt.Printf("DOCUMENT_INTELLIGENCE_ENDPOINT: %s\n", setupState(endpoint))
	fmt.Printf("DOCUMENT_INTELLIGENCE_KEY: %s\n", setupState(key))

	if _, err := ocr.NewAzure(endpoint, key); err != nil {
		fmt.Println("Setup incomplete: document analysis credentials not found")
		return 1
	}
	fmt.Println("Setup complete")
	return 0
}

func setupState(v string) string {
	if v == "" {
		return "missing"
	}
	return "set"
}

// runAnalyze enriches a single file and prints the record
func runAnalyze(pipeline *enrich.Pipeline, path string) int {
	result, err := pipeline.AnalyzeFile(context.Background(), path)
	if err != nil {
		slog.Error("Failed to analyze file", "path", path, "error", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		slog.Error("Failed to encode result", "error", err)
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
