package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/scanning"
	"github.com/zombor/receipt-scanner/internal/scanning/tesseract"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type recognizerConfig struct {
	kind          string
	tesseractLang string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-scanner.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./files", "Storage directory path")
		recognizer    = fs.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		dpi           = fs.IntLong("dpi", scanning.DefaultDPI, "Page rendering resolution")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		scanTimeout   = fs.DurationLong("scan-timeout", 2*time.Minute, "Time limit for rendering and recognizing one document (0 disables)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	// A .env file in the working directory may supply RECEIPT_SCANNER_* and
	// GEMINI_API_KEY; variables already set win.
	_ = godotenv.Load()

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
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

	logger := slog.Default()

	textRecognizer, err := newRecognizer(recognizerConfig{
		kind:          *recognizer,
		tesseractLang: *tesseractLang,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize recognizer", "recognizer", *recognizer, "error", err)
		os.Exit(1)
	}

	pipeline := scanning.NewPipeline(
		scanning.NewFitzRenderer(*dpi, logger),
		textRecognizer,
		scanning.WithLogger(logger),
		scanning.WithTimeout(*scanTimeout),
	)

	// Documents named on the command line are scanned without starting the server
	if paths := fs.GetArgs(); len(paths) > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ok, err := scanning.ScanFiles(ctx, pipeline, paths, os.Stdout)
		if err != nil {
			slog.Error("Error writing results", "error", err)
		}
		if !ok {
			stop()
			os.Exit(1)
		}
		return
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
	server := receipt.NewServer(receiptService, basicAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "recognizer", *recognizer)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	if err := server.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		stop()
		db.Close()
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

func newRecognizer(cfg recognizerConfig, logger *slog.Logger) (scanning.TextRecognizer, error) {
	switch cfg.kind {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "language", cfg.tesseractLang)
		return tesseract.New(cfg.tesseractLang, logger), nil
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel, logger)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, logger)
	default:
		return nil, fmt.Errorf("unknown recognizer %q (valid: tesseract, gemini, ollama)", cfg.kind)
	}
}
