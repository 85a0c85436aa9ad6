package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/label-scanner/internal/capture"
	"github.com/zombor/label-scanner/internal/ingredients"
	"github.com/zombor/label-scanner/internal/loop"
	"github.com/zombor/label-scanner/internal/present"
	"github.com/zombor/label-scanner/internal/scanning"
	"github.com/zombor/label-scanner/internal/scanning/tesseract"
	"github.com/zombor/label-scanner/internal/session"
	"github.com/zombor/label-scanner/internal/speech"
	"github.com/zombor/label-scanner/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// ocrOptions selects and configures the OCR engine
type ocrOptions struct {
	engine        string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	tesseractLang string
	ratePerSecond float64
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("label-scanner")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		imagePath     = fs.StringLong("image", "", "Scan a single label image and exit instead of serving")
		outPath       = fs.StringLong("out", "", "Write the rendered alert frame to this PNG file (with --image)")
		captureMode   = fs.StringLong("capture", "browser", "Frame source: 'browser' (webcam uploads) or 'screen'")
		screenX       = fs.IntLong("screen-x", 0, "Screen capture rectangle left edge")
		screenY       = fs.IntLong("screen-y", 0, "Screen capture rectangle top edge")
		screenW       = fs.IntLong("screen-w", 0, "Screen capture rectangle width (0 for the whole primary display)")
		screenH       = fs.IntLong("screen-h", 0, "Screen capture rectangle height (0 for the whole primary display)")
		ocrEngine     = fs.StringLong("ocr", "gemini", "OCR engine: 'gemini', 'ollama' or 'tesseract'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		tesseractLang = fs.StringLong("tesseract-lang", "eng", "Tesseract languages, '+' separated")
		ocrRate       = fs.Float64Long("ocr-rate", 0.5, "Maximum OCR requests per second (0 disables throttling)")
		fps           = fs.IntLong("fps", loop.DefaultConfig.FPS, "Render ticks per second")
		width         = fs.IntLong("width", loop.DefaultConfig.Width, "Rendered frame width")
		height        = fs.IntLong("height", loop.DefaultConfig.Height, "Rendered frame height")
		flaggedFor    = fs.DurationLong("flagged-duration", session.DefaultTiming.Flagged, "How long a flagged alert stays on screen")
		safeFor       = fs.DurationLong("safe-duration", session.DefaultTiming.Safe, "How long a safe result stays on screen")
		speechCmd     = fs.StringLong("speech-cmd", "", "Text-to-speech command run with the summary as its last argument (e.g., 'espeak', 'say')")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_             = fs.StringLong("config", "", "Config file with one 'flag value' pair per line")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LABEL_SCANNER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	timing := session.Timing{Flagged: *flaggedFor, Safe: *safeFor}
	if err := timing.Validate(); err != nil {
		slog.Error("Invalid alert timing", "error", err)
		os.Exit(1)
	}

	recognizer, err := newRecognizer(ocrOptions{
		engine:        *ocrEngine,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		tesseractLang: *tesseractLang,
		ratePerSecond: *ocrRate,
	})
	if err != nil {
		slog.Error("Failed to initialize OCR engine", "engine", *ocrEngine, "error", err)
		os.Exit(1)
	}
	defer recognizer.Close()

	dict := ingredients.Default()
	config := loop.Config{Width: *width, Height: *height, FPS: *fps}

	if *imagePath != "" {
		if err := scanImage(*imagePath, *outPath, recognizer, dict, timing, config); err != nil {
			slog.Error("Scan failed", "image", *imagePath, "error", err)
			os.Exit(1)
		}
		return
	}

	// Pick the frame source
	var (
		source capture.Source
		frames web.FrameSink
	)
	switch *captureMode {
	case "browser":
		latest := capture.NewLatest()
		source, frames = latest, latest
	case "screen":
		var bounds image.Rectangle
		if *screenW > 0 && *screenH > 0 {
			bounds = image.Rect(*screenX, *screenY, *screenX+*screenW, *screenY+*screenH)
		}
		screen, err := capture.NewScreen(bounds)
		if err != nil {
			slog.Error("Failed to initialize screen capture", "error", err)
			os.Exit(1)
		}
		slog.Info("Capturing screen region", "bounds", screen.Bounds())
		source = screen
	default:
		slog.Error("Invalid capture mode", "mode", *captureMode, "valid", "browser or screen")
		os.Exit(1)
	}

	broadcast := speech.NewBroadcast(32)
	speakers := speech.Multi{broadcast, speech.Log{}}
	if *speechCmd != "" {
		cmd, err := speech.NewCommand(*speechCmd)
		if err != nil {
			slog.Warn("Speech command unavailable, browser speech only", "command", *speechCmd, "error", err)
		} else {
			speakers = append(speakers, cmd)
		}
	}

	machine := session.NewMachine(source, recognizer, dict, timing)
	scanLoop := loop.New(machine, present.NewPresenter(speakers), source, session.SystemTime(), config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := scanLoop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Render loop error", "error", err)
		}
	}()

	basicAuth := web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := web.NewServer(scanLoop, frames, broadcast, dict, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "ocr", recognizer.Name(), "capture", *captureMode)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
}

// newRecognizer builds the configured OCR engine, throttled when a rate is set
func newRecognizer(opts ocrOptions) (scanning.Recognizer, error) {
	var (
		recognizer scanning.Recognizer
		err        error
	)
	switch opts.engine {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := opts.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini OCR...", "model", opts.geminiModel)
		recognizer, err = scanning.NewGemini(apiKey, opts.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama OCR...", "url", opts.ollamaURL, "model", opts.ollamaModel)
		recognizer, err = scanning.NewOllama(opts.ollamaURL, opts.ollamaModel)
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...", "languages", opts.tesseractLang)
		recognizer = tesseract.New(strings.Split(opts.tesseractLang, "+")...)
	default:
		return nil, fmt.Errorf("unknown OCR engine %q (valid: gemini, ollama or tesseract)", opts.engine)
	}
	if err != nil {
		return nil, err
	}

	if opts.ratePerSecond > 0 {
		recognizer = scanning.NewThrottled(recognizer, opts.ratePerSecond, 1)
	}
	return recognizer, nil
}

// scanImage runs a single scan over a still image and prints the result
func scanImage(path, outPath string, recognizer scanning.Recognizer, dict *ingredients.Dictionary, timing session.Timing, config loop.Config) error {
	still, err := capture.LoadStill(path)
	if err != nil {
		return err
	}

	machine := session.NewMachine(still, recognizer, dict, timing)
	scanLoop := loop.New(machine, present.NewPresenter(speech.Log{}), still, session.SystemTime(), config)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snap, frame, err := scanLoop.ScanOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", path, snap.Status)
	for _, m := range snap.Matches {
		fmt.Printf("  - %s: %s\n", m.Phrase, m.Explanation)
	}
	if snap.Status == ingredients.Flagged {
		fmt.Println(speech.Summary(snap.Matches))
	}

	if outPath != "" && frame != nil {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, frame); err != nil {
			return fmt.Errorf("writing rendered frame: %w", err)
		}
		slog.Info("Wrote rendered frame", "path", outPath)
	}
	return nil
}
