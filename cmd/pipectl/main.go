package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativeinference "github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin"
	"github.com/Kataglyphis/Kataglyphis-NativeInferencePlugin/internal/engine/gstengine"
)

// Version information
const version = "v0.1.0"

const defaultPipeline = "videotestsrc ! videoconvert ! video/x-raw,format=RGBA ! appsink"

func main() {
	// Parse command-line flags
	description := flag.String("pipeline", defaultPipeline, "gst-launch pipeline description")
	configPath := flag.String("config", "", "YAML config file (optional, PIPELINECTL_* env vars override it)")
	windowID := flag.String("window", "", "Native window handle for overlay sinks (decimal or 0x-prefixed)")
	duration := flag.Duration("duration", 5*time.Second, "How long to play before stopping (0 = until Ctrl+C)")
	color := flag.String("color", "", "Foreground colour r,g,b for the test source (optional)")
	outputDir := flag.String("output", "", "Directory to save copied-out frames (optional)")
	outputFormat := flag.String("format", "png", "Output format: png, jpeg")
	jpegQuality := flag.Int("jpeg-quality", 90, "JPEG quality (1-100, only for jpeg format)")
	maxFrames := flag.Int("max-frames", 10, "Maximum frames to save (0 = unlimited)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	statsInterval := flag.Duration("stats-interval", 2*time.Second, "Interval between stats reports")
	diagnoseOnly := flag.Bool("diagnose", false, "Print the element/plugin availability report and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pipectl %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if *outputFormat != "png" && *outputFormat != "jpeg" {
		log.Fatalf("Invalid output format: %s (must be png or jpeg)", *outputFormat)
	}
	if *outputDir != "" {
		if err := os.MkdirAll(*outputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	cfg, err := nativeinference.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	frameReady := make(chan struct{}, 1)
	ctrl, err := nativeinference.New(gstengine.New(), cfg,
		nativeinference.WithFrameListener(func() {
			// Runs on the streaming thread: never block it.
			select {
			case frameReady <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Dispose()

	if err := ctrl.Init(nil); err != nil {
		log.Fatalf("Failed to initialize GStreamer: %v", err)
	}

	if *diagnoseOnly {
		fmt.Println(ctrl.Diagnose())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		srv := startMetricsServer(*metricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	// Print banner
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║            Pipeline Controller - pipectl %s           ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Pipeline:      %s\n", *description)
	fmt.Printf("  Frame Buffer:  %dx%d\n", cfg.FrameWidth, cfg.FrameHeight)
	fmt.Printf("  Preroll:       %s (poll %s)\n", cfg.PrerollTimeout, cfg.PollInterval)
	if *windowID != "" {
		fmt.Printf("  Window:        %s\n", *windowID)
	} else {
		fmt.Printf("  Window:        (none - overlay sinks will fail)\n")
	}
	if *outputDir != "" {
		fmt.Printf("  Output Dir:    %s (%s)\n", *outputDir, *outputFormat)
	} else {
		fmt.Printf("  Output Dir:    (none - frames not saved)\n")
	}
	fmt.Printf("\n")

	if *windowID != "" {
		handle, err := strconv.ParseUint(*windowID, 0, 64)
		if err != nil {
			log.Fatalf("Invalid window handle %q: %v", *windowID, err)
		}
		if err := ctrl.BindWindow(nativeinference.HandleWindow(uintptr(handle))); err != nil {
			log.Fatalf("Failed to bind window: %v", err)
		}
	}

	slog.Info("Building pipeline...")
	if err := ctrl.Build(*description); err != nil {
		fmt.Fprintf(os.Stderr, "\nBuild failed:\n%s\n", ctrl.LastError())
		os.Exit(1)
	}

	if *color != "" {
		r, g, b, err := parseColor(*color)
		if err != nil {
			log.Fatalf("Invalid colour: %v", err)
		}
		if err := ctrl.SetForegroundColor(r, g, b); err != nil {
			slog.Warn("Failed to set foreground colour", "error", err)
		}
	}

	if err := ctrl.Play(); err != nil {
		fmt.Fprintf(os.Stderr, "\nPlay failed:\n%s\n", ctrl.LastError())
		_ = ctrl.Stop()
		os.Exit(1)
	}
	slog.Info("Pipeline playing", "pipeline_id", ctrl.Stats().PipelineID)
	fmt.Printf("Press Ctrl+C to stop gracefully\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	var deadline <-chan time.Time
	if *duration > 0 {
		timer := time.NewTimer(*duration)
		defer timer.Stop()
		deadline = timer.C
	}

	statsTicker := time.NewTicker(*statsInterval)
	defer statsTicker.Stop()

	startTime := time.Now()
	framesSaved := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n\nReceived interrupt signal, shutting down...\n")
			break loop

		case <-deadline:
			fmt.Printf("\nDuration %s elapsed, stopping...\n", *duration)
			break loop

		case <-statsTicker.C:
			printStats(ctrl.Stats(), time.Since(startTime))

		case <-frameReady:
			buf, w, h := ctrl.CopyOutFrame()
			if *outputDir == "" || (*maxFrames > 0 && framesSaved >= *maxFrames) {
				continue
			}
			if err := saveFrame(*outputDir, framesSaved, buf, w, h, *outputFormat, *jpegQuality); err != nil {
				slog.Error("Failed to save frame", "error", err)
				continue
			}
			framesSaved++
		}
	}

	slog.Info("Stopping pipeline...")
	if err := ctrl.Stop(); err != nil {
		slog.Error("Error stopping pipeline", "error", err)
	}

	final := ctrl.Stats()
	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("                     Final Statistics                      \n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Total Uptime:       %s\n", time.Since(startTime).Round(time.Second))
	fmt.Printf("  Frames Delivered:   %d frames\n", final.Frames.FramesDelivered)
	fmt.Printf("  Frames Replaced:    %d frames\n", final.Frames.FramesReplaced)
	fmt.Printf("  Frames Copied:      %d frames\n", final.Frames.FramesCopied)
	if *outputDir != "" {
		fmt.Printf("  Frames Saved:       %d frames\n", framesSaved)
	}
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")

	slog.Info("pipectl completed successfully")
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func printStats(s nativeinference.Stats, uptime time.Duration) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Pipeline Statistics (Uptime: %s)\n", uptime.Round(time.Second))
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ State:              %s\n", s.State)
	fmt.Printf("│ Sink:               %s\n", s.SinkKind)
	fmt.Printf("│ Frames Delivered:   %6d frames\n", s.Frames.FramesDelivered)
	fmt.Printf("│ Frames Replaced:    %6d frames\n", s.Frames.FramesReplaced)
	fmt.Printf("│ FPS Mean:           %6.2f fps\n", s.Frames.FPSMean)
	fmt.Printf("│ FPS Range:          %6.1f - %.1f fps\n", s.Frames.FPSMin, s.Frames.FPSMax)
	fmt.Printf("│ Jitter Mean:        %6.3f s\n", s.Frames.JitterMean)
	fmt.Printf("│ Last Frame Age:     %s\n", s.Frames.LastFrameAge().Round(time.Millisecond))
	fmt.Printf("│ Stable:             %6v\n", s.Frames.IsStable)
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
}

func parseColor(s string) (int, int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected r,g,b, got %q", s)
	}
	var rgb [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("component %d: %w", i, err)
		}
		rgb[i] = v
	}
	return rgb[0], rgb[1], rgb[2], nil
}

// saveFrame saves an RGBA frame to disk as PNG or JPEG
func saveFrame(outputDir string, seq int, data []byte, width, height int, format string, jpegQuality int) error {
	if len(data) < width*height*4 {
		return fmt.Errorf("frame has %d bytes, want %d", len(data), width*height*4)
	}

	filename := fmt.Sprintf("frame_%06d_%s.%s", seq, time.Now().Format("20060102_150405.000"), format)
	path := filepath.Join(outputDir, filename)

	img := &image.RGBA{
		Pix:    data[:width*height*4],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case "png":
		if err := png.Encode(file, img); err != nil {
			return fmt.Errorf("failed to encode PNG: %w", err)
		}
	case "jpeg":
		if err := jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("failed to encode JPEG: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	return nil
}
