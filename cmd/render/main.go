package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"nlcd-county/internal/animation"
	"nlcd-county/internal/boundary"
	"nlcd-county/internal/orchestrator"
	"nlcd-county/internal/platform/config"
	"nlcd-county/internal/platform/logger"
	"nlcd-county/internal/raster"

	"github.com/gosuri/uiprogress"
)

// flags holds the command line after parsing.
type flags struct {
	req    orchestrator.Request
	out    string
	format string
	labels bool
	fps    int
}

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	state := flag.String("state", "", "State name, e.g. Oregon")
	county := flag.String("county", "", "County name, e.g. Benton")
	start := flag.Int("start", orchestrator.FirstYear, "First year (inclusive)")
	stop := flag.Int("stop", orchestrator.LastYear+1, "Last year (exclusive)")
	step := flag.Int("step", 8, "Years between frames")
	out := flag.String("out", cfg.OutputPath, "Output file")
	format := flag.String("format", "", "Output format: gif or avi (default from -out)")
	labels := flag.Bool("labels", cfg.LabelYears, "Draw the year on each frame")
	fps := flag.Int("fps", cfg.FramesPerSecond, "Frames per second")
	flag.Parse()

	if *state == "" {
		log.Fatal("Please provide a state name using the -state flag.")
	}
	if *county == "" {
		log.Fatal("Please provide a county name using the -county flag.")
	}
	if *format == "" {
		*format = animation.FormatFromPath(*out)
	}
	if !animation.ValidFormat(*format) {
		log.Fatalf("Unsupported format %q.", *format)
	}

	f := flags{
		req:    orchestrator.Request{Start: *start, Stop: *stop, Step: *step, State: *state, County: *county},
		out:    *out,
		format: *format,
		labels: *labels,
		fps:    *fps,
	}
	if err := run(cfg, f); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Settings, f flags) error {
	if err := f.req.Validate(); err != nil {
		return err
	}

	logs := logger.NewWriter(os.Stderr, cfg.LogLevel, "text")
	client := raster.NewHTTPClient(cfg.HTTPTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := boundary.Open(ctx, client, boundary.Source{
		Path:   cfg.BoundaryPath,
		Layer:  cfg.BoundaryLayer,
		Fields: boundary.Fields{State: cfg.BoundaryStateField, County: cfg.BoundaryCountyField},
		DSN:    cfg.BoundaryDSN,
		Query:  cfg.BoundaryQuery,
	})
	if err != nil {
		return fmt.Errorf("loading boundaries: %w", err)
	}

	rasters := &raster.COGOpener{URLTemplate: cfg.RasterURLTemplate, Client: client, CRS: cfg.RasterCRS}
	svc := orchestrator.NewService(store, rasters, orchestrator.Options{
		FPS:        f.fps,
		LoopCount:  cfg.LoopCount,
		Labels:     f.labels,
		OutputPath: f.out,
	}, logs, nil)

	total := len(orchestrator.Years(f.req.Start, f.req.Stop, f.req.Step))

	var (
		mu      sync.Mutex
		current string
	)
	uiprogress.Start()
	// one tick per year plus one for encoding
	bar := uiprogress.AddBar(total + 1).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		mu.Lock()
		defer mu.Unlock()
		return current
	})

	res, err := svc.Render(ctx, f.req, f.format, func(p orchestrator.Progress) {
		mu.Lock()
		current = p.Message
		mu.Unlock()
		switch p.Stage {
		case orchestrator.StageYear:
			if p.Index > 0 {
				bar.Incr()
			}
		case orchestrator.StageEncode, orchestrator.StageDone:
			bar.Incr()
		}
	})
	uiprogress.Stop()

	if err != nil {
		if year := orchestrator.FailedYear(err); year != 0 {
			return fmt.Errorf("rendering failed at %d (%s): %w", year, orchestrator.Kind(err), err)
		}
		return fmt.Errorf("rendering failed (%s): %w", orchestrator.Kind(err), err)
	}

	fmt.Printf("Wrote %d frames to %s\n", len(res.Years), res.Path)
	fmt.Printf("Done. Took %.0f seconds\n", res.Elapsed.Seconds())
	return nil
}
