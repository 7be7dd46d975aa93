package orchestrator

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"nlcd-county/internal/animation"
	"nlcd-county/internal/boundary"
	"nlcd-county/internal/palette"
	"nlcd-county/internal/platform/metrics"
	"nlcd-county/internal/raster"
)

// Options are the encoding settings applied to every run.
type Options struct {
	FPS        int
	LoopCount  int
	Labels     bool
	OutputPath string
}

// DefaultOutputPath is the well-known artifact location.
const DefaultOutputPath = "nlcd.gif"

// Service runs the boundary -> clip -> recolor -> assemble pipeline.
type Service struct {
	store   boundary.Store
	rasters raster.Opener
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service reading boundaries from store and yearly
// rasters from rasters. Metrics may be nil to disable metric recording.
func NewService(store boundary.Store, rasters raster.Opener, opts Options, log *slog.Logger, m *metrics.Metrics) *Service {
	if opts.FPS <= 0 {
		opts.FPS = animation.DefaultFPS
	}
	if opts.OutputPath == "" {
		opts.OutputPath = DefaultOutputPath
	}
	return &Service{store: store, rasters: rasters, opts: opts, log: log, metrics: m}
}

// Store returns the boundary store the service resolves against.
func (s *Service) Store() boundary.Store { return s.store }

// run carries the state established by the first year of a request.
type run struct {
	firstYear int
	boundary  *boundary.AdminBoundary
	crs       string
	grid      raster.Grid
}

// Run processes every year of req in ascending order and returns the
// assembled frames. Any per-year failure aborts the whole run and is returned
// as a *YearError. A range with no years yields an empty Output.
func (s *Service) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	res, err := s.run(ctx, req, progress)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	years := Years(req.Start, req.Stop, req.Step)
	asm := animation.NewAssembler(s.opts.FPS, s.opts.LoopCount)

	var r run
	for i, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, &YearError{Year: year, Err: err}
		}
		s.log.Info("downloading NLCD image",
			slog.Int("year", year),
			slog.String("state", req.State),
			slog.String("county", req.County))
		emit(progress, Progress{
			Stage:   StageYear,
			Year:    year,
			Index:   i,
			Total:   len(years),
			Message: fmt.Sprintf("Downloading %d NLCD image for %s", year, req.County),
			Elapsed: time.Since(start),
		})

		img, err := s.renderYear(ctx, year, req, &r)
		if err != nil {
			return nil, &YearError{Year: year, Err: err}
		}
		if err := asm.Append(animation.Frame{Year: year, Image: img}); err != nil {
			return nil, &YearError{Year: year, Err: err}
		}
		if s.metrics != nil {
			s.metrics.IncFrames()
		}
	}

	return &Result{Output: asm.Assemble(), Years: years, Elapsed: time.Since(start)}, nil
}

// renderYear opens the raster for year, clips it to the county and recolors
// it. The source is closed before returning, whatever the outcome.
func (s *Service) renderYear(ctx context.Context, year int, req Request, r *run) (*image.NRGBA, error) {
	src, err := s.rasters.Open(ctx, year)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.log.Warn("closing raster failed", slog.Int("year", year), slog.String("error", err.Error()))
		}
	}()

	if r.boundary == nil {
		b, err := boundary.Resolve(s.store, req.State, req.County, src.SR())
		if err != nil {
			return nil, err
		}
		*r = run{firstYear: year, boundary: b, crs: src.CRS(), grid: src.Grid()}
	} else if src.CRS() != r.crs || !src.Grid().Aligned(r.grid) {
		return nil, fmt.Errorf("%w: raster grid differs from %d", animation.ErrDimensionMismatch, r.firstYear)
	}

	clipped, err := raster.Clip(ctx, src, r.boundary.Geometry)
	if err != nil {
		return nil, err
	}
	return palette.Recolor(clipped.Codes, clipped.Width(), clipped.Height(), src.Colormap())
}

// Render runs req and publishes the animation in format to the configured
// output path. For formats other than GIF the path's extension is replaced.
// The encoded bytes are also returned in Result.Artifact, so callers serve
// their own render even when another request republishes the path.
func (s *Service) Render(ctx context.Context, req Request, format string, progress ProgressFunc) (*Result, error) {
	if !animation.ValidFormat(format) {
		err := fmt.Errorf("%w %q", animation.ErrUnsupportedFormat, format)
		s.recordFailure(err)
		return nil, err
	}
	start := time.Now()
	res, err := s.run(ctx, req, progress)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	emit(progress, Progress{Stage: StageEncode, Total: len(res.Years), Message: "Preparing " + strings.ToUpper(formatOrDefault(format)), Elapsed: time.Since(start)})
	data, err := res.Output.Bytes(format, animation.EncodeOptions{Labels: s.opts.Labels})
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}
	path := s.ArtifactPath(format)
	if err := animation.Publish(path, data); err != nil {
		s.recordFailure(err)
		return nil, err
	}

	res.Elapsed = time.Since(start)
	res.Path = path
	res.Format = formatOrDefault(format)
	res.Artifact = data
	s.log.Info("animation written",
		slog.String("path", path),
		slog.Int("frames", len(res.Years)),
		slog.Float64("elapsed_seconds", res.Elapsed.Seconds()))
	emit(progress, Progress{
		Stage:   StageDone,
		Total:   len(res.Years),
		Message: fmt.Sprintf("Done. Took %.0f seconds", res.Elapsed.Seconds()),
		Elapsed: res.Elapsed,
	})
	if s.metrics != nil {
		s.metrics.ObserveRender(res.Elapsed)
	}
	return res, nil
}

// ArtifactPath is where Render writes an animation in format.
func (s *Service) ArtifactPath(format string) string {
	p := s.opts.OutputPath
	if animation.FormatFromPath(p) == formatOrDefault(format) {
		return p
	}
	return strings.TrimSuffix(p, filepath.Ext(p)) + "." + formatOrDefault(format)
}

func (s *Service) recordFailure(err error) {
	kind := Kind(err)
	s.log.Error("render failed",
		slog.String("kind", kind),
		slog.Int("year", FailedYear(err)),
		slog.String("error", err.Error()))
	if s.metrics != nil {
		s.metrics.IncRenderFailures(kind)
	}
}

func formatOrDefault(format string) string {
	if format == "" {
		return animation.FormatGIF
	}
	return strings.ToLower(format)
}

func emit(progress ProgressFunc, p Progress) {
	if progress != nil {
		progress(p)
	}
}
