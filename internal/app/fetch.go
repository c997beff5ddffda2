package app

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/extractor"
	"github.com/vertextoedge/asyncfetch/internal/service/mirror"
	"go.uber.org/zap"
)

// FetchAction mirrors the first async result directory found in each input file
func (a *App) FetchAction(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return domain.NewUsageError(domain.ErrNoInputFiles)
	}

	o := config.Overrides{
		Force:          c.Bool("force"),
		DryRun:         c.Bool("dry-run"),
		Verbose:        c.Bool("verbose"),
		UserOverride:   c.String("user"),
		StreamOverride: c.String("stream"),
	}
	if c.IsSet("dir") {
		v := c.String("dir")
		o.RootDir = &v
	}

	e, err := a.prepare(c, o, o.DryRun)
	if err != nil {
		return err
	}
	defer e.Close()

	root := e.opts.RootDir
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}

	m := mirror.New(e.newClient(), filesystem.NewManager(), mirror.Options{
		Force:        e.opts.Force,
		DryRun:       e.opts.DryRun,
		CutDirs:      e.opts.CutDirs,
		RejectPrefix: e.opts.RejectPrefix,
	}, e.logger)

	outputs := make([]*fileOutput, len(files))
	return forEachOrdered(c.Context, len(files), e.opts.Workers,
		func(ctx context.Context, i int) {
			outputs[i] = a.fetchFile(ctx, e, m, root, files[i])
		},
		func(i int) {
			outputs[i].Flush(a.Stdout, a.Stderr)
		})
}

// fetchFile handles one input file. Every problem is reported and the file
// is skipped; nothing here stops the run.
func (a *App) fetchFile(ctx context.Context, e *env, m *mirror.Mirror, root, file string) *fileOutput {
	out := &fileOutput{}
	log := e.logger.With(zap.String("file", file))

	urls, err := extractor.ExtractFile(file, e.opts.Marker)
	if err != nil {
		out.Errorf("Cannot read %s: %v", file, err)
		e.recordFetch(&domain.FetchOutcome{
			InputFile: file,
			Status:    domain.FetchStatusFailed,
			Err:       domain.NewSkippableError(domain.ErrInvalidInput, err.Error()),
		})
		return out
	}
	if len(urls) == 0 {
		out.Errorf("No async download directories found in %s", file)
		e.recordFetch(&domain.FetchOutcome{
			InputFile: file,
			Status:    domain.FetchStatusSkippedNoReference,
			Err:       domain.NewSkippableError(domain.ErrNoReference, file),
		})
		return out
	}
	if unique := extractor.Unique(urls); len(unique) > 1 {
		log.Debug("using the first of several references", zap.Strings("urls", unique))
	}

	ref, err := domain.ParseReference(urls[0])
	if err != nil {
		out.Errorf("Invalid async download url in %s: %v", file, err)
		e.recordFetch(&domain.FetchOutcome{
			InputFile: file,
			Status:    domain.FetchStatusSkippedNoReference,
			Err:       err,
		})
		return out
	}
	ref = ref.WithOverrides(e.opts.UserOverride, e.opts.StreamOverride)

	outcome := m.Run(ctx, file, ref, root)
	e.recordFetch(outcome)

	if outcome.Status == domain.FetchStatusSkippedExists {
		out.Errorf("Destination already exists: %s. Use -f to clobber", outcome.Destination)
		return out
	}

	out.Printf("Fetching: %s", ref.URL)
	out.Printf("Destination: %s", outcome.Destination)

	if outcome.Status == domain.FetchStatusFailed {
		if errors.Is(outcome.Err, context.Canceled) {
			out.Errorf("Fetch canceled: %s", ref.URL)
		} else {
			out.Errorf("Fetch failed: %v", outcome.Err)
		}
	} else if outcome.Result != nil && outcome.Result.Failed > 0 {
		log.Warn("some files could not be transferred",
			zap.String("url", ref.URL),
			zap.Int("failed", outcome.Result.Failed),
			zap.Int("files", outcome.Result.Files))
	}

	return out
}
