package app

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/extractor"
	"github.com/vertextoedge/asyncfetch/internal/service/status"
	"go.uber.org/zap"
)

// StatusAction probes every async result directory in each input file and
// prints completion counts per file. Exits 1 if any request is not complete.
func (a *App) StatusAction(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return domain.NewUsageError(domain.ErrNoInputFiles)
	}

	e, err := a.prepare(c, config.Overrides{Verbose: c.Bool("verbose")}, false)
	if err != nil {
		return err
	}
	defer e.Close()

	poller := status.NewPoller(e.newClient(), e.opts.StatusFile, e.opts.Workers, e.logger)

	watch := status.WatchConfig{Interval: c.Duration("watch"), MaxRounds: c.Int("max-rounds")}
	if watch.Interval < 0 || watch.MaxRounds < 0 {
		return domain.NewUsageError(fmt.Errorf("watch interval and max rounds must not be negative"))
	}

	anyFailed := false
	for _, file := range files {
		if err := c.Context.Err(); err != nil {
			return err
		}

		out, failed := a.statusFile(c.Context, e, poller, watch, file)
		out.Flush(a.Stdout, a.Stderr)
		anyFailed = anyFailed || failed
	}

	if anyFailed {
		return cli.Exit("", 1)
	}
	return nil
}

// statusFile probes the references of one input file. Tallies start from
// zero for every file. A positive watch interval keeps probing until the
// file's requests are all complete.
func (a *App) statusFile(ctx context.Context, e *env, poller *status.Poller, watch status.WatchConfig, file string) (*fileOutput, bool) {
	out := &fileOutput{}

	urls, err := extractor.ExtractFile(file, e.opts.Marker)
	if err != nil {
		out.Errorf("Cannot read %s: %v", file, err)
		return out, false
	}

	var refs []domain.ResultReference
	for _, u := range extractor.Unique(urls) {
		ref, err := domain.ParseReference(u)
		if err != nil {
			e.logger.Warn("skipping reference", zap.String("file", file), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}

	if len(refs) == 0 {
		out.Errorf("No async download directories found in %s", file)
		return out, false
	}

	var snap domain.TallySnapshot
	var results []*domain.ProbeResult
	if watch.Interval > 0 {
		var err error
		snap, results, err = poller.Watch(ctx, refs, watch, nil)
		if err != nil {
			e.logger.Warn("watch stopped", zap.String("file", file), zap.Error(err))
		}
	} else {
		snap, results = poller.Poll(ctx, refs)
	}
	for _, r := range results {
		e.recordProbe(file, r)
	}

	out.Printf("%s", snap.CompletedLine())
	out.Printf("%s", snap.InProcessLine())
	if line := snap.ErroredLine(); line != "" {
		out.Errorf("%s", line)
	}

	return out, snap.AnyFailed()
}
