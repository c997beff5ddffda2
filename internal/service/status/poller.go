// Package status probes async result directories for their completion file.
package status

import (
	"context"

	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultFileName is written by the server once a request has finished
const DefaultFileName = "status.txt"

// Poller checks whether async requests have completed
type Poller struct {
	remote   port.RemoteClient
	fileName string
	workers  int
	logger   *zap.Logger
}

// NewPoller creates a new Poller. workers bounds concurrent probes.
func NewPoller(remote port.RemoteClient, fileName string, workers int, logger *zap.Logger) *Poller {
	if fileName == "" {
		fileName = DefaultFileName
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		remote:   remote,
		fileName: fileName,
		workers:  workers,
		logger:   logger,
	}
}

// Poll probes every reference and returns the tally together with the
// per-reference results, in the order of refs
func (p *Poller) Poll(ctx context.Context, refs []domain.ResultReference) (domain.TallySnapshot, []*domain.ProbeResult) {
	tally := &domain.StatusTally{}
	results := make([]*domain.ProbeResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			r := p.Probe(gctx, ref)
			tally.Add(r.Outcome)
			results[i] = r
			return nil
		})
	}
	g.Wait()

	return tally.Snapshot(), results
}

// Probe checks a single reference with a HEAD request for its status file
func (p *Poller) Probe(ctx context.Context, ref domain.ResultReference) *domain.ProbeResult {
	result := &domain.ProbeResult{
		Reference: ref,
		ProbeURL:  ref.FileURL(p.fileName),
	}

	info, err := p.remote.Head(ctx, result.ProbeURL)
	if info != nil {
		result.StatusCode = info.StatusCode
	}
	result.Err = err
	result.Outcome = Classify(err)

	p.logger.Debug("probe",
		zap.String("url", result.ProbeURL),
		zap.String("outcome", result.Outcome.String()),
		zap.Int("status", result.StatusCode),
		zap.Error(err))

	return result
}

// Classify maps a probe error to its outcome. A server answer other than
// 2xx means the request is still pending; anything else is a transport error.
func Classify(err error) domain.ProbeOutcome {
	switch {
	case err == nil:
		return domain.ProbeComplete
	case port.IsStatusError(err):
		return domain.ProbePending
	default:
		return domain.ProbeError
	}
}
