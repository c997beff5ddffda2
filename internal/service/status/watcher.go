package status

import (
	"context"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/domain"
	"go.uber.org/zap"
)

// WatchConfig controls repeated polling
type WatchConfig struct {
	// Interval is the wait between polling rounds
	Interval time.Duration

	// MaxRounds stops watching after this many rounds. Zero means no limit.
	MaxRounds int
}

// Watch polls refs until every one is complete, ctx ends or MaxRounds is
// reached. Complete references are not probed again. onRound, if set, is
// called after each round with the combined tally.
func (p *Poller) Watch(ctx context.Context, refs []domain.ResultReference, cfg WatchConfig, onRound func(round int, snap domain.TallySnapshot)) (domain.TallySnapshot, []*domain.ProbeResult, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}

	results := make([]*domain.ProbeResult, len(refs))
	pending := make([]int, len(refs))
	for i := range refs {
		pending[i] = i
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		batch := make([]domain.ResultReference, len(pending))
		for j, i := range pending {
			batch[j] = refs[i]
		}

		_, fresh := p.Poll(ctx, batch)

		var still []int
		for j, i := range pending {
			results[i] = fresh[j]
			if fresh[j].Outcome != domain.ProbeComplete {
				still = append(still, i)
			}
		}
		pending = still

		snap := tallyOf(results)
		if onRound != nil {
			onRound(round, snap)
		}
		p.logger.Info("watch round",
			zap.Int("round", round),
			zap.Int("complete", snap.Good),
			zap.Int("total", snap.Total))

		if len(pending) == 0 || (cfg.MaxRounds > 0 && round >= cfg.MaxRounds) {
			return snap, results, nil
		}

		select {
		case <-ctx.Done():
			return snap, results, ctx.Err()
		case <-ticker.C:
		}
	}
}

func tallyOf(results []*domain.ProbeResult) domain.TallySnapshot {
	tally := &domain.StatusTally{}
	for _, r := range results {
		if r != nil {
			tally.Add(r.Outcome)
		}
	}
	return tally.Snapshot()
}
