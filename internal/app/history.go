package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/port"
	"gopkg.in/yaml.v3"
)

var errNoDatabase = errors.New("no history database configured; set database.path or --db")

// historyReport is the document printed by the history command
type historyReport struct {
	Fetches []*port.FetchRecord `json:"fetches" yaml:"fetches"`
	Probes  []*port.ProbeRecord `json:"probes" yaml:"probes"`
}

// HistoryAction prints the most recent recorded fetches and probes
func (a *App) HistoryAction(c *cli.Context) error {
	format := c.String("format")
	if format != "yaml" && format != "json" {
		return domain.NewUsageError(fmt.Errorf("invalid format: %s (must be yaml or json)", format))
	}

	e, err := a.prepare(c, config.Overrides{}, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.history == nil {
		return domain.NewUsageError(errNoDatabase)
	}

	report := historyReport{
		Fetches: []*port.FetchRecord{},
		Probes:  []*port.ProbeRecord{},
	}
	limit := c.Int("limit")

	fetches, err := e.history.ListFetches(limit)
	if err != nil {
		return fmt.Errorf("failed to list fetches: %w", err)
	}
	report.Fetches = append(report.Fetches, fetches...)

	probes, err := e.history.ListProbes(limit)
	if err != nil {
		return fmt.Errorf("failed to list probes: %w", err)
	}
	report.Probes = append(report.Probes, probes...)

	if format == "json" {
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	enc := yaml.NewEncoder(a.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(report)
}
