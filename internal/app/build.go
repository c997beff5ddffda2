package app

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/service/request"
	"go.uber.org/zap"
)

var (
	errNoRefDes  = errors.New("exactly one reference designator required")
	errNoBaseURL = errors.New("no base url specified (--base-url or uframe.base_url)")
	errNoUser    = errors.New("no user specified (--user or uframe.user)")
)

func buildFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "base-url", Aliases: []string{"b"}, Usage: "data service base url (default: uframe.base_url)"},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "user the results are written for (default: uframe.user)"},
		&cli.BoolFlag{Name: "direct", Usage: "address the service ports on the base url instead of the m2m gateway"},
		&cli.StringFlag{Name: "stream", Usage: "only request this stream"},
		&cli.StringFlag{Name: "telemetry", Usage: "only request streams whose method contains this, e.g. recovered"},
		&cli.StringFlag{Name: "start", Aliases: []string{"s"}, Usage: "begin time, ISO-8601 (default: stream begin)"},
		&cli.StringFlag{Name: "end", Aliases: []string{"e"}, Usage: "end time, ISO-8601 (default: stream end)"},
		&cli.StringFlag{Name: "delta-unit", Usage: "request the last --delta units of each stream (years, months, weeks, days, hours, minutes, seconds)"},
		&cli.IntFlag{Name: "delta", Usage: "number of --delta-unit units"},
		&cli.BoolFlag{Name: "no-time-check", Usage: "do not clamp the times to the stream coverage"},
		&cli.BoolFlag{Name: "no-dpa", Usage: "do not execute data product algorithms"},
		&cli.BoolFlag{Name: "no-provenance", Usage: "do not include provenance"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "netcdf", Usage: "result format (netcdf, json)"},
		&cli.IntFlag{Name: "limit", Value: -1, Usage: "data points per json request, up to 10000 (-1 = full resolution)"},
		&cli.StringFlag{Name: "email", Usage: "address notified when a request completes"},
		&cli.StringFlag{Name: "deployments", Usage: "one request per deployment (all, active, inactive)"},
		&cli.BoolFlag{Name: "raw", Usage: "print urls without percent-encoding"},
		&cli.BoolFlag{Name: "lines", Aliases: []string{"l"}, Usage: "print one url per line instead of a JSON array"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the urls to this file"},
		&cli.IntFlag{Name: "timeout", Aliases: []string{"t"}, Value: 120, Usage: "catalog request timeout in seconds"},
	}
}

// buildOptions converts the build flags into request options.
// The user is filled in after the configuration is loaded.
func buildOptions(c *cli.Context) (request.BuildOptions, error) {
	opts := request.DefaultBuildOptions()
	opts.Stream = strings.TrimSpace(c.String("stream"))
	opts.Telemetry = strings.TrimSpace(c.String("telemetry"))
	opts.DeltaUnit = c.String("delta-unit")
	opts.DeltaValue = c.Int("delta")
	opts.TimeCheck = !c.Bool("no-time-check")
	opts.ExecDPA = !c.Bool("no-dpa")
	opts.Provenance = !c.Bool("no-provenance")
	opts.Format = c.String("format")
	opts.Limit = c.Int("limit")
	opts.Email = c.String("email")

	for _, bound := range []struct {
		flag string
		dst  *time.Time
	}{
		{"start", &opts.Begin},
		{"end", &opts.End},
	} {
		if v := c.String(bound.flag); v != "" {
			t, err := request.ParseTime(v)
			if err != nil {
				return opts, fmt.Errorf("invalid --%s: %w", bound.flag, err)
			}
			*bound.dst = t
		}
	}
	if !opts.Begin.IsZero() && !opts.End.IsZero() && !opts.Begin.Before(opts.End) {
		return opts, fmt.Errorf("start %s is not before end %s",
			opts.Begin.Format(request.TimeLayout), opts.End.Format(request.TimeLayout))
	}
	return opts, nil
}

// BuildAction prints the async request URLs for every instrument matching
// the reference designator, ready for request -i
func (a *App) BuildAction(c *cli.Context) error {
	if c.NArg() != 1 || strings.TrimSpace(c.Args().First()) == "" {
		return domain.NewUsageError(errNoRefDes)
	}
	refDes := strings.TrimSpace(c.Args().First())

	timeout := time.Duration(c.Int("timeout")) * time.Second
	if timeout <= 0 {
		return domain.NewUsageError(fmt.Errorf("invalid timeout: %d", c.Int("timeout")))
	}

	status := c.String("deployments")
	switch status {
	case "", request.DeploymentsAll, request.DeploymentsActive, request.DeploymentsInactive:
	default:
		return domain.NewUsageError(fmt.Errorf("invalid deployments filter: %s", status))
	}

	opts, err := buildOptions(c)
	if err != nil {
		return domain.NewUsageError(err)
	}

	e, err := a.prepare(c, config.Overrides{
		BaseURL: strings.TrimSpace(c.String("base-url")),
		User:    strings.TrimSpace(c.String("user")),
	}, false)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.opts.BaseURL == "" {
		return domain.NewUsageError(errNoBaseURL)
	}
	if e.opts.User == "" {
		return domain.NewUsageError(errNoUser)
	}
	opts.User = e.opts.User
	if err := opts.Validate(); err != nil {
		return domain.NewUsageError(err)
	}

	builder, err := request.NewBuilder(e.newClient(), e.opts.BaseURL, c.Bool("direct"), timeout, e.logger)
	if err != nil {
		return domain.NewUsageError(err)
	}

	var urls []string
	if status != "" {
		urls, err = builder.BuildDeployments(c.Context, refDes, status, opts)
	} else {
		urls, err = builder.Build(c.Context, refDes, opts)
	}
	if err != nil {
		return err
	}

	e.logger.Info("request urls built", zap.String("refdes", refDes), zap.Int("urls", len(urls)))
	if len(urls) == 0 {
		fmt.Fprintf(a.Stderr, "no request urls for %s\n", refDes)
		return cli.Exit("", 1)
	}

	if !c.Bool("raw") {
		for i, u := range urls {
			urls[i] = request.Quote(u)
		}
	}

	output := c.String("output")
	if output == "" {
		return request.WriteURLs(a.Stdout, urls, c.Bool("lines"))
	}

	var buf bytes.Buffer
	if err := request.WriteURLs(&buf, urls, c.Bool("lines")); err != nil {
		return err
	}
	if _, err := filesystem.NewManager().WriteFile(output, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return nil
}
