package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/service/request"
)

var errNoRequestURLs = errors.New("no request urls specified")

// RequestAction sends async request URLs and writes the answers as a JSON
// array, the input format of fetch and status
func (a *App) RequestAction(c *cli.Context) error {
	urls := c.Args().Slice()
	if len(urls) == 0 && c.String("input") != "" {
		f, err := os.Open(c.String("input"))
		if err != nil {
			return domain.NewUsageError(fmt.Errorf("invalid request urls file: %w", err))
		}
		urls, err = request.ReadURLs(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	if len(urls) == 0 {
		return domain.NewUsageError(errNoRequestURLs)
	}

	timeout := time.Duration(c.Int("timeout")) * time.Second
	if timeout <= 0 {
		return domain.NewUsageError(fmt.Errorf("invalid timeout: %d", c.Int("timeout")))
	}

	e, err := a.prepare(c, config.Overrides{}, false)
	if err != nil {
		return err
	}
	defer e.Close()

	sender := request.NewSender(e.newClient(), timeout, e.logger)
	results := sender.Send(c.Context, urls)
	if len(results) == 0 {
		return cli.Exit("", 1)
	}

	output := c.String("output")
	if output == "" {
		return request.WriteJSON(a.Stdout, results)
	}

	var buf bytes.Buffer
	if err := request.WriteJSON(&buf, results); err != nil {
		return err
	}
	if _, err := filesystem.NewManager().WriteFile(output, &buf); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	return nil
}
