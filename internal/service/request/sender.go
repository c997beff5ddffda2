// Package request sends asynchronous data requests and collects the server
// answers in the JSON form that the fetch and status commands read.
package request

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/zap"
)

// DefaultTimeout applies to each request when none is configured
const DefaultTimeout = 120 * time.Second

// Result is one request and the server's answer.
// StatusCode is nil when no answer was received.
type Result struct {
	URL        string `json:"url"`
	StatusCode *int   `json:"status_code"`
	Response   any    `json:"response"`
}

// Sender issues async requests one at a time
type Sender struct {
	client  port.RequestClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewSender creates a new Sender
func NewSender(client port.RequestClient, timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Send requests every URL in order. URLs that get no answer at all are
// logged and left out of the result.
func (s *Sender) Send(ctx context.Context, urls []string) []*Result {
	var results []*Result

	for _, raw := range urls {
		if ctx.Err() != nil {
			break
		}

		u := NormalizeURL(raw)
		if u == "" {
			continue
		}

		r, err := s.send(ctx, u)
		if err != nil {
			s.logger.Error("request failed", zap.String("url", u), zap.Error(err))
			continue
		}
		results = append(results, r)
	}

	return results
}

func (s *Sender) send(ctx context.Context, u string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Debug("sending GET request", zap.String("url", u))

	resp, err := s.client.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	code := resp.StatusCode
	result := &Result{URL: u, StatusCode: &code}

	if code != 200 {
		s.logger.Error("request rejected",
			zap.String("url", u),
			zap.String("status", resp.Status))
		result.Response = string(resp.Body)
		return result, nil
	}

	if json.Valid(resp.Body) {
		result.Response = json.RawMessage(resp.Body)
	} else {
		s.logger.Warn("response is not JSON", zap.String("url", u))
		result.Response = string(resp.Body)
	}

	return result, nil
}

// NormalizeURL strips surrounding slashes and whitespace and decodes
// percent escapes. Undecodable input is returned trimmed.
func NormalizeURL(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	decoded, err := url.PathUnescape(trimmed)
	if err != nil {
		return trimmed
	}
	return decoded
}

// ReadURLs reads request URLs from r, either as a JSON array of strings or
// separated by whitespace
func ReadURLs(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var urls []string
		if err := json.Unmarshal(trimmed, &urls); err != nil {
			return nil, fmt.Errorf("invalid url list: %w", err)
		}
		return urls, nil
	}

	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		urls = append(urls, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}
	return urls, nil
}

// WriteJSON writes results as a single JSON array line
func WriteJSON(w io.Writer, results []*Result) error {
	if results == nil {
		results = []*Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(results)
}
