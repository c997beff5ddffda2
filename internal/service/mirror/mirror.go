// Package mirror recursively copies an async result directory from the file
// server to local disk.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/zap"
)

// Options controls one mirror run. It is not modified after New.
type Options struct {
	// Force mirrors into a destination that already exists
	Force bool

	// DryRun walks the tree with HEAD requests for files and writes nothing
	DryRun bool

	// CutDirs is the number of leading remote path components dropped
	// from local paths (default: 3)
	CutDirs int

	// RejectPrefix skips files whose name starts with it (default: "index").
	// Directories with that prefix are still walked.
	RejectPrefix string
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		CutDirs:      3,
		RejectPrefix: "index",
	}
}

// Mirror fetches result directories
type Mirror struct {
	remote port.RemoteClient
	fs     port.FileSystem
	opts   Options
	locks  *keyedLocks
	logger *zap.Logger
}

// New creates a new Mirror
func New(remote port.RemoteClient, fs port.FileSystem, opts Options, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CutDirs < 0 {
		opts.CutDirs = 0
	}
	return &Mirror{
		remote: remote,
		fs:     fs,
		opts:   opts,
		locks:  newKeyedLocks(),
		logger: logger,
	}
}

// Run mirrors ref into root/user/stream and reports what happened.
// Runs for the same destination never overlap.
func (m *Mirror) Run(ctx context.Context, inputFile string, ref domain.ResultReference, root string) *domain.FetchOutcome {
	dest := domain.DestinationPath(root, ref)
	outcome := &domain.FetchOutcome{
		InputFile:   inputFile,
		Reference:   ref,
		Destination: dest,
	}

	unlock := m.locks.Lock(dest)
	defer unlock()

	if m.fs.DirExists(dest) {
		if !m.opts.Force {
			outcome.Status = domain.FetchStatusSkippedExists
			outcome.Err = domain.NewSkippableError(domain.ErrDestinationExists, dest)
			outcome.FinishedAt = time.Now()
			return outcome
		}
		if !m.opts.DryRun {
			if n, err := m.fs.CleanTempFiles(dest); err != nil {
				m.logger.Warn("failed to clean temp files", zap.String("dest", dest), zap.Error(err))
			} else if n > 0 {
				m.logger.Info("removed partial downloads", zap.String("dest", dest), zap.Int("count", n))
			}
		}
	}

	result, err := m.crawl(ctx, ref, dest)
	outcome.Result = result
	outcome.FinishedAt = time.Now()

	switch {
	case err != nil:
		outcome.Status = domain.FetchStatusFailed
		outcome.Err = err
	case m.opts.DryRun:
		outcome.Status = domain.FetchStatusDryRun
	default:
		outcome.Status = domain.FetchStatusFetched
	}

	m.logger.Debug("mirror finished",
		zap.String("url", ref.URL),
		zap.String("dest", dest),
		zap.String("status", outcome.Status),
		zap.Int("directories", result.Directories),
		zap.Int("files", result.Files),
		zap.Int("failed", result.Failed),
		zap.Int64("bytes", result.BytesWritten))

	return outcome
}

// crawl walks the listing tree under ref breadth first. Only a failure to
// read the base listing, or cancellation, is returned as an error.
func (m *Mirror) crawl(ctx context.Context, ref domain.ResultReference, dest string) (*domain.MirrorResult, error) {
	result := &domain.MirrorResult{}

	base, err := url.Parse(ref.DirURL())
	if err != nil {
		return result, fmt.Errorf("invalid url %q: %w", ref.URL, err)
	}

	visited := map[string]bool{base.String(): true}
	queue := []*url.URL{base}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		dir := queue[0]
		queue = queue[1:]
		isBase := dir == base

		links, page, err := m.readListing(ctx, dir)
		if err != nil {
			if isBase {
				return result, fmt.Errorf("failed to read listing %s: %w", dir, err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			m.logger.Warn("failed to read listing", zap.String("url", dir.String()), zap.Error(err))
			result.Failed++
			continue
		}
		result.Directories++

		visited[page.String()] = true
		if isBase && page.String() != base.String() {
			m.logger.Debug("base listing redirected",
				zap.String("from", base.String()),
				zap.String("to", page.String()))
			base = page
		}

		for _, link := range links {
			if !m.below(base, link) {
				continue
			}
			key := link.String()
			if visited[key] {
				continue
			}
			visited[key] = true

			if strings.HasSuffix(link.Path, "/") {
				queue = append(queue, link)
				continue
			}

			if m.rejected(link) {
				m.logger.Debug("rejected", zap.String("url", key))
				result.Rejected++
				continue
			}

			m.transfer(ctx, link, dest, result)
		}
	}

	return result, nil
}

// readListing fetches a directory page and resolves its anchors against the
// URL the page was finally served from, which is also returned
func (m *Mirror) readListing(ctx context.Context, dir *url.URL) ([]*url.URL, *url.URL, error) {
	body, info, err := m.remote.Get(ctx, dir.String())
	if err != nil {
		return nil, dir, err
	}
	defer body.Close()

	page := dir
	if info != nil && info.URL != "" && info.URL != dir.String() {
		if final, err := url.Parse(info.URL); err == nil {
			page = final
		}
	}

	m.logger.Debug("listing", zap.String("url", page.String()))
	links, err := parseListing(body, page)
	return links, page, err
}

// transfer writes one file, or only checks it in dry-run mode
func (m *Mirror) transfer(ctx context.Context, link *url.URL, dest string, result *domain.MirrorResult) {
	target := localPath(dest, link.Path, m.opts.CutDirs)

	if m.opts.DryRun {
		info, err := m.remote.Head(ctx, link.String())
		if err != nil {
			m.logger.Warn("probe failed", zap.String("url", link.String()), zap.Error(err))
			result.Failed++
			return
		}
		m.logger.Info("would download",
			zap.String("url", link.String()),
			zap.String("path", target),
			zap.Int64("size", info.ContentLength))
		result.Files++
		return
	}

	body, _, err := m.remote.Get(ctx, link.String())
	if err != nil {
		m.logger.Warn("download failed", zap.String("url", link.String()), zap.Error(err))
		result.Failed++
		return
	}
	defer body.Close()

	n, err := m.fs.WriteFile(target, body)
	if err != nil {
		m.logger.Warn("write failed",
			zap.String("url", link.String()),
			zap.String("path", target),
			zap.Error(err))
		result.Failed++
		return
	}

	m.logger.Debug("downloaded",
		zap.String("url", link.String()),
		zap.String("path", target),
		zap.Int64("bytes", n))
	result.Files++
	result.BytesWritten += n
}

// below reports whether link lies strictly under base on the same server.
// Query links, such as listing sort controls, are never followed.
func (m *Mirror) below(base, link *url.URL) bool {
	if link.Scheme != base.Scheme || link.Host != base.Host {
		return false
	}
	if link.RawQuery != "" {
		return false
	}
	return len(link.Path) > len(base.Path) && strings.HasPrefix(link.Path, base.Path)
}

// rejected reports whether a file link is excluded by RejectPrefix.
// Directories are always walked.
func (m *Mirror) rejected(link *url.URL) bool {
	if m.opts.RejectPrefix == "" {
		return false
	}
	name := path.Base(strings.TrimSuffix(link.Path, "/"))
	return strings.HasPrefix(name, m.opts.RejectPrefix)
}

// localPath maps a remote file path under dest, dropping the host and the
// first cutDirs directory components
func localPath(dest, remotePath string, cutDirs int) string {
	var parts []string
	for _, p := range strings.Split(remotePath, "/") {
		if p != "" && p != "." && p != ".." {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return dest
	}

	name := parts[len(parts)-1]
	dirs := parts[:len(parts)-1]
	if cutDirs >= len(dirs) {
		dirs = nil
	} else {
		dirs = dirs[cutDirs:]
	}

	elems := append([]string{dest}, dirs...)
	elems = append(elems, name)
	return filepath.Join(elems...)
}
