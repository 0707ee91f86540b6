package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Checker periodically verifies that every configured import source can
// still be fetched, and records the outcome in the source table.
// Remote sources get a HEAD request; local exports are stat'ed.
type Checker struct {
	sources  *SourceDB
	logger   *slog.Logger
	interval time.Duration
	client   *http.Client
}

// NewChecker creates a Checker that will verify sources every interval.
func NewChecker(sources *SourceDB, logger *slog.Logger, interval time.Duration) *Checker {
	return &Checker{
		sources:  sources,
		logger:   logger,
		interval: interval,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Start runs an immediate check then repeats every interval until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.CheckAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckAll(ctx)
		}
	}
}

// checkSummary tallies one CheckAll pass.
type checkSummary struct {
	ok, failed, unconfigured int
}

// CheckAll checks every source that has a URL and persists each result.
func (c *Checker) CheckAll(ctx context.Context) {
	sources, err := c.sources.ListSources()
	if err != nil {
		c.logger.Error("source check: list sources", "error", err)
		return
	}

	var sum checkSummary
	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		if src.SourceURL == "" {
			sum.unconfigured++
			continue
		}

		status, checkErr := c.checkOne(ctx, src.SourceURL)
		var errMsg string
		if checkErr != nil {
			errMsg = checkErr.Error()
		}
		if err := c.sources.UpdateCheck(src.AdapterID, status, errMsg); err != nil {
			c.logger.Error("source check: update status", "adapter", src.AdapterID, "error", err)
		}

		if reachable(status) {
			sum.ok++
			continue
		}
		sum.failed++
		c.logger.Warn("source unreachable",
			"adapter", src.AdapterID,
			"target", src.Target,
			"url", src.SourceURL,
			"status", status,
			"error", errMsg,
		)
	}

	if len(sources) > 0 {
		c.logger.Info("source check complete",
			"checked", sum.ok+sum.failed,
			"ok", sum.ok,
			"failed", sum.failed,
			"unconfigured", sum.unconfigured,
		)
	}
}

// reachable treats redirects as reachable; the importer follows them.
func reachable(status int) bool {
	return status >= 200 && status < 400
}

// checkOne returns an HTTP-style status for sourceURL. Local exports map to
// 200 when the file is readable and 404 when it is missing; a network
// error yields 0.
func (c *Checker) checkOne(ctx context.Context, sourceURL string) (int, error) {
	if local, ok := localPath(sourceURL); ok {
		return checkLocal(local)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", sourceURL, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func checkLocal(path string) (int, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, fmt.Errorf("stat %s: %w", path, err)
	case err != nil:
		return 0, fmt.Errorf("stat %s: %w", path, err)
	case info.IsDir():
		return http.StatusUnprocessableEntity, fmt.Errorf("%s is a directory", path)
	}
	return http.StatusOK, nil
}
