// Package calendar answers the single question the range resolver needs from
// a trading calendar: does an inclusive date range contain at least one
// session? It is deliberately optimistic: when the calendar cannot give an
// authoritative answer it reports that a session exists, so the engine
// attempts an unnecessary fetch rather than silently skipping real data.
package calendar

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"stocksync/internal/util"
)

// Calendar reports trading-session availability for the Shanghai exchange.
// When a holidays file is configured it is authoritative for weekday market
// closures (Spring Festival, National Day, and so on); without one the
// calendar degrades to the weekday heuristic.
type Calendar struct {
	holidaysPath string
	log          *slog.Logger

	once   sync.Once
	closed map[string]struct{} // ISO dates of weekday closures
}

// New creates a Calendar. holidaysPath may be empty, in which case only the
// weekday heuristic applies. The file is loaded lazily on first use.
func New(holidaysPath string, logger *slog.Logger) *Calendar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{holidaysPath: holidaysPath, log: logger}
}

// HasSession reports whether the inclusive range [start, end] contains at
// least one trading session. An inverted range contains none.
func (c *Calendar) HasSession(start, end time.Time) bool {
	start, end = util.Day(start), util.Day(end)
	if start.After(end) {
		return false
	}

	c.once.Do(c.load)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if c.closed != nil {
			if _, ok := c.closed[util.ISO(d)]; ok {
				continue
			}
		}
		return true
	}
	return false
}

// load reads the holidays file into the closure set. Failure is not fatal:
// the calendar keeps working on the weekday heuristic alone.
func (c *Calendar) load() {
	if c.holidaysPath == "" {
		return
	}

	f, err := os.Open(c.holidaysPath)
	if err != nil {
		c.log.Warn("holidays file unavailable, using weekday heuristic",
			"path", c.holidaysPath, "error", err)
		return
	}
	defer f.Close()

	closed := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := util.ParseISO(line); err != nil {
			c.log.Warn("skipping malformed holiday entry", "line", line)
			continue
		}
		closed[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn("reading holidays file", "path", c.holidaysPath, "error", err)
		return
	}

	c.closed = closed
	c.log.Debug("trading calendar loaded", "closures", len(closed))
}
