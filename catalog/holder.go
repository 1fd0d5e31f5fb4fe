package catalog

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Provider hands out the catalog currently in force. Callers fetch it once
// per operation so that a single evaluation never mixes two catalogs.
type Provider interface {
	Current() *Catalog
}

type static struct{ c *Catalog }

func (s static) Current() *Catalog { return s.c }

// Static wraps a fixed catalog.
func Static(c *Catalog) Provider { return static{c: c} }

// Holder owns the process-wide catalog and swaps it atomically on reload.
// Readers never observe a partially built catalog.
type Holder struct {
	current atomic.Pointer[Catalog]
	version atomic.Int64
	logger  zerolog.Logger
}

// NewHolder starts with an already validated catalog.
func NewHolder(initial *Catalog, logger zerolog.Logger) *Holder {
	h := &Holder{logger: logger.With().Str("component", "catalog").Logger()}
	h.Replace(initial)
	return h
}

func (h *Holder) Current() *Catalog { return h.current.Load() }

// Generation increments on every successful swap.
func (h *Holder) Generation() int64 { return h.version.Load() }

// Replace installs a new catalog.
func (h *Holder) Replace(c *Catalog) {
	h.current.Store(c)
	gen := h.version.Add(1)
	h.logger.Info().
		Int64("generation", gen).
		Str("version", c.Version).
		Int("leave_rules", len(c.LeaveRules)).
		Int("duty_rules", len(c.DutyRules)).
		Int("assignment_rules", len(c.AssignmentRules)).
		Bool("fatigue_enabled", c.Fatigue.Enabled).
		Msg("catalog installed")
}

// Reload validates source and swaps it in. On error the previous catalog
// stays in force.
func (h *Holder) Reload(source []byte) (*Catalog, error) {
	c, err := Load(source)
	if err != nil {
		h.logger.Warn().Err(err).Msg("catalog reload rejected")
		return nil, fmt.Errorf("reload: %w", err)
	}
	h.Replace(c)
	return c, nil
}

// ReloadFile is Reload from a file.
func (h *Holder) ReloadFile(path string) (*Catalog, error) {
	c, err := LoadFile(path)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("catalog reload rejected")
		return nil, fmt.Errorf("reload: %w", err)
	}
	h.Replace(c)
	return c, nil
}
