/*
Package scoring folds equity and fatigue into one number per person.

PURPOSE:
  A scheduler choosing who takes the next duty wants a single figure: lower
  is a better pick. The score combines how far the person already is above
  their fair share (equity deviation, supplied by the caller) with how
  tired they are (fatigue ledger score).

FORMULA:
  score = we * equity + wf * min(1, fatigue / critical)

  we and wf come from the catalog weighting (they sum to 1), critical is
  the fatigue CRITICAL threshold. Both terms are in [0,1], so is the score,
  and it never decreases when either input grows.

SEE ALSO:
  - fatigue/ledger.go: Source of the fatigue score
  - catalog/types.go: FatigueConfig weighting and thresholds
*/
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/planning-engine/catalog"
	"github.com/warp/planning-engine/generic"
)

// Aggregator computes combined scores against the catalog in force.
type Aggregator struct {
	provider catalog.Provider
	source   generic.ScoreReader
	logger   zerolog.Logger
}

type Option func(*Aggregator)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger.With().Str("component", "scoring").Logger() }
}

func New(provider catalog.Provider, source generic.ScoreReader, opts ...Option) *Aggregator {
	a := &Aggregator{provider: provider, source: source, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Breakdown is a score with the terms it was built from.
type Breakdown struct {
	PersonID        string  `json:"personId"`
	Score           float64 `json:"score"`
	EquityDeviation float64 `json:"equityDeviation"`
	FatigueScore    int     `json:"fatigueScore"`
	FatigueTerm     float64 `json:"fatigueTerm"`
}

// Score returns the combined score of one person.
func (a *Aggregator) Score(ctx context.Context, equityDeviation float64, personID string, asOf time.Time) (float64, error) {
	b, err := a.breakdown(ctx, a.provider.Current().Fatigue, equityDeviation, personID, asOf)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

func (a *Aggregator) breakdown(ctx context.Context, cfg catalog.FatigueConfig, equity float64, personID string, asOf time.Time) (Breakdown, error) {
	if personID == "" {
		return Breakdown{}, generic.ErrPersonRequired
	}
	if math.IsNaN(equity) || equity < 0 || equity > 1 {
		return Breakdown{}, fmt.Errorf("%w: got %v", generic.ErrEquityOutOfRange, equity)
	}

	fatigue, err := a.source.CurrentScore(ctx, personID, asOf)
	if err != nil {
		return Breakdown{}, fmt.Errorf("fatigue score of %s: %w", personID, err)
	}
	term := 0.0
	if cfg.Enabled && cfg.Thresholds.Critical > 0 {
		term = math.Min(1, float64(fatigue)/float64(cfg.Thresholds.Critical))
	}

	w := cfg.Weighting
	score := w.Equity*equity + w.Fatigue*term
	// Weights sum to 1 within a small tolerance.
	score = math.Max(0, math.Min(1, score))

	return Breakdown{
		PersonID:        personID,
		Score:           score,
		EquityDeviation: equity,
		FatigueScore:    fatigue,
		FatigueTerm:     term,
	}, nil
}

// Candidate is one person competing for an assignment.
type Candidate struct {
	PersonID        string  `json:"personId" validate:"required"`
	EquityDeviation float64 `json:"equityDeviation" validate:"gte=0,lte=1"`
}

// Rank scores every candidate and orders them best first: ascending score,
// ties broken by person ID. A single bad candidate fails the whole call.
func (a *Aggregator) Rank(ctx context.Context, candidates []Candidate, asOf time.Time) ([]Breakdown, error) {
	cfg := a.provider.Current().Fatigue
	out := make([]Breakdown, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := a.breakdown(ctx, cfg, c.EquityDeviation, c.PersonID, asOf)
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.PersonID, err)
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].PersonID < out[j].PersonID
	})

	a.logger.Debug().Int("candidates", len(out)).Time("as_of", asOf).Msg("candidates ranked")
	return out, nil
}
