// Package batch partitions large title/ID lists into ordered chunks that
// respect the session's batch cap and the transport URL-length budget, and
// builds the reverse index needed to reassemble per-key results.
package batch

import (
	"net/url"
	"sort"

	"github.com/rs/zerolog"
)

// Batch caps per privilege level. Privileged sessions (bulk-request rights)
// may send an order of magnitude more keys per request.
const (
	// DefaultCap applies to anonymous and ordinary sessions.
	DefaultCap = 50

	// HighLimitCap applies to privileged high-volume sessions.
	HighLimitCap = 500

	// DefaultURLBudget bounds the serialized key-list length for GET-style
	// batch requests, leaving room for the rest of the query string.
	DefaultURLBudget = 7000
)

// Normalizer maps an input key to its canonical form. Case and whitespace
// rules are domain-specific and supplied by the caller; Identity keeps keys
// untouched.
type Normalizer func(string) string

// Identity is the no-op normalizer.
func Identity(s string) string { return s }

// CapacityModel bounds one chunk.
type CapacityModel struct {
	// MaxKeys is the batch-count cap for the session's privilege level.
	MaxKeys int

	// URLBudget is the serialized length budget for one chunk.
	URLBudget int

	// LengthBounded applies the URL budget; POST bodies are not
	// URL-length-bounded and set this false.
	LengthBounded bool
}

// Capacity returns the model for a session privilege level.
func Capacity(highLimits, lengthBounded bool) CapacityModel {
	cap := DefaultCap
	if highLimits {
		cap = HighLimitCap
	}
	return CapacityModel{
		MaxKeys:       cap,
		URLBudget:     DefaultURLBudget,
		LengthBounded: lengthBounded,
	}
}

// Plan is an ordered sequence of chunks plus the reverse index from
// normalized key to every original input position that produced it.
type Plan struct {
	// Chunks are deduplicated, sorted key lists, each within capacity.
	Chunks [][]string

	// Index maps each normalized key to all original input positions.
	// Duplicate inputs (after normalization) share one chunk entry and
	// must all be resolved on result merge.
	Index map[string][]int
}

// Empty reports whether the plan issues no requests. An empty input is a
// valid terminal case, not an error.
func (p *Plan) Empty() bool { return len(p.Chunks) == 0 }

// Keys returns the total number of distinct normalized keys.
func (p *Plan) Keys() int { return len(p.Index) }

// Planner builds batch plans under one capacity model.
type Planner struct {
	capacity  CapacityModel
	normalize Normalizer
	logger    zerolog.Logger
}

// NewPlanner creates a planner. A nil normalizer keeps keys untouched.
func NewPlanner(capacity CapacityModel, normalize Normalizer, logger zerolog.Logger) *Planner {
	if capacity.MaxKeys <= 0 {
		capacity.MaxKeys = DefaultCap
	}
	if capacity.URLBudget <= 0 {
		capacity.URLBudget = DefaultURLBudget
	}
	if normalize == nil {
		normalize = Identity
	}
	return &Planner{capacity: capacity, normalize: normalize, logger: logger}
}

// Plan normalizes, deduplicates, and sorts the keys, then greedily packs
// them into chunks within the count cap and, for length-bounded requests,
// the URL budget. Keys whose escaped form alone exceeds the budget get a
// chunk of their own rather than being dropped.
func (p *Planner) Plan(keys []string) *Plan {
	plan := &Plan{Index: make(map[string][]int, len(keys))}
	for i, k := range keys {
		nk := p.normalize(k)
		plan.Index[nk] = append(plan.Index[nk], i)
	}
	if len(plan.Index) == 0 {
		return plan
	}

	// Sorted for deterministic chunking.
	normalized := make([]string, 0, len(plan.Index))
	for nk := range plan.Index {
		normalized = append(normalized, nk)
	}
	sort.Strings(normalized)

	var (
		chunk   []string
		chunkSz int
	)
	flush := func() {
		if len(chunk) > 0 {
			plan.Chunks = append(plan.Chunks, chunk)
			chunk = nil
			chunkSz = 0
		}
	}
	for _, nk := range normalized {
		cost := len(url.QueryEscape(nk)) + 3 // separator, escaped
		overCount := len(chunk) >= p.capacity.MaxKeys
		overLength := p.capacity.LengthBounded && len(chunk) > 0 && chunkSz+cost > p.capacity.URLBudget
		if overCount || overLength {
			flush()
		}
		chunk = append(chunk, nk)
		chunkSz += cost
	}
	flush()

	p.logger.Debug().
		Int("inputs", len(keys)).
		Int("keys", len(normalized)).
		Int("chunks", len(plan.Chunks)).
		Msg("Batch plan built")
	return plan
}
