// Package reputation implements the Reputation Service: an exponential-decay
// trust score computed from an agent's interaction history, with a
// leaderboard-style ranked query.
package reputation

import (
	"math"
	"sort"
	"time"

	"github.com/VibeTensor/attestix/pkg/safestore"
)

// lambda is the decay constant ln(2) / T for a half-life T of 30 days.
var lambda = math.Ln2 / (30 * 86400)

// Outcome is the result of a single agent interaction.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailure Outcome = "failure"
)

// outcomeWeight maps an outcome to its contribution weight.
var outcomeWeight = map[Outcome]float64{
	OutcomeSuccess: 1.0,
	OutcomePartial: 0.5,
	OutcomeTimeout: 0.2,
	OutcomeFailure: 0.0,
}

// Interaction is a single recorded agent interaction.
type Interaction struct {
	AgentID        string    `json:"agent_id"`
	CounterpartyID string    `json:"counterparty_id"`
	Outcome        Outcome   `json:"outcome"`
	Category       string    `json:"category,omitempty"`
	Details        string    `json:"details,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Epoch          int64     `json:"epoch"`
}

type collection struct {
	Interactions []Interaction `json:"interactions"`
}

// Service is the Reputation Service.
type Service struct {
	store *safestore.Store
}

// New creates the Reputation Service.
func New(store *safestore.Store) *Service {
	return &Service{store: store}
}

// Record appends a new interaction.
func (s *Service) Record(in Interaction) error {
	if in.Epoch == 0 {
		in.Epoch = in.Timestamp.Unix()
	}
	return s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		col.Interactions = append(col.Interactions, in)
		return s.store.Save(col)
	})
}

// Get computes the decayed trust score for agentID as of now.
func (s *Service) Get(agentID string) (float64, int, error) {
	col, err := s.load()
	if err != nil {
		return 0, 0, err
	}
	score, n := scoreFor(col.Interactions, agentID, time.Now().UTC())
	return score, n, nil
}

func scoreFor(interactions []Interaction, agentID string, now time.Time) (float64, int) {
	var numerator, denominator float64
	n := 0
	for _, in := range interactions {
		if in.AgentID != agentID {
			continue
		}
		n++
		age := now.Unix() - in.Epoch
		weight := math.Exp(-lambda * float64(age))
		numerator += outcomeWeight[in.Outcome] * weight
		denominator += weight
	}
	if denominator == 0 {
		return 0, n
	}
	return numerator / denominator, n
}

// QueryResult is one ranked entry in a Query response.
type QueryResult struct {
	AgentID      string  `json:"agent_id"`
	Score        float64 `json:"score"`
	Interactions int     `json:"interactions"`
}

// Query ranks agents by decayed trust score within the given bounds,
// descending, bounded by limit.
func (s *Service) Query(minScore, maxScore float64, minInteractions int, category string, limit int) ([]QueryResult, error) {
	col, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	byAgent := map[string][]Interaction{}
	for _, in := range col.Interactions {
		if category != "" && in.Category != category {
			continue
		}
		byAgent[in.AgentID] = append(byAgent[in.AgentID], in)
	}

	results := make([]QueryResult, 0, len(byAgent))
	for agentID, ins := range byAgent {
		if len(ins) < minInteractions {
			continue
		}
		score, n := scoreFor(ins, agentID, now)
		if score < minScore || score > maxScore {
			continue
		}
		results = append(results, QueryResult{AgentID: agentID, Score: score, Interactions: n})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].AgentID < results[j].AgentID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Service) load() (*collection, error) {
	col := &collection{}
	if err := s.store.Load(col); err != nil {
		return nil, err
	}
	return col, nil
}

// PurgeAgent removes every recorded interaction involving agentID, either
// as the subject or the counterparty, for GDPR erasure fan-out from the
// identity service's Purge.
func (s *Service) PurgeAgent(agentID string) (int, error) {
	var n int
	err := s.store.WithLock(func() error {
		col, err := s.load()
		if err != nil {
			return err
		}
		kept := col.Interactions[:0]
		for _, in := range col.Interactions {
			if in.AgentID == agentID || in.CounterpartyID == agentID {
				n++
				continue
			}
			kept = append(kept, in)
		}
		col.Interactions = kept
		return s.store.Save(col)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
