package likelihood

import (
	"fmt"
	"math"
	"strings"
)

// Failure policies.
const (
	PolicyStrict  = "strict"
	PolicyExclude = "exclude"
	PolicyPenalty = "penalty"
)

// Judge decides how a trajectory outcome counts toward a collection mean.
// A successful outcome always counts with its log-likelihood; judges only
// differ on failures.
type Judge interface {
	// Policy names the judge.
	Policy() string

	// Score returns the contribution of o and whether it is included. An
	// error aborts the collection.
	Score(o Outcome) (value float64, include bool, err error)
}

// Strict fails the collection on the first failed trajectory.
type Strict struct{}

func (Strict) Policy() string { return PolicyStrict }

func (Strict) Score(o Outcome) (float64, bool, error) {
	if o.Err != nil {
		return 0, false, fmt.Errorf("trajectory %d (%s): %w", o.Index, o.Name, o.Err)
	}
	return o.LogLikelihood, true, nil
}

// Exclude drops failed trajectories from the mean.
type Exclude struct{}

func (Exclude) Policy() string { return PolicyExclude }

func (Exclude) Score(o Outcome) (float64, bool, error) {
	if o.Err != nil {
		return 0, false, nil
	}
	return o.LogLikelihood, true, nil
}

// Penalty scores failed trajectories with a fixed log10 value.
type Penalty struct {
	Value float64
}

func (Penalty) Policy() string { return PolicyPenalty }

func (p Penalty) Score(o Outcome) (float64, bool, error) {
	if o.Err != nil {
		return p.Value, true, nil
	}
	return o.LogLikelihood, true, nil
}

// NewJudge returns the judge for a policy name. penalty is used only by
// the penalty policy.
func NewJudge(policy string, penalty float64) (Judge, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyStrict:
		return Strict{}, nil
	case PolicyExclude:
		return Exclude{}, nil
	case PolicyPenalty:
		if math.IsNaN(penalty) || math.IsInf(penalty, 0) {
			return nil, fmt.Errorf("likelihood: penalty must be finite, got %g", penalty)
		}
		return Penalty{Value: penalty}, nil
	default:
		return nil, fmt.Errorf("likelihood: unknown failure policy %q", policy)
	}
}
