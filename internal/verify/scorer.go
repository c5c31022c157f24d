package verify

import (
	"veristry/internal/checker"
	dErrors "veristry/pkg/domain-errors"
)

// Penalty multipliers applied per failed outcome, keyed by failure
// classification. A breaker rejection means unavailable, not denial, so it
// shares the not-found multiplier.
const (
	penaltyTimeout     = 0.7
	penaltyNotFound    = 0.8
	penaltyCircuitOpen = 0.8
	penaltyOther       = 0.9
)

// Score reduces the outcome set to a confidence score in [0,1] and its
// discrete level. It is pure: the same outcomes always produce the same
// score, and outcome order does not matter.
//
// Successful outcomes earn weight x quality out of the total weight that was
// in play; each failed outcome then multiplies the ratio by a penalty for
// its classification. With no outcomes, or none successful, the score is 0.
func Score(outcomes []checker.Outcome) (float64, Level) {
	var earned, total float64
	penalty := 1.0

	for _, out := range outcomes {
		total += out.Weight
		if out.Success {
			earned += out.Weight * clamp01(out.Quality)
			continue
		}
		penalty *= penaltyFor(out.ErrorCode)
	}
	if total == 0 {
		return 0, LevelNone
	}

	score := clamp01(earned / total * penalty)
	return score, LevelFor(score)
}

func penaltyFor(code string) float64 {
	switch dErrors.ErrorCode(code) {
	case dErrors.CodeTimeout:
		return penaltyTimeout
	case dErrors.CodeNotFound:
		return penaltyNotFound
	case dErrors.CodeCircuitOpen:
		return penaltyCircuitOpen
	}
	return penaltyOther
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
