package pulse

import "math"

// invertedQuestions maps question IDs whose scale runs opposite to the rest
// of the questionnaire: a high raw value is a good outcome ("did you sleep
// well?"), so the contribution to the combined score is 10 minus the raw
// value. The table is fixed per questionnaire revision.
var invertedQuestions = map[int]bool{
	3: true, // sleep quality
	5: true, // energy level
	8: true, // ability to relax
}

// IsInverted reports whether a question ID carries inverted semantics.
func IsInverted(questionID int) bool {
	return invertedQuestions[questionID]
}

// NormalizeScore maps a raw response value onto the combined-score scale,
// flipping inverted questions. The raw value is expected in [0, 10].
func NormalizeScore(questionID int, raw float64) float64 {
	if invertedQuestions[questionID] {
		return 10 - raw
	}
	return raw
}

// CombinedScore computes the normalized mean of a response set, rounded to
// one decimal place. Pure and order-independent.
//
// Returns ErrEmptyResponses for an empty set: callers must block submission
// of unanswered assessments rather than rely on a fallback value.
// Returns ErrScoreOutOfRange if any raw score falls outside [0, 10].
func CombinedScore(responses []Response) (float64, error) {
	if len(responses) == 0 {
		return 0, ErrEmptyResponses
	}

	var sum float64
	for _, r := range responses {
		if r.Score < 0 || r.Score > 10 {
			return 0, ErrScoreOutOfRange
		}
		sum += NormalizeScore(r.QuestionID, r.Score)
	}

	mean := sum / float64(len(responses))
	return math.Round(mean*10) / 10, nil
}

// BandFor maps a combined score onto its qualitative band.
func BandFor(score float64) Band {
	switch {
	case score < 3:
		return BandLow
	case score < 6:
		return BandModerate
	default:
		return BandHigh
	}
}
