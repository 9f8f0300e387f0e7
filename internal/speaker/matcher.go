package speaker

import (
	"math"
	"sort"

	"companion.app/relay/internal/model"
)

// DefaultMatchThreshold is the cosine similarity a sample must reach
// against its best profile to be accepted as that person.
const DefaultMatchThreshold = 0.75

type Score struct {
	ProfileID int64   `json:"profile_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

type MatchResult struct {
	Scores   []Score `json:"scores"` // every comparable profile, best first
	Best     *Score  `json:"best,omitempty"`
	Accepted bool    `json:"accepted"`
}

type Matcher struct {
	Threshold float64
}

func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{Threshold: threshold}
}

// Rank scores the sample against each profile. Profiles whose embedding
// has a different dimension are not comparable and are left out.
func (m *Matcher) Rank(sample model.Embedding, profiles []model.VoiceProfile) MatchResult {
	scores := make([]Score, 0, len(profiles))
	for _, p := range profiles {
		if len(p.Embedding.Vector) != len(sample.Vector) || len(sample.Vector) == 0 {
			continue
		}
		scores = append(scores, Score{
			ProfileID: p.ID,
			Name:      p.Name,
			Score:     CosineSimilarity(sample.Vector, p.Embedding.Vector),
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	result := MatchResult{Scores: scores}
	if len(scores) > 0 {
		best := scores[0]
		result.Best = &best
		result.Accepted = best.Score >= m.Threshold
	}
	return result
}

// CosineSimilarity of two equal-length vectors. Zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
