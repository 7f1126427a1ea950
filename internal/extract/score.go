package extract

import (
	"strings"

	"github.com/sells-group/surveillance-cli/internal/model"
)

// bodyRowsScanned is how many rows under the header are searched for
// keywords, covering tables whose real header sits below a caption row.
const bodyRowsScanned = 2

// Scorer ranks candidate tables by keyword evidence and size.
type Scorer struct {
	vocab *Vocabulary
}

// NewScorer creates a Scorer over vocab.
func NewScorer(vocab *Vocabulary) *Scorer {
	return &Scorer{vocab: vocab}
}

// Score returns the relevance of t. Each keyword family adds its header
// weight when found in row 0 and its body weight when found in the next
// rows. A size bonus of one point per data row, capped at RowBonusCap, is
// added only when at least one family matched, so tables without domain
// keywords score zero.
func (s *Scorer) Score(t model.RawTable) int {
	if len(t.Rows) == 0 {
		return 0
	}

	header := strings.Join(t.Rows[0], " ")
	var body []string
	for i := 1; i < len(t.Rows) && i <= bodyRowsScanned; i++ {
		body = append(body, strings.Join(t.Rows[i], " "))
	}
	bodyText := strings.Join(body, " ")

	score := 0
	matched := false
	for _, f := range model.AllFamilies() {
		keys := s.vocab.Keys(f)
		w := s.vocab.Weight(f)
		if containsAny(header, keys) {
			score += w.Header
			matched = true
		}
		if containsAny(bodyText, keys) {
			score += w.Body
			matched = true
		}
	}
	if !matched {
		return 0
	}

	rows := len(t.Rows) - 1
	if rows > s.vocab.RowBonusCap {
		rows = s.vocab.RowBonusCap
	}
	return score + rows
}

// Best returns the candidate with the strictly highest score, the first one
// winning ties. ok is false when no candidate scores above zero.
func (s *Scorer) Best(tables []model.RawTable) (best model.RawTable, score int, ok bool) {
	score = 0
	for _, t := range tables {
		sc := s.Score(t)
		if sc > score {
			best, score, ok = t, sc, true
		}
	}
	return best, score, ok
}
