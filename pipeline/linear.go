package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// LinearModel is a lexicon classifier with negation scope. The logit of
// label i is bias[i] plus weights[token][i] summed over the tokens of the
// text; a token within NegationWindow tokens after a negator in the same
// clause contributes its weights negated.
type LinearModel struct {
	Labels         []string             `json:"labels"`
	Bias           []float64            `json:"bias"`
	Weights        map[string][]float64 `json:"weights"`
	Lowercase      bool                 `json:"lowercase"`
	Negators       []string             `json:"negators"`
	NegationWindow int                  `json:"negation_window"`

	negators map[string]struct{}
}

var _ Pipeline = (*LinearModel)(nil)

func LoadLinear(data []byte) (*LinearModel, error) {
	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse linear model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.negators = make(map[string]struct{}, len(m.Negators))
	for _, n := range m.Negators {
		if m.Lowercase {
			n = strings.ToLower(n)
		}
		m.negators[n] = struct{}{}
	}
	return &m, nil
}

func LoadLinearFile(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return LoadLinear(data)
}

func (m *LinearModel) Validate() error {
	if len(m.Labels) == 0 {
		return fmt.Errorf("linear model has no labels")
	}
	if len(m.Bias) != len(m.Labels) {
		return fmt.Errorf("linear model has %d labels but %d biases", len(m.Labels), len(m.Bias))
	}
	for token, w := range m.Weights {
		if len(w) != len(m.Labels) {
			return fmt.Errorf("weights of %q have %d entries, expected %d", token, len(w), len(m.Labels))
		}
	}
	if m.NegationWindow < 0 {
		return fmt.Errorf("negation window must not be negative, got %d", m.NegationWindow)
	}
	if len(m.Negators) > 0 && m.NegationWindow == 0 {
		return fmt.Errorf("negators are set but the negation window is 0")
	}
	return nil
}

func (m *LinearModel) Classify(ctx context.Context, text string) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logits := make([]float64, len(m.Labels))
	copy(logits, m.Bias)
	for _, clause := range m.clauses(text) {
		negated := 0
		for _, token := range clause {
			if _, ok := m.negators[token]; ok {
				negated = m.NegationWindow
				continue
			}
			sign := 1.0
			if negated > 0 {
				sign = -1.0
				negated--
			}
			w, ok := m.Weights[token]
			if !ok {
				continue
			}
			for i := range logits {
				logits[i] += sign * w[i]
			}
		}
	}
	scores := softmax(logits)
	preds := make([]Prediction, len(m.Labels))
	for i, label := range m.Labels {
		preds[i] = Prediction{Label: label, Score: scores[i]}
	}
	return rank(preds), nil
}

func isClauseBreak(r rune) bool {
	return strings.ContainsRune(".,;:!?", r)
}

// clauses splits text at punctuation and each clause into word tokens.
func (m *LinearModel) clauses(text string) [][]string {
	if m.Lowercase {
		text = strings.ToLower(text)
	}
	parts := strings.FieldsFunc(text, isClauseBreak)
	ret := make([][]string, 0, len(parts))
	for _, part := range parts {
		tokens := strings.FieldsFunc(part, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if len(tokens) > 0 {
			ret = append(ret, tokens)
		}
	}
	return ret
}

func softmax(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		max = math.Max(max, v)
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
