// Package grading scores a single submitted value against a question's answer
// key. It knows nothing about storage; callers pass a minimal view of the
// question and the response in canonical form.
package grading

import "strings"

// Q is the minimal view of a question needed for grading.
type Q struct {
	Type      string
	MaxScore  float64
	AnswerKey []string // canonical forms
}

// Response is a submitted value already normalized to canonical strings.
type Response interface {
	Canonical() string
	// Elements returns list members; ok is false for scalar values.
	Elements() (items []string, ok bool)
}

// Result is the outcome of grading one response. IsCorrect is nil when the
// question cannot be auto-graded.
type Result struct {
	IsCorrect *bool
	Score     float64
}

// Strategy grades one question type.
type Strategy interface {
	Grade(q Q, r Response) bool
}

// MissingKeyPolicy decides the result for a question with no answer key.
type MissingKeyPolicy func(q Q) Result

// ProvisionalFullCredit awards the full score pending manual review.
func ProvisionalFullCredit(q Q) Result { return Result{Score: q.MaxScore} }

// AwaitManualGrade contributes nothing until a teacher grades the answer.
func AwaitManualGrade(Q) Result { return Result{} }

// PolicyByName resolves a config value; unknown names fall back to full credit.
func PolicyByName(name string) MissingKeyPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "manual", "await_manual":
		return AwaitManualGrade
	default:
		return ProvisionalFullCredit
	}
}

// Grader routes by question type to the matching Strategy.
type Grader struct {
	strategies map[string]Strategy
	missingKey MissingKeyPolicy
}

type Option func(*Grader)

func WithMissingKeyPolicy(p MissingKeyPolicy) Option {
	return func(g *Grader) {
		if p != nil {
			g.missingKey = p
		}
	}
}

func WithStrategy(qType string, s Strategy) Option {
	return func(g *Grader) { g.strategies[qType] = s }
}

// NewGrader installs the built-in strategies.
func NewGrader(opts ...Option) *Grader {
	g := &Grader{
		strategies: map[string]Strategy{
			"single_choice":   singleChoiceStrategy{},
			"multiple_choice": multipleChoiceStrategy{},
			"text":            normalizedMatchStrategy{},
			"number":          normalizedMatchStrategy{},
		},
		missingKey: ProvisionalFullCredit,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Grade scores r against q. Score is MaxScore when correct and 0 otherwise;
// an empty answer key defers to the MissingKeyPolicy.
func (g *Grader) Grade(q Q, r Response) Result {
	if len(q.AnswerKey) == 0 {
		return g.missingKey(q)
	}
	ok := false
	if s, found := g.strategies[q.Type]; found {
		ok = s.Grade(q, r)
	}
	res := Result{IsCorrect: &ok}
	if ok {
		res.Score = q.MaxScore
	}
	return res
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q Q, r Response) bool {
	resp := r.Canonical()
	for _, k := range q.AnswerKey {
		if resp == k {
			return true
		}
	}
	return false
}

// multipleChoiceStrategy requires the exact set; subsets earn nothing.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q Q, r Response) bool {
	items, ok := r.Elements()
	if !ok {
		return false
	}
	return setEqual(toSet(items), toSet(q.AnswerKey))
}

type normalizedMatchStrategy struct{}

func (normalizedMatchStrategy) Grade(q Q, r Response) bool {
	resp := normalize(r.Canonical())
	for _, k := range q.AnswerKey {
		if normalize(k) == resp {
			return true
		}
	}
	return false
}

// helpers

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
