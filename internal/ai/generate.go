package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Limits on the number of questions in a generated test
const (
	DefaultTestQuestions = 5
	MaxTestQuestions     = 10
)

// Tokens requested per generated question
const tokensPerQuestion = 250

// ErrInvalidTest is returned when the model does not produce a usable test
var ErrInvalidTest = errors.New("ai: invalid test")

// Topics lists the subjects a test can cover, with guidance for each
var Topics = map[string]string{
	"hiragana": "Focus on reading and recognising hiragana.",
	"katakana": "Focus on reading and recognising katakana, including loanwords.",
	"kanji":    "Focus on kanji readings and meanings suited to the level.",
	"kotoba":   "Focus on everyday vocabulary suited to the level. Add furigana to any kanji.",
	"bunpo":    "Focus on grammar patterns with example sentences suited to the level. Add furigana to any kanji.",
	"dokkai":   "Include a short Japanese text followed by a comprehension question. Add furigana to any kanji.",
	"n5":       "Focus on JLPT N5 vocabulary, grammar and reading.",
	"n4":       "Focus on JLPT N4 vocabulary, grammar and reading.",
	"n3":       "Focus on JLPT N3 vocabulary, grammar and reading.",
	"n2":       "Focus on JLPT N2 vocabulary, grammar and reading.",
	"n1":       "Focus on JLPT N1 vocabulary, grammar and reading.",
}

// Levels lists the difficulty levels, easiest first
var Levels = []string{"starter", "beginner", "elementary", "intermediate", "advanced", "proficient"}

// TestRequest describes a test to generate
type TestRequest struct {
	Topic string
	Level string
	Count int
}

// TestQuestion is one generated multiple choice question
type TestQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// CorrectIndex returns the position of the correct answer among the options
func (q TestQuestion) CorrectIndex() int {
	return slices.Index(q.Options, q.CorrectAnswer)
}

// Normalize fills in defaults and checks topic and level
func (r TestRequest) Normalize() (TestRequest, error) {
	r.Topic = strings.ToLower(strings.TrimSpace(r.Topic))
	r.Level = strings.ToLower(strings.TrimSpace(r.Level))
	if r.Topic == "" {
		r.Topic = "hiragana"
	}
	if r.Level == "" {
		r.Level = Levels[0]
	}
	if _, ok := Topics[r.Topic]; !ok {
		return r, fmt.Errorf("unknown topic %q", r.Topic)
	}
	if !slices.Contains(Levels, r.Level) {
		return r, fmt.Errorf("unknown level %q", r.Level)
	}
	if r.Count <= 0 {
		r.Count = DefaultTestQuestions
	}
	r.Count = min(r.Count, MaxTestQuestions)
	return r, nil
}

// GenerateTest asks the model for a multiple choice test. Questions without
// four distinct options or whose answer is not among them are dropped.
func (t *Tutor) GenerateTest(ctx context.Context, req TestRequest) ([]TestQuestion, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(
		"You write Japanese language tests. Write %d multiple choice questions about %s for %s learners. %s "+
			"Every question has exactly 4 options and a short explanation in English. Reply with valid JSON only.",
		req.Count, req.Topic, req.Level, Topics[req.Topic],
	)
	user := fmt.Sprintf(
		"Write %d questions about %s for %s learners. Return a JSON array of objects with the properties "+
			"'text' (the question), 'options' (array of 4 answers), 'correctAnswer' (the correct option, copied exactly) "+
			"and 'explanation'.",
		req.Count, req.Topic, req.Level,
	)

	content, err := t.completeTokens(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.7, req.Count*tokensPerQuestion)
	if err != nil {
		return nil, err
	}

	questions, err := parseTest(content)
	if err != nil {
		return nil, err
	}
	if len(questions) > req.Count {
		questions = questions[:req.Count]
	}
	return questions, nil
}

var jsonPattern = regexp.MustCompile(`(?s)\[.*\]|\{.*\}`)

// parseTest extracts questions from a reply that may wrap the JSON in prose
// or code fences. A single object holding a "questions" array is accepted too.
func parseTest(content string) ([]TestQuestion, error) {
	raw := jsonPattern.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON in reply", ErrInvalidTest)
	}

	var parsed []TestQuestion
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTest, err)
		}
	} else {
		var wrapper struct {
			Questions []TestQuestion `json:"questions"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTest, err)
		}
		parsed = wrapper.Questions
	}

	questions := make([]TestQuestion, 0, len(parsed))
	for _, q := range parsed {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" || len(q.Options) != 4 || q.CorrectIndex() < 0 {
			continue
		}
		distinct := slices.Clone(q.Options)
		slices.Sort(distinct)
		if len(slices.Compact(distinct)) != 4 {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no usable questions", ErrInvalidTest)
	}
	return questions, nil
}
