package quiz

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/example/kanadeck/pkg/models"
)

// Kind represents different types of quizzes
type Kind string

const (
	// TextInput asks the learner to type the transliteration
	TextInput Kind = "text_input"
	// MultipleChoice offers OptionCount transliterations to pick from
	MultipleChoice Kind = "multiple_choice"
	// Generated is a multiple choice test whose questions come from the tutor
	Generated Kind = "ai_test"
)

// OptionCount is the number of choices offered by a multiple choice question
const OptionCount = 4

var (
	ErrNoQuestions = errors.New("quiz: no items to ask about")
	ErrFinished    = errors.New("quiz: already finished")
	ErrUnknownKind = errors.New("quiz: unknown quiz kind")
	ErrNoOption    = errors.New("quiz: no such option")
)

// ParseKind maps a user supplied name onto a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", string(TextInput):
		return TextInput, nil
	case "choice", "mc", string(MultipleChoice):
		return MultipleChoice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Question represents a single quiz question. For generated tests Item.Symbol
// holds the question text and Item.Transliteration the correct option.
type Question struct {
	Item         models.Item
	Options      []string // Multiple choice only
	CorrectIndex int      // Index of the transliteration in Options
	Explanation  string
}

// Verdict is the graded answer to one question
type Verdict struct {
	Question Question
	Input    string
	Correct  bool
}

// Options configures a new quiz
type Options struct {
	Deck   string
	Kind   Kind
	Length int        // Upper bound on the number of questions
	Rand   *rand.Rand // nil → seeded from the clock
	Clock  spaced_repetition.Clock
}

// Quiz walks a learner through a fixed list of questions.
// A Quiz is not safe for concurrent use.
type Quiz struct {
	deck      string
	kind      Kind
	clock     spaced_repetition.Clock
	questions []Question
	verdicts  []Verdict
	correct   int
	startedAt time.Time
	endedAt   time.Time
}

// New draws up to opts.Length distinct items in random order
func New(items []models.Item, opts Options) (*Quiz, error) {
	if opts.Kind != TextInput && opts.Kind != MultipleChoice {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
	if len(items) == 0 || opts.Length <= 0 {
		return nil, ErrNoQuestions
	}

	clock := opts.Clock
	if clock == nil {
		clock = spaced_repetition.SystemClock
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}

	pool := distinct(items)
	rnd.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > opts.Length {
		pool = pool[:opts.Length]
	}

	questions := make([]Question, 0, len(pool))
	for _, item := range pool {
		question := Question{Item: item}
		if opts.Kind == MultipleChoice {
			question.Options, question.CorrectIndex = buildOptions(item, items, rnd)
		}
		questions = append(questions, question)
	}

	return &Quiz{
		deck:      opts.Deck,
		kind:      opts.Kind,
		clock:     clock,
		questions: questions,
		startedAt: clock.Now(),
	}, nil
}

// FromQuestions starts a generated test over prepared multiple choice questions,
// keeping their order
func FromQuestions(questions []Question, opts Options) (*Quiz, error) {
	if opts.Length > 0 && len(questions) > opts.Length {
		questions = questions[:opts.Length]
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	prepared := make([]Question, len(questions))
	for i, question := range questions {
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return nil, fmt.Errorf("%w: question %d has no correct option", ErrNoOption, i+1)
		}
		question.Options = append([]string(nil), question.Options...)
		question.Item.Transliteration = question.Options[question.CorrectIndex]
		prepared[i] = question
	}

	clock := opts.Clock
	if clock == nil {
		clock = spaced_repetition.SystemClock
	}

	return &Quiz{
		deck:      opts.Deck,
		kind:      Generated,
		clock:     clock,
		questions: prepared,
		startedAt: clock.Now(),
	}, nil
}

// Kind returns the quiz kind
func (q *Quiz) Kind() Kind { return q.kind }

// Len returns the number of questions
func (q *Quiz) Len() int { return len(q.questions) }

// Position returns the zero-based index of the current question
func (q *Quiz) Position() int { return len(q.verdicts) }

// Done reports whether every question has been answered
func (q *Quiz) Done() bool { return len(q.verdicts) >= len(q.questions) }

// Current returns the question awaiting an answer
func (q *Quiz) Current() (Question, bool) {
	if q.Done() {
		return Question{}, false
	}
	return q.questions[len(q.verdicts)], true
}

// Answer grades input against the current question and advances
func (q *Quiz) Answer(input string) (Verdict, error) {
	question, ok := q.Current()
	if !ok {
		return Verdict{}, ErrFinished
	}

	verdict := Verdict{
		Question: question,
		Input:    input,
		Correct:  normalize(input) == normalize(question.Item.Transliteration),
	}
	if verdict.Correct {
		q.correct++
	}
	q.verdicts = append(q.verdicts, verdict)
	if q.Done() {
		q.endedAt = q.clock.Now()
	}
	return verdict, nil
}

// AnswerOption grades the option at index of the current question
func (q *Quiz) AnswerOption(index int) (Verdict, error) {
	question, ok := q.Current()
	if !ok {
		return Verdict{}, ErrFinished
	}
	if index < 0 || index >= len(question.Options) {
		return Verdict{}, fmt.Errorf("%w: %d", ErrNoOption, index)
	}
	return q.Answer(question.Options[index])
}

// Verdicts returns the graded answers so far
func (q *Quiz) Verdicts() []Verdict {
	out := make([]Verdict, len(q.verdicts))
	copy(out, q.verdicts)
	return out
}

// Result summarizes the quiz. FinishedAt is the time of the last answer,
// or now for an abandoned quiz.
func (q *Quiz) Result() models.QuizResult {
	finished := q.endedAt
	if finished.IsZero() {
		finished = q.clock.Now()
	}
	return models.QuizResult{
		Deck:       q.deck,
		QuizType:   string(q.kind),
		Total:      len(q.questions),
		Correct:    q.correct,
		StartedAt:  q.startedAt,
		FinishedAt: finished,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func distinct(items []models.Item) []models.Item {
	seen := make(map[string]bool, len(items))
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		if seen[item.Symbol] {
			continue
		}
		seen[item.Symbol] = true
		out = append(out, item)
	}
	return out
}

// buildOptions picks distractors from the item's category first, then from
// the rest of the deck. Transliterations never repeat within one question.
func buildOptions(item models.Item, all []models.Item, rnd *rand.Rand) ([]string, int) {
	used := map[string]bool{normalize(item.Transliteration): true}
	options := []string{item.Transliteration}

	var sameCategory, other []models.Item
	for _, candidate := range all {
		if candidate.Category == item.Category {
			sameCategory = append(sameCategory, candidate)
		} else {
			other = append(other, candidate)
		}
	}

	for _, group := range [][]models.Item{sameCategory, other} {
		rnd.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		for _, candidate := range group {
			if len(options) == OptionCount {
				break
			}
			key := normalize(candidate.Transliteration)
			if used[key] {
				continue
			}
			used[key] = true
			options = append(options, candidate.Transliteration)
		}
	}

	rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	correctIndex := 0
	for i, option := range options {
		if option == item.Transliteration {
			correctIndex = i
			break
		}
	}
	return options, correctIndex
}
