package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/kanadeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var kana = models.Item{Symbol: "あ", Transliteration: "a", Category: "gojuon"}

// newTestTutor serves reply for every request and records the last request body
func newTestTutor(t *testing.T, status int, reply string, last *ChatRequest) *Tutor {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if last != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(last))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	tutor, err := New(Config{APIKey: "test-key", APIURL: server.URL, Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)
	return tutor
}

func completion(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + quote(content) + `}}]}`
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestExplain(t *testing.T) {
	var req ChatRequest
	tutor := newTestTutor(t, http.StatusOK, completion("  あ looks like an apple.  "), &req)

	explanation, err := tutor.Explain(context.Background(), kana)
	require.NoError(t, err)
	assert.Equal(t, "あ looks like an apple.", explanation)

	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "あ")
	assert.Contains(t, req.Messages[1].Content, "'a'")
}

func TestExplainAPIError(t *testing.T) {
	tutor := newTestTutor(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, nil)
	_, err := tutor.Explain(context.Background(), kana)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")

	tutor = newTestTutor(t, http.StatusBadGateway, `<html>oops</html>`, nil)
	_, err = tutor.Explain(context.Background(), kana)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	tutor = newTestTutor(t, http.StatusOK, `{"choices":[]}`, nil)
	_, err = tutor.Explain(context.Background(), kana)
	assert.Error(t, err)
}

func TestExplainWithFallback(t *testing.T) {
	tutor := newTestTutor(t, http.StatusInternalServerError, `{"error":{"message":"overloaded"}}`, nil)
	assert.Equal(t, `あ is read "a" (gojuon).`, tutor.ExplainWithFallback(context.Background(), kana))

	var missing *Tutor
	assert.Equal(t, `あ is read "a" (gojuon).`, missing.ExplainWithFallback(context.Background(), kana))
}

func TestChatTrimsHistory(t *testing.T) {
	var req ChatRequest
	tutor := newTestTutor(t, http.StatusOK, completion("Use katakana for loanwords."), &req)

	history := make([]Message, 15)
	for i := range history {
		history[i] = Message{Role: "user", Content: string(rune('a' + i))}
	}

	answer, err := tutor.Chat(context.Background(), history, "When do I use katakana?")
	require.NoError(t, err)
	assert.Equal(t, "Use katakana for loanwords.", answer)

	require.Len(t, req.Messages, MaxHistory+2)
	assert.Equal(t, "f", req.Messages[1].Content)
	assert.Equal(t, "When do I use katakana?", req.Messages[len(req.Messages)-1].Content)
}

func TestSuggestQuestions(t *testing.T) {
	tutor := newTestTutor(t, http.StatusOK, completion("1. What is dakuten?\n2) Why two n's?\n\n- How do I read ゃ?\n4. Extra"), nil)

	questions, err := tutor.SuggestQuestions(context.Background(), "hiragana")
	require.NoError(t, err)
	assert.Equal(t, []string{"What is dakuten?", "Why two n's?", "How do I read ゃ?"}, questions)
}

func TestContextCancellation(t *testing.T) {
	tutor := newTestTutor(t, http.StatusOK, completion("late"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tutor.Explain(ctx, kana)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGenerateTest(t *testing.T) {
	reply := "Here is your test:\n```json\n" + `[
		{"text": "How is か read?", "options": ["ka", "ki", "ku", "ke"], "correctAnswer": "ka", "explanation": "か is ka."},
		{"text": "Broken", "options": ["a", "b"], "correctAnswer": "a", "explanation": ""},
		{"text": "Missing answer", "options": ["a", "b", "c", "d"], "correctAnswer": "e", "explanation": ""},
		{"text": "Duplicate options", "options": ["a", "a", "c", "d"], "correctAnswer": "a", "explanation": ""},
		{"text": "How is き read?", "options": ["ka", "ki", "ku", "ke"], "correctAnswer": "ki", "explanation": "き is ki."}
	]` + "\n```"
	var req ChatRequest
	tutor := newTestTutor(t, http.StatusOK, completion(reply), &req)

	questions, err := tutor.GenerateTest(context.Background(), TestRequest{Topic: "Hiragana", Level: "beginner", Count: 3})
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "How is か read?", questions[0].Text)
	assert.Equal(t, 0, questions[0].CorrectIndex())
	assert.Equal(t, 1, questions[1].CorrectIndex())
	assert.Equal(t, "き is ki.", questions[1].Explanation)

	assert.Equal(t, 3*tokensPerQuestion, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "3 multiple choice questions about hiragana for beginner learners")
}

func TestGenerateTestWrappedObject(t *testing.T) {
	reply := `{"questions": [{"text": "Q", "options": ["1", "2", "3", "4"], "correctAnswer": "4", "explanation": "E"}]}`
	tutor := newTestTutor(t, http.StatusOK, completion(reply), nil)

	questions, err := tutor.GenerateTest(context.Background(), TestRequest{})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, 3, questions[0].CorrectIndex())
}

func TestGenerateTestInvalidReply(t *testing.T) {
	tutor := newTestTutor(t, http.StatusOK, completion("Sorry, I cannot do that."), nil)

	_, err := tutor.GenerateTest(context.Background(), TestRequest{})
	assert.True(t, errors.Is(err, ErrInvalidTest))
}

func TestTestRequestNormalize(t *testing.T) {
	req, err := TestRequest{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, TestRequest{Topic: "hiragana", Level: "starter", Count: DefaultTestQuestions}, req)

	req, err = TestRequest{Topic: "N3", Level: "Advanced", Count: 50}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, TestRequest{Topic: "n3", Level: "advanced", Count: MaxTestQuestions}, req)

	_, err = TestRequest{Topic: "cooking"}.Normalize()
	assert.Error(t, err)
	_, err = TestRequest{Level: "expert"}.Normalize()
	assert.Error(t, err)
}
