package bot

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/kanadeck/internal/ai"
	"github.com/example/kanadeck/internal/auth"
	"github.com/example/kanadeck/internal/catalog"
	"github.com/example/kanadeck/internal/database"
	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/example/kanadeck/internal/study"
	"github.com/example/kanadeck/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chatID int64 = 42

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	sendErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	close(f.updates)
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) last() tgbotapi.MessageConfig {
	msgs := f.messages()
	if len(msgs) == 0 {
		return tgbotapi.MessageConfig{}
	}
	return msgs[len(msgs)-1]
}

func (f *fakeAPI) callbackAnswers() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if answer, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, answer)
		}
	}
	return out
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	f.sent = nil
	f.requests = nil
	f.mu.Unlock()
}

type fakeTutor struct {
	history []ai.Message
	topic   string
	test    ai.TestRequest
	err     error
}

func (t *fakeTutor) ExplainWithFallback(_ context.Context, item models.Item) string {
	return "mnemonic for " + item.Symbol
}

func (t *fakeTutor) Chat(_ context.Context, history []ai.Message, question string) (string, error) {
	t.history = history
	if t.err != nil {
		return "", t.err
	}
	return "answer to " + question, nil
}

func (t *fakeTutor) SuggestQuestions(_ context.Context, topic string) ([]string, error) {
	t.topic = topic
	if t.err != nil {
		return nil, t.err
	}
	return []string{"How do I read " + topic + "?"}, nil
}

func (t *fakeTutor) GenerateTest(_ context.Context, req ai.TestRequest) ([]ai.TestQuestion, error) {
	t.test = req
	if t.err != nil {
		return nil, t.err
	}
	return []ai.TestQuestion{
		{Text: "How is カ read?", Options: []string{"ka", "ki", "ku", "ke"}, CorrectAnswer: "ka", Explanation: "カ is ka."},
		{Text: "How is キ read?", Options: []string{"ka", "ki", "ku", "ke"}, CorrectAnswer: "ki", Explanation: "キ is ki."},
	}, nil
}

type fakeReminders struct {
	sent bool
}

func (r *fakeReminders) RunManualCheck(context.Context, int64) (bool, error) {
	return r.sent, nil
}

type fixture struct {
	bot *Bot
	api *fakeAPI
	db  *sqlx.DB
}

func newFixture(t *testing.T, password string) *fixture {
	t.Helper()
	db, err := database.Connect(database.TypeSQLite, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry, err := catalog.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, registry.Register("mini", []models.Item{
		{Symbol: "あ", Transliteration: "a", Category: "gojuon"},
		{Symbol: "い", Transliteration: "i", Category: "gojuon"},
		{Symbol: "う", Transliteration: "u", Category: "gojuon"},
	}))

	clock := spaced_repetition.ClockFunc(func() time.Time { return t0 })
	svc, err := study.NewService(study.Config{
		DefaultDeck: "mini",
		QuizLength:  3,
		Clock:       clock,
		Rand:        rand.New(rand.NewSource(1)),
	}, registry, study.NewStores(db), zap.NewNop())
	require.NoError(t, err)

	var secret string
	if password != "" {
		secret = "test-secret"
	}
	gate, err := auth.NewGate(auth.Config{Password: password, Secret: secret, Clock: clock})
	require.NoError(t, err)

	api := newFakeAPI()
	return &fixture{
		bot: newBot(api, nil, svc, gate, &fakeTutor{}, zap.NewNop()),
		api: api,
		db:  db,
	}
}

func command(text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func text(body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 8,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      body,
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func (f *fixture) handle(updates ...tgbotapi.Update) {
	for _, update := range updates {
		f.bot.HandleUpdate(context.Background(), update)
	}
}

func buttons(t *testing.T, msg tgbotapi.MessageConfig) []string {
	t.Helper()
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok, "message has no inline keyboard")
	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, button := range row {
			require.NotNil(t, button.CallbackData)
			data = append(data, *button.CallbackData)
		}
	}
	return data
}

func TestStartShowsMenu(t *testing.T) {
	f := newFixture(t, "")
	f.handle(command("/start"))

	msg := f.api.last()
	assert.Equal(t, chatID, msg.ChatID)
	assert.Contains(t, msg.Text, "Welcome")
	assert.Contains(t, msg.Text, "mini")
	assert.Equal(t, []string{callbackNext, callbackQuiz, callbackStats, callbackDecks}, buttons(t, msg))
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/next"))
	msg := f.api.last()
	assert.True(t, strings.HasPrefix(msg.Text, "あ"))
	assert.Equal(t, []string{"known:あ", "unknown:あ", "show:あ"}, buttons(t, msg))

	f.api.reset()
	f.handle(callback("known:あ"))
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "✅ あ = a. See you again in 1 day.", msgs[0].Text)
	assert.True(t, strings.HasPrefix(msgs[1].Text, "い"))
	require.Len(t, f.api.callbackAnswers(), 1)

	f.api.reset()
	f.handle(callback("unknown:い"))
	msgs = f.api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "❌ い = i")
	// A missed card is due again at once and comes before う.
	assert.True(t, strings.HasPrefix(msgs[1].Text, "い"))
}

func TestStaleOutcomeIsIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.handle(callback("known:あ"))

	f.api.reset()
	f.handle(callback("known:あ"))
	assert.Empty(t, f.api.messages())
	answers := f.api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, "This card was already answered.", answers[0].Text)
}

func TestShowReadingAlerts(t *testing.T) {
	f := newFixture(t, "")
	f.handle(callback("show:う"))

	answers := f.api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, "う = u", answers[0].Text)
	assert.True(t, answers[0].ShowAlert)
	assert.Empty(t, f.api.messages())
}

func TestNothingDue(t *testing.T) {
	f := newFixture(t, "")
	f.handle(callback("known:あ"), callback("known:い"), callback("known:う"))

	f.api.reset()
	f.handle(command("/next"))
	assert.Contains(t, f.api.last().Text, "Nothing due")
}

func TestLoginGate(t *testing.T) {
	f := newFixture(t, "hunter2")

	f.handle(command("/next"))
	assert.Contains(t, f.api.last().Text, "/login")

	f.handle(callback(callbackNext))
	assert.Contains(t, f.api.last().Text, "/login")

	f.handle(command("/login nope"))
	assert.Equal(t, "❌ Wrong password.", f.api.last().Text)

	f.api.reset()
	f.handle(command("/login hunter2"))
	assert.Equal(t, "✅ Logged in.", f.api.last().Text)
	f.api.mu.Lock()
	require.NotEmpty(t, f.api.requests)
	_, deleted := f.api.requests[0].(tgbotapi.DeleteMessageConfig)
	f.api.mu.Unlock()
	assert.True(t, deleted, "the password message must be deleted")

	f.handle(command("/next"))
	assert.True(t, strings.HasPrefix(f.api.last().Text, "あ"))

	f.handle(command("/logout"), command("/next"))
	assert.Contains(t, f.api.last().Text, "/login")
}

func TestHelpIsPublic(t *testing.T) {
	f := newFixture(t, "hunter2")
	f.handle(command("/help"))
	assert.Contains(t, f.api.last().Text, "/next")
}

func TestDeckCommand(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/deck"))
	msg := f.api.last()
	assert.Contains(t, msg.Text, "mini")
	assert.Equal(t, []string{"deck:hiragana", "deck:katakana", "deck:mini"}, buttons(t, msg))

	f.handle(command("/deck kanji"))
	assert.Contains(t, f.api.last().Text, "Unknown deck")

	f.api.reset()
	f.handle(callback("deck:katakana"))
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "Switched to katakana")
	assert.True(t, strings.HasPrefix(msgs[1].Text, "ア"))
}

func TestProgressAndStats(t *testing.T) {
	f := newFixture(t, "")
	f.handle(callback("known:あ"))

	f.handle(command("/progress"))
	assert.Contains(t, f.api.last().Text, "Due now: 2")
	assert.Contains(t, f.api.last().Text, "Up next: い う")

	f.handle(command("/stats"))
	stats := f.api.last().Text
	assert.Contains(t, stats, "Reviews: 1")
	assert.Contains(t, stats, "Mastered: 0/3")
	assert.Contains(t, stats, "Streak: 1 day\n")
	assert.Equal(t, 27, strings.Count(stats, "⬜"))
	assert.Equal(t, 1, strings.Count(stats, "🟩"))
}

func TestTextQuiz(t *testing.T) {
	f := newFixture(t, "")

	f.handle(text("a"))
	assert.Contains(t, f.api.last().Text, "/next")

	f.handle(command("/quiz"))
	assert.Contains(t, f.api.last().Text, "Question 1/3")

	f.handle(text("wrong"), text("wrong"))
	assert.Contains(t, f.api.last().Text, "Question 3/3")

	f.api.reset()
	f.handle(text("wrong"))
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "❌")
	assert.Equal(t, "🏁 Quiz finished: 0/3 correct (0%).", msgs[1].Text)

	f.handle(command("/stop"))
	assert.Equal(t, "No quiz is running.", f.api.last().Text)
}

func TestMultipleChoiceQuiz(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/quiz choice"))
	options := buttons(t, f.api.last())
	assert.Equal(t, []string{"answer:0:0", "answer:0:1", "answer:0:2"}, options,
		"a three item deck has three distinct readings")

	f.api.reset()
	f.handle(callback(options[0]))
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "Question 2/3")
	assert.Equal(t, []string{"answer:1:0", "answer:1:1", "answer:1:2"}, buttons(t, msgs[1]))

	f.handle(command("/stop"))
	assert.Equal(t, "Quiz stopped.", f.api.last().Text)

	f.handle(command("/quiz bogus"))
	assert.Contains(t, f.api.last().Text, "Usage")
}

func TestDoubleTapAnswersOnce(t *testing.T) {
	f := newFixture(t, "")
	f.handle(command("/quiz choice"))

	f.api.reset()
	f.handle(callback("answer:0:0"), callback("answer:0:0"))
	msgs := f.api.messages()
	require.Len(t, msgs, 2, "only the first press is graded")
	assert.Contains(t, msgs[1].Text, "Question 2/3")

	answers := f.api.callbackAnswers()
	require.Len(t, answers, 2)
	assert.Equal(t, "", answers[0].Text)
	assert.Equal(t, "This question was already answered.", answers[1].Text)

	// The quiz still finishes after three graded answers.
	f.api.reset()
	f.handle(callback("answer:1:0"), callback("answer:2:0"))
	assert.Contains(t, f.api.last().Text, "🏁 Quiz finished")
	assert.Contains(t, f.api.last().Text, "/3 correct")
}

func TestMalformedAnswerIsIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.handle(command("/quiz choice"))

	f.api.reset()
	f.handle(callback("answer:x"), callback("answer:0:9"), callback("answer:"+"あ"))
	assert.Empty(t, f.api.messages())
	for _, answer := range f.api.callbackAnswers() {
		assert.Equal(t, "This question was already answered.", answer.Text)
	}

	f.handle(command("/stop"))
	f.api.reset()
	f.handle(callback("answer:0:0"))
	assert.Empty(t, f.api.messages())
	answers := f.api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, "No quiz is running.", answers[0].Text)
}

func TestAITest(t *testing.T) {
	f := newFixture(t, "")
	tutor := f.bot.tutor.(*fakeTutor)

	f.handle(command("/aitest katakana beginner 2"))
	assert.Equal(t, ai.TestRequest{Topic: "katakana", Level: "beginner", Count: 2}, tutor.test)
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "🧠 katakana (beginner) test, 2 questions.", msgs[0].Text)
	assert.Equal(t, "📝 Question 1/2\n\nHow is カ read?", msgs[1].Text)
	assert.Equal(t, []string{"answer:0:0", "answer:0:1", "answer:0:2", "answer:0:3"}, buttons(t, msgs[1]))

	f.api.mu.Lock()
	_, typing := f.api.requests[0].(tgbotapi.ChatActionConfig)
	f.api.mu.Unlock()
	assert.True(t, typing)

	f.api.reset()
	f.handle(callback("answer:0:1"))
	msgs = f.api.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "❌ The answer is \"ka\".\n\n💡 カ is ka.", msgs[0].Text)
	assert.Contains(t, msgs[1].Text, "How is キ read?")

	f.api.reset()
	f.handle(callback("answer:1:1"))
	msgs = f.api.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "✅ Correct!\n\n💡 キ is ki.", msgs[0].Text)
	assert.Equal(t, "🏁 Quiz finished: 1/2 correct (50%).", msgs[1].Text)

	f.handle(command("/history"))
	history := f.api.last().Text
	assert.Contains(t, history, "2025-06-15 10:00  ai_test  1/2 (50%)  katakana (beginner)")
}

func TestAITestDefaultsAndErrors(t *testing.T) {
	f := newFixture(t, "")
	tutor := f.bot.tutor.(*fakeTutor)

	f.handle(command("/aitest"))
	assert.Equal(t, ai.TestRequest{Topic: "hiragana", Level: "starter", Count: ai.DefaultTestQuestions}, tutor.test)

	f.handle(command("/aitest cooking"))
	assert.Contains(t, f.api.last().Text, "Usage: /aitest")
	assert.Contains(t, f.api.last().Text, "dokkai")

	tutor.err = errors.New("rate limited")
	f.handle(command("/aitest n5"))
	assert.Contains(t, f.api.last().Text, "Could not create a test")

	f.bot.tutor = nil
	f.handle(command("/aitest"))
	assert.Equal(t, "The tutor is not configured.", f.api.last().Text)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/history"))
	assert.Contains(t, f.api.last().Text, "No quizzes yet")

	f.handle(command("/quiz"), text("a"), text("i"), text("u"))
	f.handle(command("/history"))
	assert.Contains(t, f.api.last().Text, "text_input")
	assert.Contains(t, f.api.last().Text, "mini")
}

func TestGrid(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/grid"))
	assert.Equal(t, "🔤 mini (3)\n\ngojuon\nあ a  い i  う u", f.api.last().Text)

	f.handle(command("/grid Katakana"))
	assert.Contains(t, f.api.last().Text, "ア a")

	f.handle(command("/grid kanji"))
	assert.Contains(t, f.api.last().Text, "Unknown deck")
}

func TestExport(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/export"))
	f.api.mu.Lock()
	require.NotEmpty(t, f.api.sent)
	doc, ok := f.api.sent[len(f.api.sent)-1].(tgbotapi.DocumentConfig)
	f.api.mu.Unlock()
	require.True(t, ok, "the deck is sent as a document")
	assert.Equal(t, chatID, doc.ChatID)
	assert.Equal(t, "📦 mini, 3 items", doc.Caption)

	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "mini.json", file.Name)

	// The export loads back as a custom deck.
	path := filepath.Join(t.TempDir(), file.Name)
	require.NoError(t, os.WriteFile(path, file.Bytes, 0o644))
	items, err := catalog.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []models.Item{
		{Symbol: "あ", Transliteration: "a", Category: "gojuon"},
		{Symbol: "い", Transliteration: "i", Category: "gojuon"},
		{Symbol: "う", Transliteration: "u", Category: "gojuon"},
	}, items)

	f.handle(command("/export kanji"))
	assert.Contains(t, f.api.last().Text, "Unknown deck")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"ab\ncd", "ef"}, splitMessage("ab\ncd\nef", 5))
	assert.Equal(t, []string{"あ", "い"}, splitMessage("あい", 4), "long lines are cut at rune boundaries")
	assert.Nil(t, splitMessage("", 10))
}

func TestExplainAndAsk(t *testing.T) {
	f := newFixture(t, "")
	tutor := f.bot.tutor.(*fakeTutor)

	f.handle(command("/explain"))
	assert.Equal(t, "💡 mnemonic for あ", f.api.last().Text)

	f.handle(command("/explain ア"))
	assert.Contains(t, f.api.last().Text, "not in your current deck")

	f.handle(command("/ask"))
	assert.Contains(t, f.api.last().Text, "• How do I read mini?")
	assert.Equal(t, "mini", tutor.topic)

	f.handle(command("/ask what is kana?"))
	assert.Equal(t, "answer to what is kana?", f.api.last().Text)
	assert.Empty(t, tutor.history)

	f.handle(command("/ask and kanji?"))
	assert.Len(t, tutor.history, 2)

	tutor.err = errors.New("rate limited")
	f.handle(command("/ask again?"))
	assert.Contains(t, f.api.last().Text, "unavailable")
	assert.Len(t, f.bot.chatHistory(chatID), 4)

	f.handle(command("/ask"))
	assert.Equal(t, "Usage: /ask <question>", f.api.last().Text)

	f.handle(command("/logout"))
	assert.Empty(t, f.bot.chatHistory(chatID))
}

func TestExplainWithoutTutor(t *testing.T) {
	f := newFixture(t, "")
	f.bot.tutor = nil

	f.handle(command("/explain い"))
	assert.Equal(t, "💡 い is read \"i\" (gojuon).", f.api.last().Text)

	f.handle(command("/ask hello"))
	assert.Equal(t, "The tutor is not configured.", f.api.last().Text)
}

func TestReset(t *testing.T) {
	f := newFixture(t, "")
	f.handle(callback("known:あ"))

	f.handle(command("/reset"))
	assert.Equal(t, []string{callbackResetConfirm, callbackResetCancel}, buttons(t, f.api.last()))

	f.handle(callback(callbackResetCancel))
	assert.Equal(t, "Reset cancelled.", f.api.last().Text)

	f.api.reset()
	f.handle(callback(callbackResetConfirm))
	msgs := f.api.messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Text, "あ"))
}

func TestNotifyAndRemind(t *testing.T) {
	f := newFixture(t, "")

	f.handle(command("/notify"))
	assert.Contains(t, f.api.last().Text, "enabled")
	f.handle(command("/notify off"))
	assert.Equal(t, "🔔 Reminders disabled.", f.api.last().Text)
	f.handle(command("/notify maybe"))
	assert.Equal(t, "Usage: /notify on|off", f.api.last().Text)

	f.handle(command("/remind"))
	assert.Equal(t, "Reminders are not running.", f.api.last().Text)

	f.bot.SetReminders(&fakeReminders{})
	f.handle(command("/remind"))
	assert.Equal(t, "🎉 Nothing due right now.", f.api.last().Text)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, "")
	f.handle(command("/frobnicate"))
	assert.Contains(t, f.api.last().Text, "Unknown command")
}

func TestHandlerErrorsAreReported(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.db.Close())

	f.handle(command("/next"))
	assert.Equal(t, "❌ Something went wrong. Please try again later.", f.api.last().Text)
}

func TestSendReminder(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.bot.SendReminder(context.Background(), 7, 1))
	msg := f.api.last()
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, "⏰ You have 1 card waiting for review.", msg.Text)
	assert.Equal(t, []string{callbackNext}, buttons(t, msg))

	f.api.sendErr = errors.New("bot was blocked by the user")
	assert.Error(t, f.bot.SendReminder(context.Background(), 7, 3))
}

func TestStartAndStop(t *testing.T) {
	f := newFixture(t, "")

	done := make(chan error, 1)
	go func() { done <- f.bot.Start(context.Background()) }()

	f.api.updates <- command("/help")
	assert.Eventually(t, func() bool {
		return len(f.api.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.bot.Stop(ctx))
	require.NoError(t, <-done)
}
