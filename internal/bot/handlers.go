package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/example/kanadeck/internal/ai"
	"github.com/example/kanadeck/internal/auth"
	"github.com/example/kanadeck/internal/catalog"
	"github.com/example/kanadeck/internal/quiz"
	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/example/kanadeck/internal/study"
	"github.com/example/kanadeck/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Constants for callback data
const (
	callbackNext          = "next"
	callbackStats         = "stats"
	callbackDecks         = "decks"
	callbackQuiz          = "quiz"
	callbackResetConfirm  = "reset:confirm"
	callbackResetCancel   = "reset:cancel"
	callbackKnownPrefix   = "known:"
	callbackUnknownPrefix = "unknown:"
	callbackShowPrefix    = "show:"
	callbackDeckPrefix    = "deck:"
	callbackAnswerPrefix  = "answer:"
)

// Due cards listed by /progress
const upNextLimit = 5

// Results listed by /history
const historyLimit = 10

// Telegram rejects messages longer than this
const maxMessageLength = 4096

// Commands that work without logging in
var publicCommands = map[string]bool{
	"start": true,
	"help":  true,
	"login": true,
}

// MainMenuButtons returns the buttons shown under the welcome message
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{
			{Text: "▶️ Review", CallbackData: callbackNext},
			{Text: "📝 Quiz", CallbackData: callbackQuiz},
		},
		{
			{Text: "📊 Stats", CallbackData: callbackStats},
			{Text: "📚 Decks", CallbackData: callbackDecks},
		},
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	command := message.Command()
	args := strings.TrimSpace(message.CommandArguments())

	if !publicCommands[command] {
		ok, err := b.authorized(ctx, chatID)
		if err != nil {
			return err
		}
		if !ok {
			return b.sendLoginPrompt(chatID)
		}
	}

	switch command {
	case "start":
		return b.handleStart(ctx, chatID)
	case "help":
		return b.handleHelp(chatID)
	case "login":
		return b.handleLogin(ctx, message, args)
	case "logout":
		return b.handleLogout(ctx, chatID)
	case "deck":
		return b.handleDeck(ctx, chatID, args)
	case "next":
		return b.showNextCard(ctx, chatID)
	case "progress":
		return b.handleProgress(ctx, chatID)
	case "stats":
		return b.handleStats(ctx, chatID)
	case "quiz":
		return b.handleQuiz(ctx, chatID, args)
	case "aitest":
		return b.handleAITest(ctx, chatID, args)
	case "history":
		return b.handleHistory(ctx, chatID)
	case "stop":
		return b.handleStopQuiz(chatID)
	case "grid":
		return b.handleGrid(ctx, chatID, args)
	case "export":
		return b.handleExport(ctx, chatID, args)
	case "explain":
		return b.handleExplain(ctx, chatID, args)
	case "ask":
		return b.handleAsk(ctx, chatID, args)
	case "reset":
		return b.handleReset(chatID)
	case "notify":
		return b.handleNotify(ctx, chatID, args)
	case "remind":
		return b.handleRemind(ctx, chatID)
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Unknown command. Use /help to see what I can do."))
	}
}

// HandleCallback handles presses on inline buttons
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.Message == nil || callback.Message.Chat == nil {
		b.answerCallback(callback, "", false)
		return fmt.Errorf("invalid callback: message is missing")
	}
	chatID := callback.Message.Chat.ID

	ok, err := b.authorized(ctx, chatID)
	if err != nil {
		b.answerCallback(callback, "", false)
		return err
	}
	if !ok {
		b.answerCallback(callback, "Please log in first.", false)
		return b.sendLoginPrompt(chatID)
	}

	data := callback.Data
	switch {
	case strings.HasPrefix(data, callbackKnownPrefix):
		return b.handleOutcome(ctx, callback, strings.TrimPrefix(data, callbackKnownPrefix), true)
	case strings.HasPrefix(data, callbackUnknownPrefix):
		return b.handleOutcome(ctx, callback, strings.TrimPrefix(data, callbackUnknownPrefix), false)
	case strings.HasPrefix(data, callbackShowPrefix):
		return b.handleShow(ctx, callback, strings.TrimPrefix(data, callbackShowPrefix))
	case strings.HasPrefix(data, callbackAnswerPrefix):
		return b.handleOptionAnswer(ctx, callback, strings.TrimPrefix(data, callbackAnswerPrefix))
	case strings.HasPrefix(data, callbackDeckPrefix):
		b.answerCallback(callback, "", false)
		return b.handleDeck(ctx, chatID, strings.TrimPrefix(data, callbackDeckPrefix))
	}

	b.answerCallback(callback, "", false)
	switch data {
	case callbackNext:
		return b.showNextCard(ctx, chatID)
	case callbackStats:
		return b.handleStats(ctx, chatID)
	case callbackDecks:
		return b.handleDeck(ctx, chatID, "")
	case callbackQuiz:
		return b.handleQuiz(ctx, chatID, "")
	case callbackResetConfirm:
		return b.confirmReset(ctx, chatID)
	case callbackResetCancel:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Reset cancelled."))
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "⚠️ Unknown action"))
	}
}

// handleText treats plain text as a quiz answer while a quiz is running
func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	ok, err := b.authorized(ctx, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return b.sendLoginPrompt(chatID)
	}

	if b.study.QuizRunning(chatID) {
		return b.handleQuizAnswer(ctx, chatID, message.Text)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, "Use /next to review your cards or /help for all commands."))
}

// authorized reports whether the chat may use the bot
func (b *Bot) authorized(ctx context.Context, chatID int64) (bool, error) {
	if b.gate == nil || !b.gate.Enabled() {
		return true, nil
	}

	learner, err := b.study.Learner(ctx, chatID)
	if err != nil {
		return false, err
	}
	if err := b.gate.Verify(learner.Token); err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			b.logger.Info("Session expired", zap.Int64("chat_id", chatID))
		}
		return false, nil
	}
	return true, nil
}

func (b *Bot) sendLoginPrompt(chatID int64) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, "🔒 Please log in first: /login <password>"))
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) error {
	learner, err := b.study.Learner(ctx, chatID)
	if err != nil {
		return err
	}

	text := "👋 Welcome to kanadeck!\n\n" +
		"I will help you learn Japanese kana with spaced repetition.\n\n" +
		"🔹 How it works:\n" +
		"1. I show you a kana\n" +
		"2. You tell me whether you knew its reading\n" +
		"3. Cards you know come back less and less often\n\n" +
		fmt.Sprintf("You are studying %s.", learner.Deck)
	if b.gate != nil && b.gate.Enabled() {
		text += "\n\n🔒 Log in with /login <password> to begin."
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "📖 Commands\n\n" +
		"/next - Show the next due card\n" +
		"/deck [name] - Show or switch decks\n" +
		"/progress - Your progress on the current deck\n" +
		"/stats - Activity over the last four weeks\n" +
		"/quiz [text|choice] - Start a quiz, /stop ends it\n" +
		"/aitest [topic] [level] [count] - Take a generated test\n" +
		"/history - Your recent quiz results\n" +
		"/grid [deck] - Show every kana of a deck\n" +
		"/export [deck] - Download a deck as JSON\n" +
		"/explain [kana] - Get a mnemonic\n" +
		"/ask <question> - Ask the tutor\n" +
		"/notify on|off - Turn reminders on or off\n" +
		"/remind - Check for due cards now\n" +
		"/reset - Start the current deck over\n" +
		"/login <password>, /logout - Manage your session\n\n" +
		"🔄 Every card you know doubles its interval: 1, 2, 4, 8 days and so on. " +
		"A card you miss comes right back."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleLogin(ctx context.Context, message *tgbotapi.Message, password string) error {
	chatID := message.Chat.ID

	// Keep the password out of the chat history.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, message.MessageID)); err != nil {
		b.logger.Debug("Failed to delete login message", zap.Error(err))
	}

	if b.gate == nil || !b.gate.Enabled() {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "No login needed, just start with /next."))
	}
	if password == "" {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Usage: /login <password>"))
	}

	token, err := b.gate.Login(password)
	if errors.Is(err, auth.ErrInvalidPassword) {
		b.logger.Info("Failed login", zap.Int64("chat_id", chatID))
		return b.sendMessage(tgbotapi.NewMessage(chatID, "❌ Wrong password."))
	}
	if err != nil {
		return err
	}
	if err := b.study.SetToken(ctx, chatID, token); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, "✅ Logged in.")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleLogout(ctx context.Context, chatID int64) error {
	if err := b.study.SetToken(ctx, chatID, ""); err != nil {
		return err
	}
	b.clearHistory(chatID)
	return b.sendMessage(tgbotapi.NewMessage(chatID, "👋 Logged out."))
}

func (b *Bot) handleDeck(ctx context.Context, chatID int64, name string) error {
	if name == "" {
		learner, err := b.study.Learner(ctx, chatID)
		if err != nil {
			return err
		}

		var rows [][]MenuButton
		for _, deck := range b.study.Decks() {
			label := deck
			if deck == learner.Deck {
				label = "✅ " + deck
			}
			rows = append(rows, []MenuButton{{Text: label, CallbackData: callbackDeckPrefix + deck}})
		}

		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("📚 You are studying %s. Pick a deck:", learner.Deck))
		msg.ReplyMarkup = createKeyboard(rows)
		return b.sendMessage(msg)
	}

	name = strings.ToLower(name)
	if err := b.study.Open(ctx, chatID, name); err != nil {
		if errors.Is(err, catalog.ErrUnknownDeck) {
			return b.sendMessage(tgbotapi.NewMessage(chatID,
				fmt.Sprintf("Unknown deck %q. Available: %s", name, strings.Join(b.study.Decks(), ", "))))
		}
		return err
	}

	due, err := b.study.DueCount(ctx, chatID)
	if err != nil {
		return err
	}
	if err := b.sendMessage(tgbotapi.NewMessage(chatID, fmt.Sprintf("📚 Switched to %s. %d cards due.", name, due))); err != nil {
		return err
	}
	return b.showNextCard(ctx, chatID)
}

// showNextCard sends the due card with outcome buttons, or a summary when nothing is due
func (b *Bot) showNextCard(ctx context.Context, chatID int64) error {
	card, ok, err := b.study.Next(ctx, chatID)
	if err != nil {
		return err
	}

	if !ok {
		progress, err := b.study.Progress(ctx, chatID)
		if err != nil {
			return err
		}
		text := fmt.Sprintf("🎉 Nothing due right now. Come back later!\n\n%s", formatProgress(progress))
		return b.sendMessage(tgbotapi.NewMessage(chatID, text))
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n\nDo you know this one?", card.Symbol))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{
			{Text: "✅ Known", CallbackData: callbackKnownPrefix + card.Symbol},
			{Text: "❌ Unknown", CallbackData: callbackUnknownPrefix + card.Symbol},
		},
		{{Text: "👀 Show reading", CallbackData: callbackShowPrefix + card.Symbol}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleOutcome(ctx context.Context, callback *tgbotapi.CallbackQuery, symbol string, knewIt bool) error {
	chatID := callback.Message.Chat.ID

	// Buttons stay on old messages; only the card currently shown may be answered.
	current, ok, err := b.study.Next(ctx, chatID)
	if err != nil {
		b.answerCallback(callback, "", false)
		return err
	}
	if !ok || current.Symbol != symbol {
		b.answerCallback(callback, "This card was already answered.", false)
		return nil
	}

	card, err := b.study.Answer(ctx, chatID, symbol, knewIt)
	if errors.Is(err, spaced_repetition.ErrCardNotFound) {
		b.answerCallback(callback, "This card is no longer in your deck.", false)
		return nil
	}
	if err != nil {
		b.answerCallback(callback, "", false)
		return err
	}
	b.answerCallback(callback, "", false)

	var text string
	if knewIt {
		text = fmt.Sprintf("✅ %s = %s. See you again in %s.", card.Symbol, card.Transliteration, formatDays(card.Interval))
	} else {
		text = fmt.Sprintf("❌ %s = %s. It will come back right away.", card.Symbol, card.Transliteration)
	}
	if err := b.sendMessage(tgbotapi.NewMessage(chatID, text)); err != nil {
		return err
	}
	return b.showNextCard(ctx, chatID)
}

func (b *Bot) handleShow(ctx context.Context, callback *tgbotapi.CallbackQuery, symbol string) error {
	card, ok, err := b.study.Card(ctx, callback.Message.Chat.ID, symbol)
	if err != nil {
		b.answerCallback(callback, "", false)
		return err
	}
	if !ok {
		b.answerCallback(callback, "This card is no longer in your deck.", false)
		return nil
	}
	b.answerCallback(callback, fmt.Sprintf("%s = %s", card.Symbol, card.Transliteration), true)
	return nil
}

func (b *Bot) handleProgress(ctx context.Context, chatID int64) error {
	progress, err := b.study.Progress(ctx, chatID)
	if err != nil {
		return err
	}
	due, err := b.study.DueCount(ctx, chatID)
	if err != nil {
		return err
	}
	upcoming, err := b.study.DueCards(ctx, chatID, upNextLimit)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\nDue now: %d", formatProgress(progress), due)
	if len(upcoming) > 0 {
		symbols := make([]string, len(upcoming))
		for i, card := range upcoming {
			symbols[i] = card.Symbol
		}
		text += "\nUp next: " + strings.Join(symbols, " ")
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) error {
	activity, err := b.study.Stats(ctx, chatID)
	if err != nil {
		return err
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, formatActivity(activity)))
}

func (b *Bot) handleQuiz(ctx context.Context, chatID int64, args string) error {
	kind, err := quiz.ParseKind(args)
	if err != nil {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Usage: /quiz [text|choice]"))
	}

	step, err := b.study.StartQuiz(ctx, chatID, kind)
	if err != nil {
		return err
	}
	return b.sendQuestion(chatID, step)
}

func (b *Bot) handleStopQuiz(chatID int64) error {
	if !b.study.StopQuiz(chatID) {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "No quiz is running."))
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, "Quiz stopped."))
}

func (b *Bot) handleQuizAnswer(ctx context.Context, chatID int64, input string) error {
	step, err := b.study.AnswerQuiz(ctx, chatID, input)
	if errors.Is(err, study.ErrNoQuiz) || errors.Is(err, quiz.ErrFinished) {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "No quiz is running. Start one with /quiz."))
	}
	return b.sendQuizStep(chatID, step, err)
}

// handleOptionAnswer grades a multiple choice button. The data holds the
// question position and the option index; presses on an earlier question
// are ignored.
func (b *Bot) handleOptionAnswer(ctx context.Context, callback *tgbotapi.CallbackQuery, data string) error {
	chatID := callback.Message.Chat.ID

	posText, optionText, _ := strings.Cut(data, ":")
	position, err1 := strconv.Atoi(posText)
	option, err2 := strconv.Atoi(optionText)
	if err1 != nil || err2 != nil {
		b.answerCallback(callback, "This question was already answered.", false)
		return nil
	}

	step, err := b.study.AnswerQuizOption(ctx, chatID, position, option)
	switch {
	case errors.Is(err, study.ErrStaleAnswer), errors.Is(err, quiz.ErrNoOption):
		b.answerCallback(callback, "This question was already answered.", false)
		return nil
	case errors.Is(err, study.ErrNoQuiz), errors.Is(err, quiz.ErrFinished):
		b.answerCallback(callback, "No quiz is running.", false)
		return nil
	}
	b.answerCallback(callback, "", false)
	return b.sendQuizStep(chatID, step, err)
}

// sendQuizStep sends feedback on the graded answer followed by the next
// question or the final score. err is the error returned with step.
func (b *Bot) sendQuizStep(chatID int64, step study.QuizStep, err error) error {
	if err != nil && step.Result == nil {
		return err
	}
	if err != nil {
		b.logger.Error("Failed to save quiz result", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	question := step.Verdict.Question
	item := question.Item
	feedback := "✅ Correct!"
	switch {
	case step.Verdict.Correct:
	case question.Explanation != "":
		feedback = fmt.Sprintf("❌ The answer is %q.", item.Transliteration)
	default:
		feedback = fmt.Sprintf("❌ %s is read %q.", item.Symbol, item.Transliteration)
	}
	if question.Explanation != "" {
		feedback += "\n\n💡 " + question.Explanation
	}
	if err := b.sendMessage(tgbotapi.NewMessage(chatID, feedback)); err != nil {
		return err
	}

	if step.Result != nil {
		text := fmt.Sprintf("🏁 Quiz finished: %d/%d correct (%.0f%%).",
			step.Result.Correct, step.Result.Total, step.Result.Score()*100)
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		return b.sendMessage(msg)
	}
	return b.sendQuestion(chatID, step)
}

func (b *Bot) sendQuestion(chatID int64, step study.QuizStep) error {
	if step.Next == nil {
		return nil
	}
	question := *step.Next

	text := fmt.Sprintf("📝 Question %d/%d\n\n%s", step.Position+1, step.Total, question.Item.Symbol)
	msg := tgbotapi.NewMessage(chatID, text)
	if len(question.Options) == 0 {
		msg.Text += "\n\nType the reading."
		return b.sendMessage(msg)
	}

	var rows [][]MenuButton
	for i := 0; i < len(question.Options); i += 2 {
		var row []MenuButton
		for j := i; j < min(i+2, len(question.Options)); j++ {
			row = append(row, MenuButton{
				Text:         question.Options[j],
				CallbackData: fmt.Sprintf("%s%d:%d", callbackAnswerPrefix, step.Position, j),
			})
		}
		rows = append(rows, row)
	}
	msg.ReplyMarkup = createKeyboard(rows)
	return b.sendMessage(msg)
}

// handleAITest starts a generated test. Arguments may name a topic, a level
// and a question count in any order.
func (b *Bot) handleAITest(ctx context.Context, chatID int64, args string) error {
	if b.tutor == nil {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "The tutor is not configured."))
	}

	var req ai.TestRequest
	for _, field := range strings.Fields(strings.ToLower(args)) {
		if n, err := strconv.Atoi(field); err == nil {
			req.Count = n
			continue
		}
		if _, ok := ai.Topics[field]; ok {
			req.Topic = field
			continue
		}
		if slices.Contains(ai.Levels, field) {
			req.Level = field
			continue
		}
		return b.sendAITestUsage(chatID)
	}
	req, err := req.Normalize()
	if err != nil {
		return b.sendAITestUsage(chatID)
	}

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send chat action", zap.Error(err))
	}
	generated, err := b.tutor.GenerateTest(ctx, req)
	if err != nil {
		b.logger.Warn("Failed to generate test", zap.Int64("chat_id", chatID), zap.String("topic", req.Topic), zap.Error(err))
		return b.sendMessage(tgbotapi.NewMessage(chatID, "🤖 Could not create a test right now. Please try again later."))
	}

	questions := make([]quiz.Question, len(generated))
	for i, g := range generated {
		questions[i] = quiz.Question{
			Item:         models.Item{Symbol: g.Text, Category: req.Topic},
			Options:      g.Options,
			CorrectIndex: g.CorrectIndex(),
			Explanation:  g.Explanation,
		}
	}

	label := fmt.Sprintf("%s (%s)", req.Topic, req.Level)
	step, err := b.study.StartGeneratedQuiz(ctx, chatID, label, questions)
	if err != nil {
		return err
	}
	if err := b.sendMessage(tgbotapi.NewMessage(chatID, fmt.Sprintf("🧠 %s test, %d questions.", label, step.Total))); err != nil {
		return err
	}
	return b.sendQuestion(chatID, step)
}

func (b *Bot) sendAITestUsage(chatID int64) error {
	topics := make([]string, 0, len(ai.Topics))
	for topic := range ai.Topics {
		topics = append(topics, topic)
	}
	slices.Sort(topics)

	text := fmt.Sprintf("Usage: /aitest [topic] [level] [count]\n\nTopics: %s\nLevels: %s\nCount: 1-%d, default %d",
		strings.Join(topics, ", "), strings.Join(ai.Levels, ", "), ai.MaxTestQuestions, ai.DefaultTestQuestions)
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) error {
	results, err := b.study.QuizHistory(ctx, chatID, historyLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "No quizzes yet. Start one with /quiz or /aitest."))
	}

	var sb strings.Builder
	sb.WriteString("🗂 Recent quizzes\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "\n%s  %s  %d/%d (%.0f%%)  %s",
			r.FinishedAt.UTC().Format("2006-01-02 15:04"), r.QuizType, r.Correct, r.Total, r.Score()*100, r.Deck)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, sb.String()))
}

// handleGrid lists every item of a deck grouped by category
func (b *Bot) handleGrid(ctx context.Context, chatID int64, deck string) error {
	name, items, ok, err := b.deckItems(ctx, chatID, deck)
	if err != nil || !ok {
		return err
	}

	for _, chunk := range splitMessage(formatGrid(name, items), maxMessageLength) {
		if err := b.sendMessage(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return err
		}
	}
	return nil
}

// handleExport sends a deck as a JSON document in the custom deck format
func (b *Bot) handleExport(ctx context.Context, chatID int64, deck string) error {
	name, items, ok, err := b.deckItems(ctx, chatID, deck)
	if err != nil || !ok {
		return err
	}

	var buf bytes.Buffer
	if err := catalog.Export(&buf, items); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name + ".json", Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("📦 %s, %d items", name, len(items))
	return b.sendMessage(doc)
}

// deckItems looks up a deck by name, or the current one when name is empty.
// Unknown names are reported to the chat and yield ok == false.
func (b *Bot) deckItems(ctx context.Context, chatID int64, name string) (string, []models.Item, bool, error) {
	name = strings.ToLower(name)
	deck, items, err := b.study.DeckItems(ctx, chatID, name)
	if errors.Is(err, catalog.ErrUnknownDeck) {
		err = b.sendMessage(tgbotapi.NewMessage(chatID,
			fmt.Sprintf("Unknown deck %q. Available: %s", name, strings.Join(b.study.Decks(), ", "))))
		return "", nil, false, err
	}
	if err != nil {
		return "", nil, false, err
	}
	return deck, items, true, nil
}

func (b *Bot) handleExplain(ctx context.Context, chatID int64, symbol string) error {
	var (
		card models.Card
		ok   bool
		err  error
	)
	if symbol != "" {
		card, ok, err = b.study.Card(ctx, chatID, symbol)
	} else {
		card, ok, err = b.study.Next(ctx, chatID)
	}
	if err != nil {
		return err
	}
	if !ok {
		if symbol != "" {
			return b.sendMessage(tgbotapi.NewMessage(chatID, fmt.Sprintf("%s is not in your current deck.", symbol)))
		}
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Nothing due to explain. Try /explain <kana>."))
	}

	var text string
	if b.tutor != nil {
		text = b.tutor.ExplainWithFallback(ctx, card.Item)
	} else {
		text = ai.Fallback(card.Item)
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, "💡 "+text))
}

func (b *Bot) handleAsk(ctx context.Context, chatID int64, question string) error {
	if b.tutor == nil {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "The tutor is not configured."))
	}
	if question == "" {
		return b.suggestQuestions(ctx, chatID)
	}

	answer, err := b.tutor.Chat(ctx, b.chatHistory(chatID), question)
	if err != nil {
		b.logger.Warn("Tutor request failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return b.sendMessage(tgbotapi.NewMessage(chatID, "🤖 The tutor is unavailable right now. Please try again later."))
	}

	b.appendHistory(chatID,
		ai.Message{Role: "user", Content: question},
		ai.Message{Role: "assistant", Content: answer},
	)
	return b.sendMessage(tgbotapi.NewMessage(chatID, answer))
}

// suggestQuestions answers a bare /ask with ideas about the current deck
func (b *Bot) suggestQuestions(ctx context.Context, chatID int64) error {
	usage := "Usage: /ask <question>"

	learner, err := b.study.Learner(ctx, chatID)
	if err != nil {
		return err
	}
	questions, err := b.tutor.SuggestQuestions(ctx, learner.Deck)
	if err != nil || len(questions) == 0 {
		if err != nil {
			b.logger.Warn("Failed to suggest questions", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return b.sendMessage(tgbotapi.NewMessage(chatID, usage))
	}

	var sb strings.Builder
	sb.WriteString(usage + "\n\nFor example:\n")
	for _, q := range questions {
		sb.WriteString("• " + q + "\n")
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, strings.TrimRight(sb.String(), "\n")))
}

func (b *Bot) handleReset(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "⚠️ This erases your progress on the current deck. Are you sure?")
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{
			{Text: "Yes, reset", CallbackData: callbackResetConfirm},
			{Text: "Cancel", CallbackData: callbackResetCancel},
		},
	})
	return b.sendMessage(msg)
}

func (b *Bot) confirmReset(ctx context.Context, chatID int64) error {
	if err := b.study.Reset(ctx, chatID); err != nil {
		return err
	}
	if err := b.sendMessage(tgbotapi.NewMessage(chatID, "🔄 Progress reset. All cards are due again.")); err != nil {
		return err
	}
	return b.showNextCard(ctx, chatID)
}

func (b *Bot) handleNotify(ctx context.Context, chatID int64, args string) error {
	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	case "":
		learner, err := b.study.Learner(ctx, chatID)
		if err != nil {
			return err
		}
		return b.sendMessage(tgbotapi.NewMessage(chatID,
			fmt.Sprintf("🔔 Reminders are %s. Use /notify on|off to change.", boolToEnabledString(learner.NotificationsEnabled))))
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Usage: /notify on|off"))
	}

	if err := b.study.SetNotifications(ctx, chatID, enabled); err != nil {
		return err
	}
	return b.sendMessage(tgbotapi.NewMessage(chatID, fmt.Sprintf("🔔 Reminders %s.", boolToEnabledString(enabled))))
}

func (b *Bot) handleRemind(ctx context.Context, chatID int64) error {
	if b.reminders == nil {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "Reminders are not running."))
	}

	sent, err := b.reminders.RunManualCheck(ctx, chatID)
	if err != nil {
		return err
	}
	if !sent {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "🎉 Nothing due right now."))
	}
	return nil
}

func boolToEnabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
