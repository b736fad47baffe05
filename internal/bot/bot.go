package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/kanadeck/internal/ai"
	"github.com/example/kanadeck/internal/quiz"
	"github.com/example/kanadeck/internal/study"
	"github.com/example/kanadeck/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Study is the learning backend behind the chat
type Study interface {
	Decks() []string
	Learner(ctx context.Context, learnerID int64) (models.Learner, error)
	Open(ctx context.Context, learnerID int64, deck string) error
	Next(ctx context.Context, learnerID int64) (models.Card, bool, error)
	Card(ctx context.Context, learnerID int64, symbol string) (models.Card, bool, error)
	DueCount(ctx context.Context, learnerID int64) (int, error)
	DueCards(ctx context.Context, learnerID int64, limit int) ([]models.Card, error)
	Answer(ctx context.Context, learnerID int64, symbol string, knewIt bool) (models.Card, error)
	Progress(ctx context.Context, learnerID int64) (float64, error)
	Stats(ctx context.Context, learnerID int64) (models.Activity, error)
	Reset(ctx context.Context, learnerID int64) error
	SetNotifications(ctx context.Context, learnerID int64, enabled bool) error
	SetToken(ctx context.Context, learnerID int64, token string) error
	StartQuiz(ctx context.Context, learnerID int64, kind quiz.Kind) (study.QuizStep, error)
	QuizRunning(learnerID int64) bool
	AnswerQuiz(ctx context.Context, learnerID int64, input string) (study.QuizStep, error)
	AnswerQuizOption(ctx context.Context, learnerID int64, position, option int) (study.QuizStep, error)
	StartGeneratedQuiz(ctx context.Context, learnerID int64, label string, questions []quiz.Question) (study.QuizStep, error)
	QuizHistory(ctx context.Context, learnerID int64, limit int) ([]models.QuizResult, error)
	DeckItems(ctx context.Context, learnerID int64, deck string) (string, []models.Item, error)
	StopQuiz(learnerID int64) bool
}

// Gate authenticates chats
type Gate interface {
	Enabled() bool
	Login(password string) (string, error)
	Verify(token string) error
}

// Tutor answers free form questions
type Tutor interface {
	ExplainWithFallback(ctx context.Context, item models.Item) string
	Chat(ctx context.Context, history []ai.Message, question string) (string, error)
	SuggestQuestions(ctx context.Context, topic string) ([]string, error)
	GenerateTest(ctx context.Context, req ai.TestRequest) ([]ai.TestQuestion, error)
}

// Reminders runs an on-demand reminder check
type Reminders interface {
	RunManualCheck(ctx context.Context, learnerID int64) (bool, error)
}

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// Bot represents the Telegram bot application
type Bot struct {
	api       telegramAPI
	config    *BotConfig
	study     Study
	gate      Gate
	tutor     Tutor
	reminders Reminders
	logger    *zap.Logger

	mu      sync.Mutex
	history map[int64][]ai.Message // /ask conversations per chat
	wg      sync.WaitGroup
}

// New creates a bot talking to Telegram with the given token
func New(config *BotConfig, svc Study, gate Gate, tutor Tutor, logger *zap.Logger) (*Bot, error) {
	if config == nil || config.Token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	api, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	api.Debug = config.Debug
	if logger != nil {
		logger.Info("Authorized on account", zap.String("username", api.Self.UserName))
	}

	return newBot(api, config, svc, gate, tutor, logger), nil
}

func newBot(api telegramAPI, config *BotConfig, svc Study, gate Gate, tutor Tutor, logger *zap.Logger) *Bot {
	if config == nil {
		config = DefaultConfig()
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = DefaultConfig().HandlerTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:     api,
		config:  config,
		study:   svc,
		gate:    gate,
		tutor:   tutor,
		logger:  logger,
		history: make(map[int64][]ai.Message),
	}
}

// SetReminders enables the /remind command
func (b *Bot) SetReminders(reminders Reminders) {
	b.reminders = reminders
}

// Start receives updates until ctx is cancelled or Stop is called
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout

	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("Listening for updates")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}(update)
		}
	}
}

// Stop stops polling and waits for in-flight updates up to the context deadline
func (b *Bot) Stop(ctx context.Context) error {
	b.api.StopReceivingUpdates()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Bot stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bot shutdown: %w", ctx.Err())
	}
}

// HandleUpdate dispatches one update from Telegram
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	var err error
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		if update.Message.IsCommand() {
			err = b.HandleCommand(ctx, update.Message)
		} else {
			err = b.handleText(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		chatID := updateChatID(update)
		b.logger.Error("Failed to handle update", zap.Int64("chat_id", chatID), zap.Error(err))
		if chatID != 0 {
			_ = b.sendMessage(tgbotapi.NewMessage(chatID, "❌ Something went wrong. Please try again later."))
		}
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(ctx context.Context, learnerID int64, due int) error {
	noun := "cards"
	if due == 1 {
		noun = "card"
	}

	msg := tgbotapi.NewMessage(learnerID, fmt.Sprintf("⏰ You have %d %s waiting for review.", due, noun))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "▶️ Review now", CallbackData: callbackNext}},
	})
	if err := b.sendMessage(msg); err != nil {
		return err
	}

	b.logger.Info("Reminder sent", zap.Int64("learner_id", learnerID), zap.Int("due", due))
	return nil
}

// sendMessage sends a message and logs failures
func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
		return err
	}
	return nil
}

// answerCallback removes the loading state of an inline button
func (b *Bot) answerCallback(callback *tgbotapi.CallbackQuery, text string, alert bool) {
	answer := tgbotapi.NewCallback(callback.ID, text)
	answer.ShowAlert = alert
	if _, err := b.api.Request(answer); err != nil {
		b.logger.Warn("Failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) appendHistory(chatID int64, messages ...ai.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := append(b.history[chatID], messages...)
	if len(history) > ai.MaxHistory {
		history = history[len(history)-ai.MaxHistory:]
	}
	b.history[chatID] = history
}

func (b *Bot) chatHistory(chatID int64) []ai.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ai.Message, len(b.history[chatID]))
	copy(out, b.history[chatID])
	return out
}

func (b *Bot) clearHistory(chatID int64) {
	b.mu.Lock()
	delete(b.history, chatID)
	b.mu.Unlock()
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}
