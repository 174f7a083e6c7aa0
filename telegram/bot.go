// Package telegram provides the Telegram front end for the D&D DM bot.
package telegram

import (
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// CommandHandler handles a bot command with its argument string.
type CommandHandler func(update *tgbotapi.Update, args string) error

// Middleware processes updates before handlers. Returning false stops the
// update from reaching a handler.
type Middleware func(update *tgbotapi.Update) (bool, error)

// MessageHandler handles free-text messages that are not commands.
type MessageHandler func(update *tgbotapi.Update) error

// Bot wraps the Telegram Bot API with command routing and middleware.
type Bot struct {
	api        *tgbotapi.BotAPI
	handlers   map[string]CommandHandler
	middleware []Middleware
	onMessage  MessageHandler
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewBot creates a bot instance authorized with the given token.
func NewBot(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("[TELEGRAM] Bot authorized as @%s", api.Self.UserName)

	return &Bot{
		api:      api,
		handlers: make(map[string]CommandHandler),
	}, nil
}

// AddCommand registers a command handler.
func (b *Bot) AddCommand(name string, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
	log.Printf("[TELEGRAM] Registered command: /%s", name)
}

// AddMiddleware appends middleware to the update chain.
func (b *Bot) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// SetMessageHandler installs the handler for non-command messages.
func (b *Bot) SetMessageHandler(handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMessage = handler
}

// Start begins long polling and dispatches updates until Stop is called.
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	log.Println("[TELEGRAM] Bot started polling for updates")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for update := range updates {
			update := update
			b.handleUpdate(&update)
		}
	}()
}

// Stop halts polling and waits for in-flight updates to finish.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
	b.wg.Wait()
	log.Println("[TELEGRAM] Bot stopped")
}

func (b *Bot) handleUpdate(update *tgbotapi.Update) {
	b.mu.RLock()
	middleware := b.middleware
	onMessage := b.onMessage
	b.mu.RUnlock()

	for _, mw := range middleware {
		cont, err := mw(update)
		if err != nil {
			log.Printf("[TELEGRAM] Middleware error: %v", err)
			return
		}
		if !cont {
			return
		}
	}

	if update.Message == nil || update.Message.Text == "" {
		return
	}

	if update.Message.IsCommand() {
		b.handleCommand(update)
		return
	}

	if onMessage != nil {
		if err := onMessage(update); err != nil {
			log.Printf("[TELEGRAM] Message handler error: %v", err)
		}
	}
}

func (b *Bot) handleCommand(update *tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()

	b.mu.RLock()
	handler, exists := b.handlers[command]
	b.mu.RUnlock()

	if !exists {
		log.Printf("[TELEGRAM] Unknown command: %s", command)
		return
	}

	if err := handler(update, args); err != nil {
		log.Printf("[TELEGRAM] Handler error for /%s: %v", command, err)
	}
}

// SendMessage sends a plain text message to a chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}

// SendReply sends a text message replying to a specific message.
func (b *Bot) SendReply(messageID int, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = messageID
	_, err := b.api.Send(msg)
	return err
}

// SendTyping shows the typing indicator in a chat. Failures are ignored
// since the indicator is cosmetic.
func (b *Bot) SendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		log.Printf("[TELEGRAM] Failed to send typing action: %v", err)
	}
}
