package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"dnd-dm-bot/combat"
	"dnd-dm-bot/config"
	"dnd-dm-bot/dice"
	"dnd-dm-bot/dm"
	"dnd-dm-bot/game"
	"dnd-dm-bot/llm"
	"dnd-dm-bot/moderation"
	"dnd-dm-bot/rules"
	"dnd-dm-bot/storage"
	"dnd-dm-bot/telegram"
)

func main() {
	log.Println("D&D Dungeon Master Bot")
	log.Println("Starting bot...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var characters game.CharacterStore
	var sessions game.SessionStore
	var messages game.MessageStore

	if cfg.DatabaseURL != "" {
		store, err := storage.OpenSQL("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
		log.Println("Connected to Postgres")
		characters, sessions, messages = store, store, store
	} else {
		store := storage.NewMemory()
		log.Println("No DATABASE_URL - using in-memory storage")
		characters, sessions, messages = store, store, store
	}

	provider, err := llm.NewOpenAIProvider(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}
	defer provider.Close()

	roller := dice.New()
	engine := rules.NewEngine(roller)
	combatOrch := combat.NewOrchestrator(characters, sessions, roller, engine)
	moderator := moderation.New(moderation.Settings{
		Enabled:         cfg.Moderation.Enabled,
		BlockNSFW:       cfg.Moderation.BlockNSFW,
		BlockHarassment: cfg.Moderation.BlockHarassment,
		MaxInputLength:  cfg.Moderation.MaxInputLength,
	})
	narrator := dm.NewOrchestrator(provider, moderator)

	bot, err := telegram.NewBot(cfg.TelegramToken)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	bot.AddMiddleware(telegram.LoggingMiddleware)
	bot.AddMiddleware(telegram.RateLimitMiddleware(telegram.NewRateLimiter(1 * time.Second)))

	handlers := telegram.NewHandlers(bot, roller, engine, combatOrch, narrator, characters, sessions, messages)
	handlers.Register()

	bot.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	bot.Stop()
}
