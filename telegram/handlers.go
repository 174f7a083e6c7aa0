// Package telegram: command and message handlers bridging chat input to the
// game engines.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dnd-dm-bot/combat"
	"dnd-dm-bot/dice"
	"dnd-dm-bot/dm"
	"dnd-dm-bot/game"
	"dnd-dm-bot/rules"
)

// requestTimeout bounds every handler-initiated engine call.
const requestTimeout = 2 * time.Minute

// contextMessageLimit is how much transcript the narration context carries.
const contextMessageLimit = 10

// Handlers wires chat commands to the dice, rules, combat, and narration
// engines. The chat id doubles as the session id.
type Handlers struct {
	bot        *Bot
	streamer   *Streamer
	roller     *dice.Roller
	engine     *rules.Engine
	combat     *combat.Orchestrator
	narrator   *dm.Orchestrator
	characters game.CharacterStore
	sessions   game.SessionStore
	messages   game.MessageStore
}

// NewHandlers creates the handler set.
func NewHandlers(
	bot *Bot,
	roller *dice.Roller,
	engine *rules.Engine,
	combatOrch *combat.Orchestrator,
	narrator *dm.Orchestrator,
	characters game.CharacterStore,
	sessions game.SessionStore,
	messages game.MessageStore,
) *Handlers {
	return &Handlers{
		bot:        bot,
		streamer:   NewStreamer(bot),
		roller:     roller,
		engine:     engine,
		combat:     combatOrch,
		narrator:   narrator,
		characters: characters,
		sessions:   sessions,
		messages:   messages,
	}
}

// Register installs all commands and the free-text handler on the bot.
func (h *Handlers) Register() {
	h.bot.AddCommand("start", h.handleStart)
	h.bot.AddCommand("help", h.handleHelp)
	h.bot.AddCommand("roll", h.handleRoll)
	h.bot.AddCommand("check", h.handleCheck)
	h.bot.AddCommand("save", h.handleSave)
	h.bot.AddCommand("attack", h.handleAttack)
	h.bot.AddCommand("initiative", h.handleInitiative)
	h.bot.AddCommand("damage", h.handleDamage)
	h.bot.AddCommand("heal", h.handleHeal)
	h.bot.SetMessageHandler(h.handleNarration)
}

func (h *Handlers) handleStart(update *tgbotapi.Update, args string) error {
	return h.bot.SendMessage(update.Message.Chat.ID,
		"Welcome, adventurer! I am your AI Dungeon Master.\n\n"+
			"Describe your actions in plain text and I will narrate the story.\n"+
			"Use /help to see the dice and combat commands.")
}

func (h *Handlers) handleHelp(update *tgbotapi.Update, args string) error {
	return h.bot.SendMessage(update.Message.Chat.ID,
		"Commands:\n"+
			"/roll <formula> [adv|dis] - roll dice, e.g. /roll 2d6+3\n"+
			"/check <score> <dc> [adv|dis] - ability check\n"+
			"/save <character id> <ability> <dc> [adv|dis] - saving throw\n"+
			"/attack <attacker id> <defender id> <damage formula> - resolve an attack\n"+
			"/initiative - roll initiative for this session\n"+
			"/damage <character id> <amount> - apply damage\n"+
			"/heal <character id> <amount> - apply healing\n\n"+
			"Anything else you type is treated as your character's action.")
}

// handleRoll rolls a dice formula, e.g. "/roll 1d20+5 adv".
func (h *Handlers) handleRoll(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return h.bot.SendMessage(chatID, "Usage: /roll <formula> [adv|dis], e.g. /roll 2d6+3")
	}

	advantage := parseAdvantage(fields[1:])
	result, err := h.roller.Roll(fields[0], advantage)
	if err != nil {
		if errors.Is(err, dice.ErrInvalidFormula) {
			return h.bot.SendMessage(chatID, fmt.Sprintf("I can't parse %q. Try something like 2d6+3.", fields[0]))
		}
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎲 %s: %d", result.Formula, result.Total)
	if len(result.IndividualRolls) > 1 || result.Modifier != 0 {
		fmt.Fprintf(&b, " (rolls %v", result.IndividualRolls)
		if result.Modifier != 0 {
			fmt.Fprintf(&b, ", modifier %+d", result.Modifier)
		}
		b.WriteString(")")
	}
	if result.IsCritical {
		b.WriteString("\nNatural 20! Critical!")
	}
	if result.IsFumble {
		b.WriteString("\nNatural 1... Fumble!")
	}
	return h.bot.SendMessage(chatID, b.String())
}

// handleCheck resolves an ability check, e.g. "/check 16 15 adv".
func (h *Handlers) handleCheck(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return h.bot.SendMessage(chatID, "Usage: /check <ability score> <dc> [adv|dis]")
	}

	score, err1 := strconv.Atoi(fields[0])
	dc, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return h.bot.SendMessage(chatID, "Ability score and DC must be numbers.")
	}

	result, err := h.engine.ResolveAbilityCheck(score, dc, false, 0, parseAdvantage(fields[2:]))
	if err != nil {
		return err
	}
	return h.bot.SendMessage(chatID, formatCheck(result))
}

// handleSave resolves a saving throw for a stored character, e.g.
// "/save 3 dexterity 15".
func (h *Handlers) handleSave(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return h.bot.SendMessage(chatID, "Usage: /save <character id> <ability> <dc> [adv|dis]")
	}

	characterID, err1 := strconv.ParseInt(fields[0], 10, 64)
	dc, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return h.bot.SendMessage(chatID, "Character id and DC must be numbers.")
	}

	ability, ok := parseAbility(fields[1])
	if !ok {
		return h.bot.SendMessage(chatID, "Unknown ability. Use strength, dexterity, constitution, intelligence, wisdom, or charisma.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	character, err := h.characters.GetCharacter(ctx, characterID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return h.bot.SendMessage(chatID, fmt.Sprintf("No character with id %d.", characterID))
		}
		return err
	}

	result, err := h.engine.ResolveSavingThrow(character, ability, dc, parseAdvantage(fields[3:]))
	if err != nil {
		return err
	}
	return h.bot.SendMessage(chatID, fmt.Sprintf("%s %s save:\n%s", character.Name, ability, formatCheck(result)))
}

// handleAttack resolves an attack between two stored characters, e.g.
// "/attack 1 2 1d8+3".
func (h *Handlers) handleAttack(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return h.bot.SendMessage(chatID, "Usage: /attack <attacker id> <defender id> <damage formula>")
	}

	attackerID, err1 := strconv.ParseInt(fields[0], 10, 64)
	defenderID, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		return h.bot.SendMessage(chatID, "Character ids must be numbers.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := h.combat.ResolveAttack(ctx, attackerID, defenderID, fields[2])
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return h.bot.SendMessage(chatID, "One of those characters doesn't exist.")
		}
		if errors.Is(err, dice.ErrInvalidFormula) {
			return h.bot.SendMessage(chatID, fmt.Sprintf("Bad damage formula %q. Try something like 1d8+3.", fields[2]))
		}
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚔️ Attack roll %d vs AC %d: ", result.AttackRoll, result.TargetAC)
	switch {
	case result.IsCritical:
		fmt.Fprintf(&b, "CRITICAL HIT for %d damage!", result.Damage)
	case result.Hit:
		fmt.Fprintf(&b, "hit for %d damage.", result.Damage)
	case result.IsFumble:
		b.WriteString("natural 1, a fumbling miss!")
	default:
		b.WriteString("miss.")
	}
	return h.bot.SendMessage(chatID, b.String())
}

// handleInitiative rolls initiative for the chat's session.
func (h *Handlers) handleInitiative(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	entries, err := h.combat.RollInitiative(ctx, chatID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return h.bot.SendMessage(chatID, "No session found for this chat. Start a narration first.")
		}
		return err
	}
	if len(entries) == 0 {
		return h.bot.SendMessage(chatID, "No characters in this session to roll initiative for.")
	}

	var b strings.Builder
	b.WriteString("Initiative order:\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s: %d (HP %d/%d)\n", i+1, entry.CharacterName, entry.InitiativeRoll, entry.CurrentHP, entry.MaxHP)
	}
	return h.bot.SendMessage(chatID, b.String())
}

// handleDamage applies damage to a character, e.g. "/damage 3 12".
func (h *Handlers) handleDamage(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	characterID, amount, err := parseIDAmount(args)
	if err != nil {
		return h.bot.SendMessage(chatID, "Usage: /damage <character id> <amount>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	conscious, err := h.combat.ApplyDamage(ctx, characterID, amount)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return h.bot.SendMessage(chatID, fmt.Sprintf("No character with id %d.", characterID))
		}
		return err
	}

	if !conscious {
		return h.bot.SendMessage(chatID, fmt.Sprintf("Character %d takes %d damage and falls unconscious!", characterID, amount))
	}
	return h.bot.SendMessage(chatID, fmt.Sprintf("Character %d takes %d damage.", characterID, amount))
}

// handleHeal applies healing to a character, e.g. "/heal 3 8".
func (h *Handlers) handleHeal(update *tgbotapi.Update, args string) error {
	chatID := update.Message.Chat.ID
	characterID, amount, err := parseIDAmount(args)
	if err != nil {
		return h.bot.SendMessage(chatID, "Usage: /heal <character id> <amount>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	hp, err := h.combat.ApplyHealing(ctx, characterID, amount)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return h.bot.SendMessage(chatID, fmt.Sprintf("No character with id %d.", characterID))
		}
		return err
	}
	return h.bot.SendMessage(chatID, fmt.Sprintf("Character %d heals %d and is now at %d HP.", characterID, amount, hp))
}

// handleNarration treats free text as a player action: record it, stream the
// DM's narration back, and record the narration.
func (h *Handlers) handleNarration(update *tgbotapi.Update) error {
	chatID := update.Message.Chat.ID
	action := update.Message.Text

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	sc := h.buildSessionContext(ctx, chatID)

	if err := h.messages.AppendMessage(ctx, chatID, game.Message{
		Role:      game.RolePlayer,
		Content:   action,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("[TELEGRAM] Failed to record player message: %v", err)
	}

	h.bot.SendTyping(chatID)

	stream, err := h.narrator.StreamResponse(ctx, sc, action)
	if err != nil {
		log.Printf("[TELEGRAM] Narration failed for chat %d: %v", chatID, err)
		return h.bot.SendMessage(chatID, "The DM pauses, lost in thought. Try again in a moment.")
	}

	narration, err := h.streamer.Relay(ctx, chatID, stream)
	if err != nil {
		return err
	}

	if narration != "" {
		if err := h.messages.AppendMessage(ctx, chatID, game.Message{
			Role:      game.RoleDungeonMaster,
			Content:   narration,
			Timestamp: time.Now(),
		}); err != nil {
			log.Printf("[TELEGRAM] Failed to record DM message: %v", err)
		}
	}
	return nil
}

// buildSessionContext assembles the narration context for a chat. Missing
// session or character records degrade gracefully to an empty context.
func (h *Handlers) buildSessionContext(ctx context.Context, chatID int64) game.SessionContext {
	sc := game.SessionContext{SessionID: chatID}

	if session, err := h.sessions.GetSession(ctx, chatID); err == nil {
		sc.WorldFlags = map[string]string{"InCombat": strconv.FormatBool(session.InCombat)}
		for _, characterID := range session.ParticipantIDs {
			character, err := h.characters.GetCharacter(ctx, characterID)
			if err != nil {
				continue
			}
			sc.ActiveCharacters = append(sc.ActiveCharacters, character)
		}
	}

	if messages, err := h.messages.RecentMessages(ctx, chatID, contextMessageLimit); err == nil {
		sc.RecentMessages = messages
	}

	return sc
}

func parseAdvantage(fields []string) dice.Advantage {
	for _, field := range fields {
		switch strings.ToLower(field) {
		case "adv", "advantage":
			return dice.WithAdvantage
		case "dis", "disadvantage":
			return dice.WithDisadvantage
		}
	}
	return dice.Normal
}

func parseAbility(name string) (game.AbilityType, bool) {
	switch strings.ToLower(name) {
	case "strength", "str":
		return game.Strength, true
	case "dexterity", "dex":
		return game.Dexterity, true
	case "constitution", "con":
		return game.Constitution, true
	case "intelligence", "int":
		return game.Intelligence, true
	case "wisdom", "wis":
		return game.Wisdom, true
	case "charisma", "cha":
		return game.Charisma, true
	default:
		return 0, false
	}
}

func parseIDAmount(args string) (int64, int, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("expected <character id> <amount>")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	amount, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return id, amount, nil
}

func formatCheck(result rules.CheckResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎲 d20: %d", result.Roll)
	if result.AbilityModifier != 0 {
		fmt.Fprintf(&b, " %+d ability", result.AbilityModifier)
	}
	if result.ProficiencyBonus != 0 {
		fmt.Fprintf(&b, " %+d proficiency", result.ProficiencyBonus)
	}
	fmt.Fprintf(&b, " = %d vs DC %d: ", result.Total, result.DifficultyClass)
	if result.Success {
		b.WriteString("success!")
	} else {
		b.WriteString("failure.")
	}
	if result.IsCritical {
		b.WriteString(" (natural 20)")
	}
	if result.IsFumble {
		b.WriteString(" (natural 1)")
	}
	return b.String()
}
