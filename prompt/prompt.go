// Package prompt assembles the system and user prompts consumed by the AI
// Dungeon Master. Every function is a pure transformation of its inputs.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"dnd-dm-bot/game"
)

// SessionMode selects solo or multiplayer narrative guidance.
type SessionMode int

const (
	SoloMode SessionMode = iota
	MultiplayerMode
)

// recentMessageWindow bounds the transcript tail included in the context
// block.
const recentMessageWindow = 5

const baseSystemPrompt = `You are an expert Dungeon Master for a Dungeons & Dragons 5th Edition game.
You create immersive, engaging narratives while following D&D rules accurately.

Guidelines:
- Describe scenes vividly using all five senses
- Give players meaningful choices and consequences
- Never control player characters' actions or thoughts
- Maintain consistency with established facts
- Use appropriate D&D terminology
- Keep responses concise (2-3 paragraphs maximum)
- End with a clear question or prompt for player action`

// SystemPrompt returns the base Dungeon Master system prompt with guidance
// for the session mode appended.
func SystemPrompt(mode SessionMode) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")

	if mode == SoloMode {
		b.WriteString("This is a solo adventure. You should:\n")
		b.WriteString("- Focus deeply on the single player character's experience\n")
		b.WriteString("- Provide more detailed descriptions and internal moments\n")
		b.WriteString("- Adjust difficulty to maintain challenge without overwhelming\n")
	} else {
		b.WriteString("This is a multiplayer adventure. You should:\n")
		b.WriteString("- Give each player character opportunities to shine\n")
		b.WriteString("- Encourage party cooperation and teamwork\n")
		b.WriteString("- Balance attention across all characters\n")
		b.WriteString("- Create challenges that require different skills\n")
	}

	return b.String()
}

// CombatPrompt returns the combat-scenario supplement listing the active
// characters and the combat location when present.
func CombatPrompt(ctx game.SessionContext) string {
	var b strings.Builder
	b.WriteString("COMBAT SCENARIO\n")
	b.WriteString("The party is currently in combat. Narrate the action dramatically.\n\n")

	if len(ctx.ActiveCharacters) > 0 {
		b.WriteString("Active Characters:\n")
		for _, character := range ctx.ActiveCharacters {
			fmt.Fprintf(&b, "- %s (Level %d %s)\n", character.Name, character.Level, character.Class)
			fmt.Fprintf(&b, "  HP: %d/%d, AC: %d\n", character.HitPoints, character.MaxHitPoints, character.ArmorClass)
		}
		b.WriteString("\n")
	}

	if ctx.CurrentScene != "" {
		fmt.Fprintf(&b, "Combat Location: %s\n\n", ctx.CurrentScene)
	}

	b.WriteString("Describe combat outcomes, environmental effects, and tactical options.\n")
	b.WriteString("Keep the action moving and exciting!\n")
	return b.String()
}

// ExplorationPrompt returns the exploration-scenario supplement.
func ExplorationPrompt(ctx game.SessionContext) string {
	var b strings.Builder
	b.WriteString("EXPLORATION SCENARIO\n")
	b.WriteString("The party is exploring and discovering their surroundings.\n\n")

	if ctx.CurrentScene != "" {
		fmt.Fprintf(&b, "Current Location: %s\n\n", ctx.CurrentScene)
	}

	if len(ctx.ActiveCharacters) > 0 {
		b.WriteString("Party Members:\n")
		for _, character := range ctx.ActiveCharacters {
			fmt.Fprintf(&b, "- %s (Level %d %s)\n", character.Name, character.Level, character.Class)
		}
		b.WriteString("\n")
	}

	b.WriteString("Describe the environment in vivid detail.\n")
	b.WriteString("Include interesting points of interaction and potential discoveries.\n")
	b.WriteString("Hint at dangers or opportunities without revealing everything.\n")
	return b.String()
}

// NpcPrompt returns the roleplay prompt for NPC dialogue.
func NpcPrompt(npc game.NpcContext, playerMessage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are roleplaying as %s, an NPC in a D&D game.\n\n", npc.Name)
	fmt.Fprintf(&b, "Personality: %s\n", npc.PersonalityTraits)

	if npc.Occupation != "" {
		fmt.Fprintf(&b, "Occupation: %s\n", npc.Occupation)
	}
	if npc.CurrentMood != "" {
		fmt.Fprintf(&b, "Current Mood: %s\n", npc.CurrentMood)
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Stay in character at all times\n")
	b.WriteString("- Speak with a distinct voice matching your personality\n")
	b.WriteString("- React realistically to what the player says\n")
	b.WriteString("- Keep responses conversational (1-2 paragraphs)\n")
	b.WriteString("- Don't break the fourth wall or reference game mechanics\n\n")
	fmt.Fprintf(&b, "The player says: %q\n\n", playerMessage)
	b.WriteString("Respond as this NPC:\n")
	return b.String()
}

// ScenePrompt returns the prompt for describing a location.
func ScenePrompt(location game.LocationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe the location: %s\n", location.Name)
	fmt.Fprintf(&b, "Type: %s\n\n", location.LocationType)

	if location.Description != "" {
		fmt.Fprintf(&b, "Background: %s\n\n", location.Description)
	}

	if len(location.VisibleFeatures) > 0 {
		b.WriteString("Notable Features:\n")
		for _, feature := range location.VisibleFeatures {
			fmt.Fprintf(&b, "- %s\n", feature)
		}
		b.WriteString("\n")
	}

	if len(location.PresentNpcs) > 0 {
		b.WriteString("NPCs Present:\n")
		for _, name := range location.PresentNpcs {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	b.WriteString("Guidelines:\n")
	b.WriteString("- Create a vivid, immersive description (2-3 paragraphs)\n")
	b.WriteString("- Engage multiple senses (sight, sound, smell, touch)\n")
	b.WriteString("- Establish atmosphere and mood\n")
	b.WriteString("- Highlight interesting details for player exploration\n")
	b.WriteString("- Don't dictate player actions or feelings\n")
	return b.String()
}

// FormatContext renders the running session context as a single block: the
// scene, the party roster, the world flags, and a tail window of the most
// recent messages tagged by speaker role.
func FormatContext(ctx game.SessionContext) string {
	var b strings.Builder
	b.WriteString("=== GAME CONTEXT ===\n\n")

	if ctx.CurrentScene != "" {
		fmt.Fprintf(&b, "Current Scene: %s\n\n", ctx.CurrentScene)
	}

	if len(ctx.ActiveCharacters) > 0 {
		b.WriteString("Party:\n")
		for _, character := range ctx.ActiveCharacters {
			fmt.Fprintf(&b, "- %s: Level %d %s\n", character.Name, character.Level, character.Class)
			fmt.Fprintf(&b, "  HP: %d/%d, AC: %d\n", character.HitPoints, character.MaxHitPoints, character.ArmorClass)
			if len(character.Skills) > 0 {
				fmt.Fprintf(&b, "  Proficient Skills: %s\n", strings.Join(character.Skills, ", "))
			}
		}
		b.WriteString("\n")
	}

	if len(ctx.WorldFlags) > 0 {
		b.WriteString("Important Story Flags:\n")
		for _, key := range sortedKeys(ctx.WorldFlags) {
			fmt.Fprintf(&b, "- %s: %s\n", key, ctx.WorldFlags[key])
		}
		b.WriteString("\n")
	}

	if len(ctx.RecentMessages) > 0 {
		b.WriteString("Recent Events:\n")
		messages := ctx.RecentMessages
		if len(messages) > recentMessageWindow {
			messages = messages[len(messages)-recentMessageWindow:]
		}
		for _, message := range messages {
			fmt.Fprintf(&b, "[%s] %s\n", message.Role, message.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("=== END CONTEXT ===\n")
	return b.String()
}

// sortedKeys keeps the flag listing deterministic.
func sortedKeys(flags map[string]string) []string {
	keys := make([]string, 0, len(flags))
	for key := range flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
