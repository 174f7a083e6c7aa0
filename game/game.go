// Package game defines the domain records shared by the rules, combat, and
// narration components, plus the lookup ports they consume.
package game

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals an unknown character or session id.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidAbility signals an ability type outside the six D&D abilities.
var ErrInvalidAbility = errors.New("invalid ability type")

// AbilityType enumerates the six D&D ability scores.
type AbilityType int

const (
	Strength AbilityType = iota
	Dexterity
	Constitution
	Intelligence
	Wisdom
	Charisma
)

func (a AbilityType) String() string {
	switch a {
	case Strength:
		return "Strength"
	case Dexterity:
		return "Dexterity"
	case Constitution:
		return "Constitution"
	case Intelligence:
		return "Intelligence"
	case Wisdom:
		return "Wisdom"
	case Charisma:
		return "Charisma"
	default:
		return "Unknown"
	}
}

// AbilityScores holds the six raw 1-30 ability scores.
type AbilityScores struct {
	Strength     int
	Dexterity    int
	Constitution int
	Intelligence int
	Wisdom       int
	Charisma     int
}

// Score returns the raw score for the given ability.
func (s AbilityScores) Score(ability AbilityType) (int, error) {
	switch ability {
	case Strength:
		return s.Strength, nil
	case Dexterity:
		return s.Dexterity, nil
	case Constitution:
		return s.Constitution, nil
	case Intelligence:
		return s.Intelligence, nil
	case Wisdom:
		return s.Wisdom, nil
	case Charisma:
		return s.Charisma, nil
	default:
		return 0, ErrInvalidAbility
	}
}

// Character is the plain record exchanged with the character store.
type Character struct {
	ID            int64
	Name          string
	Class         string
	Level         int
	HitPoints     int
	MaxHitPoints  int
	ArmorClass    int
	AbilityScores AbilityScores
	Skills        []string
}

// MessageRole tags who authored a session message.
type MessageRole int

const (
	RolePlayer MessageRole = iota
	RoleDungeonMaster
	RoleSystem
)

func (r MessageRole) String() string {
	switch r {
	case RolePlayer:
		return "PLAYER"
	case RoleDungeonMaster:
		return "DM"
	case RoleSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Message is a single entry in a session transcript.
type Message struct {
	Role      MessageRole
	Content   string
	Timestamp time.Time
}

// Session is the plain record exchanged with the session store.
type Session struct {
	ID             int64
	Name           string
	ParticipantIDs []int64
	InCombat       bool
}

// InitiativeEntry is one combatant's place in the initiative order.
type InitiativeEntry struct {
	CharacterID    int64
	CharacterName  string
	InitiativeRoll int
	CurrentHP      int
	MaxHP          int
	Conditions     []string
}

// SessionContext is the read-only projection the narration pipeline consumes:
// a bounded recent-message window (chronological, most recent last), the
// active characters, the current scene, and the world-flags map.
type SessionContext struct {
	SessionID        int64
	RecentMessages   []Message
	ActiveCharacters []Character
	CurrentScene     string
	WorldFlags       map[string]string
}

// WorldFlag returns the value of a world flag and whether it is set.
func (c SessionContext) WorldFlag(key string) (string, bool) {
	value, ok := c.WorldFlags[key]
	return value, ok
}

// NpcContext describes an NPC for dialogue generation.
type NpcContext struct {
	Name              string
	PersonalityTraits string
	Occupation        string
	CurrentMood       string
}

// LocationContext describes a location for scene descriptions.
type LocationContext struct {
	Name            string
	LocationType    string
	Description     string
	VisibleFeatures []string
	PresentNpcs     []string
}

// CharacterStore is the character lookup and persistence port. Lookups for
// unknown ids return an error wrapping ErrNotFound.
type CharacterStore interface {
	GetCharacter(ctx context.Context, id int64) (Character, error)
	UpdateCharacter(ctx context.Context, character Character) error
}

// SessionStore is the session lookup port.
type SessionStore interface {
	GetSession(ctx context.Context, id int64) (Session, error)
}

// MessageStore records and retrieves session transcript messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID int64, message Message) error
	RecentMessages(ctx context.Context, sessionID int64, limit int) ([]Message, error)
}
