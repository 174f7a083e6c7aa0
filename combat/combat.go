// Package combat orchestrates initiative, attack resolution, and hit point
// changes against the character and session stores.
package combat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"dnd-dm-bot/dice"
	"dnd-dm-bot/game"
	"dnd-dm-bot/rules"
)

// Orchestrator resolves combat actions. It holds no state of its own; every
// call reads the stores and hands results back to the caller.
type Orchestrator struct {
	characters game.CharacterStore
	sessions   game.SessionStore
	roller     *dice.Roller
	engine     *rules.Engine
}

// NewOrchestrator creates a combat orchestrator.
func NewOrchestrator(characters game.CharacterStore, sessions game.SessionStore, roller *dice.Roller, engine *rules.Engine) *Orchestrator {
	return &Orchestrator{
		characters: characters,
		sessions:   sessions,
		roller:     roller,
		engine:     engine,
	}
}

// RollInitiative rolls 1d20 plus the Dexterity modifier for every session
// participant and returns the order sorted highest first. Ties keep the
// participant enumeration order. Participants whose character record is
// missing are skipped.
func (o *Orchestrator) RollInitiative(ctx context.Context, sessionID int64) ([]game.InitiativeEntry, error) {
	session, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", sessionID, err)
	}

	entries := make([]game.InitiativeEntry, 0, len(session.ParticipantIDs))
	for _, characterID := range session.ParticipantIDs {
		character, err := o.characters.GetCharacter(ctx, characterID)
		if err != nil {
			if errors.Is(err, game.ErrNotFound) {
				continue
			}
			return nil, err
		}

		roll, err := o.roller.Roll("1d20", dice.Normal)
		if err != nil {
			return nil, err
		}

		entries = append(entries, game.InitiativeEntry{
			CharacterID:    character.ID,
			CharacterName:  character.Name,
			InitiativeRoll: roll.SelectedRoll() + rules.AbilityModifier(character.AbilityScores.Dexterity),
			CurrentHP:      character.HitPoints,
			MaxHP:          character.MaxHitPoints,
			// TODO: populate Conditions once a conditions store exists.
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].InitiativeRoll > entries[j].InitiativeRoll
	})

	log.Printf("[COMBAT] Initiative rolled for %d characters in session %d", len(entries), sessionID)
	return entries, nil
}

// ResolveAttack resolves an attack between two characters. The attack bonus
// is the better of the attacker's Strength and Dexterity modifiers plus the
// proficiency bonus. Damage is rolled only when the attack hits.
func (o *Orchestrator) ResolveAttack(ctx context.Context, attackerID, defenderID int64, damageFormula string) (rules.AttackResult, error) {
	attacker, err := o.characters.GetCharacter(ctx, attackerID)
	if err != nil {
		return rules.AttackResult{}, fmt.Errorf("attacker %d: %w", attackerID, err)
	}
	defender, err := o.characters.GetCharacter(ctx, defenderID)
	if err != nil {
		return rules.AttackResult{}, fmt.Errorf("defender %d: %w", defenderID, err)
	}

	strengthMod := rules.AbilityModifier(attacker.AbilityScores.Strength)
	dexterityMod := rules.AbilityModifier(attacker.AbilityScores.Dexterity)
	attackBonus := strengthMod
	if dexterityMod > attackBonus {
		attackBonus = dexterityMod
	}
	attackBonus += rules.ProficiencyBonus(attacker.Level)

	result, err := o.engine.ResolveAttack(attackBonus, defender.ArmorClass, dice.Normal)
	if err != nil {
		return rules.AttackResult{}, err
	}

	if result.Hit {
		damage, err := o.engine.CalculateDamage(damageFormula, result.IsCritical)
		if err != nil {
			return rules.AttackResult{}, err
		}
		result.Damage = damage
		log.Printf("[COMBAT] %s hits %s for %d damage (critical: %v)", attacker.Name, defender.Name, damage, result.IsCritical)
	} else {
		log.Printf("[COMBAT] %s misses %s", attacker.Name, defender.Name)
	}

	return result, nil
}

// ApplyDamage reduces a character's hit points, never below zero, persists
// the change, and reports whether the character is still conscious.
func (o *Orchestrator) ApplyDamage(ctx context.Context, characterID int64, amount int) (bool, error) {
	character, err := o.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return false, fmt.Errorf("character %d: %w", characterID, err)
	}

	character.HitPoints -= amount
	if character.HitPoints < 0 {
		character.HitPoints = 0
	}

	if err := o.characters.UpdateCharacter(ctx, character); err != nil {
		return false, err
	}

	conscious := character.HitPoints > 0
	log.Printf("[COMBAT] %s now has %d/%d HP (conscious: %v)", character.Name, character.HitPoints, character.MaxHitPoints, conscious)
	return conscious, nil
}

// ApplyHealing raises a character's hit points, never above the maximum,
// persists the change, and returns the new hit point value.
func (o *Orchestrator) ApplyHealing(ctx context.Context, characterID int64, amount int) (int, error) {
	character, err := o.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return 0, fmt.Errorf("character %d: %w", characterID, err)
	}

	character.HitPoints += amount
	if character.HitPoints > character.MaxHitPoints {
		character.HitPoints = character.MaxHitPoints
	}

	if err := o.characters.UpdateCharacter(ctx, character); err != nil {
		return 0, err
	}

	log.Printf("[COMBAT] %s now has %d/%d HP", character.Name, character.HitPoints, character.MaxHitPoints)
	return character.HitPoints, nil
}
