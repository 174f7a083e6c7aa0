// Package rules resolves D&D 5e mechanics: ability checks, saving throws,
// attack rolls, and damage.
package rules

import (
	"dnd-dm-bot/dice"
	"dnd-dm-bot/game"
)

// Engine resolves game rules on top of the dice roller.
type Engine struct {
	roller *dice.Roller
}

// NewEngine creates a rules engine using the provided roller.
func NewEngine(roller *dice.Roller) *Engine {
	return &Engine{roller: roller}
}

// CheckResult is the outcome of an ability check or saving throw.
type CheckResult struct {
	Roll             int
	AbilityModifier  int
	ProficiencyBonus int
	Total            int
	DifficultyClass  int
	Success          bool
	IsCritical       bool
	IsFumble         bool
}

// AttackResult is the outcome of an attack roll, including damage when the
// attack hit.
type AttackResult struct {
	AttackRoll int
	TargetAC   int
	Hit        bool
	IsCritical bool
	IsFumble   bool
	Damage     int
}

// ResolveAbilityCheck rolls 1d20 with the given advantage mode and adds the
// ability modifier plus, when proficient, the proficiency bonus. Success is
// total >= dc; a natural 20 or 1 sets the critical or fumble flag but does
// not override the comparison.
func (e *Engine) ResolveAbilityCheck(abilityScore, dc int, proficient bool, proficiencyBonus int, advantage dice.Advantage) (CheckResult, error) {
	modifier := AbilityModifier(abilityScore)
	bonus := 0
	if proficient {
		bonus = proficiencyBonus
	}

	result, err := e.roller.Roll("1d20", advantage)
	if err != nil {
		return CheckResult{}, err
	}

	roll := result.SelectedRoll()
	total := roll + modifier + bonus
	return CheckResult{
		Roll:             roll,
		AbilityModifier:  modifier,
		ProficiencyBonus: bonus,
		Total:            total,
		DifficultyClass:  dc,
		Success:          total >= dc,
		IsCritical:       roll == 20,
		IsFumble:         roll == 1,
	}, nil
}

// ResolveSavingThrow resolves a saving throw for the character's given
// ability. Proficiency in saves is not modeled; saves always roll
// unproficient.
func (e *Engine) ResolveSavingThrow(character game.Character, ability game.AbilityType, dc int, advantage dice.Advantage) (CheckResult, error) {
	score, err := character.AbilityScores.Score(ability)
	if err != nil {
		return CheckResult{}, err
	}
	return e.ResolveAbilityCheck(score, dc, false, ProficiencyBonus(character.Level), advantage)
}

// ResolveAttack rolls 1d20 with the given advantage mode and adds the attack
// bonus. A natural 20 always hits and a natural 1 always misses; otherwise
// the attack hits when the attack roll meets or exceeds the target AC.
func (e *Engine) ResolveAttack(attackBonus, targetAC int, advantage dice.Advantage) (AttackResult, error) {
	result, err := e.roller.Roll("1d20", advantage)
	if err != nil {
		return AttackResult{}, err
	}

	roll := result.SelectedRoll()
	attackRoll := roll + attackBonus
	hit := roll == 20 || (roll != 1 && attackRoll >= targetAC)

	return AttackResult{
		AttackRoll: attackRoll,
		TargetAC:   targetAC,
		Hit:        hit,
		IsCritical: roll == 20,
		IsFumble:   roll == 1,
	}, nil
}

// CalculateDamage rolls the damage formula. A critical hit doubles the dice
// count but not the flat modifier, so 2d6+3 becomes 4d6+3.
func (e *Engine) CalculateDamage(damageFormula string, critical bool) (int, error) {
	parsed, err := dice.ParseFormula(damageFormula)
	if err != nil {
		return 0, err
	}

	if critical {
		parsed = dice.Formula{Count: parsed.Count * 2, Sides: parsed.Sides, Modifier: parsed.Modifier}
	}

	result, err := e.roller.Roll(parsed.String(), dice.Normal)
	if err != nil {
		return 0, err
	}
	return result.Total, nil
}

// AbilityModifier converts a raw ability score into its modifier using
// (score-10)/2. Integer division truncates toward zero for scores below 10.
func AbilityModifier(score int) int {
	return (score - 10) / 2
}

// ProficiencyBonus returns the level-scaled proficiency bonus: +2 at levels
// 1-4, +3 at 5-8, up to +6 at 17-20.
func ProficiencyBonus(level int) int {
	return 2 + (level-1)/4
}
