// Package dice implements dice-formula parsing and rolling for the DM engine.
package dice

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Advantage selects how a d20 roll is resolved.
type Advantage int

const (
	Normal Advantage = iota
	WithAdvantage
	WithDisadvantage
)

// ErrInvalidFormula indicates a dice formula string could not be parsed.
var ErrInvalidFormula = errors.New("invalid dice formula")

var formulaRegexp = regexp.MustCompile(`^(\d+)[dD](\d+)([+-]\d+)?$`)

// Formula is a parsed dice formula such as 2d6+3.
type Formula struct {
	Count    int
	Sides    int
	Modifier int
}

// ParseFormula parses a dice notation string of the shape NdM, NdM+K, or
// NdM-K. Whitespace is trimmed and the d is case-insensitive. N must be at
// least 1 and M at least 2.
func ParseFormula(text string) (Formula, error) {
	match := formulaRegexp.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, text)
	}

	count, err := strconv.Atoi(match[1])
	if err != nil || count < 1 {
		return Formula{}, fmt.Errorf("%w: count must be at least 1 in %q", ErrInvalidFormula, text)
	}

	sides, err := strconv.Atoi(match[2])
	if err != nil || sides < 2 {
		return Formula{}, fmt.Errorf("%w: sides must be at least 2 in %q", ErrInvalidFormula, text)
	}

	modifier := 0
	if match[3] != "" {
		modifier, err = strconv.Atoi(match[3])
		if err != nil {
			return Formula{}, fmt.Errorf("%w: bad modifier in %q", ErrInvalidFormula, text)
		}
	}

	return Formula{Count: count, Sides: sides, Modifier: modifier}, nil
}

// String returns the canonical NdM+K notation for the formula.
func (f Formula) String() string {
	switch {
	case f.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", f.Count, f.Sides, f.Modifier)
	case f.Modifier < 0:
		return fmt.Sprintf("%dd%d%d", f.Count, f.Sides, f.Modifier)
	default:
		return fmt.Sprintf("%dd%d", f.Count, f.Sides)
	}
}

// RollResult captures a single roll of a formula.
//
// In advantage or disadvantage mode IndividualRolls holds both raw d20
// results and Total is the selected roll plus the modifier; otherwise Total
// is the sum of all rolls plus the modifier.
type RollResult struct {
	Formula         string
	IndividualRolls []int
	Modifier        int
	Total           int
	IsCritical      bool
	IsFumble        bool
	Timestamp       time.Time
}

// SelectedRoll returns the die result the total was built from: the sum of
// all dice for a normal roll, or the kept die under advantage/disadvantage.
func (r RollResult) SelectedRoll() int {
	return r.Total - r.Modifier
}

// Roller rolls dice using a cryptographically secure random source, so
// outcomes cannot be predicted or replayed from prior observations.
type Roller struct {
	roll func(sides int) int
}

// New creates a roller backed by crypto/rand.
func New() *Roller {
	return &Roller{roll: cryptoRoll}
}

// NewWithRollFunc creates a roller backed by a caller-supplied die function.
// This is useful when tests need deterministic rolls.
func NewWithRollFunc(roll func(sides int) int) *Roller {
	return &Roller{roll: roll}
}

// Roll parses the formula and rolls it.
//
// Advantage and disadvantage only apply to a bare 1d20 (with optional
// modifier): two d20s are rolled and the max or min is kept, with both raw
// rolls retained in the result. Any other die shape degrades to a normal
// roll. IsCritical and IsFumble are set only when a single d20 was rolled
// and the selected die shows 20 or 1.
func (r *Roller) Roll(formula string, advantage Advantage) (RollResult, error) {
	parsed, err := ParseFormula(formula)
	if err != nil {
		return RollResult{}, err
	}

	if advantage != Normal && parsed.Count == 1 && parsed.Sides == 20 {
		return r.rollAdvantage(parsed, advantage), nil
	}

	rolls := make([]int, parsed.Count)
	sum := 0
	for i := range rolls {
		value := r.roll(parsed.Sides)
		rolls[i] = value
		sum += value
	}

	singleD20 := parsed.Count == 1 && parsed.Sides == 20
	return RollResult{
		Formula:         parsed.String(),
		IndividualRolls: rolls,
		Modifier:        parsed.Modifier,
		Total:           sum + parsed.Modifier,
		IsCritical:      singleD20 && rolls[0] == 20,
		IsFumble:        singleD20 && rolls[0] == 1,
		Timestamp:       time.Now(),
	}, nil
}

// rollAdvantage rolls two d20s and keeps the max or min.
func (r *Roller) rollAdvantage(formula Formula, advantage Advantage) RollResult {
	roll1 := r.roll(20)
	roll2 := r.roll(20)

	selected := roll1
	if advantage == WithAdvantage && roll2 > selected {
		selected = roll2
	}
	if advantage == WithDisadvantage && roll2 < selected {
		selected = roll2
	}

	return RollResult{
		Formula:         formula.String(),
		IndividualRolls: []int{roll1, roll2},
		Modifier:        formula.Modifier,
		Total:           selected + formula.Modifier,
		IsCritical:      selected == 20,
		IsFumble:        selected == 1,
		Timestamp:       time.Now(),
	}
}

// cryptoRoll draws a uniform integer in [1, sides] from crypto/rand.
func cryptoRoll(sides int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		// crypto/rand failing means the platform random source is broken.
		panic(fmt.Sprintf("dice: secure random source unavailable: %v", err))
	}
	return int(n.Int64()) + 1
}
