package dice

import (
	"errors"
	"testing"
)

// sequenceRoller returns a roller that replays the given die values in order.
func sequenceRoller(t *testing.T, values ...int) *Roller {
	t.Helper()
	i := 0
	return NewWithRollFunc(func(sides int) int {
		if i >= len(values) {
			t.Fatalf("roller exhausted after %d rolls", len(values))
		}
		v := values[i]
		i++
		return v
	})
}

// TestParseFormula verifies parsing of valid notation shapes.
func TestParseFormula(t *testing.T) {
	tests := []struct {
		input string
		want  Formula
	}{
		{"1d20", Formula{Count: 1, Sides: 20}},
		{"2d6+3", Formula{Count: 2, Sides: 6, Modifier: 3}},
		{"4d8-2", Formula{Count: 4, Sides: 8, Modifier: -2}},
		{"1D12", Formula{Count: 1, Sides: 12}},
		{"  3d4+1  ", Formula{Count: 3, Sides: 4, Modifier: 1}},
		{"10d100+50", Formula{Count: 10, Sides: 100, Modifier: 50}},
	}

	for _, tt := range tests {
		got, err := ParseFormula(tt.input)
		if err != nil {
			t.Errorf("ParseFormula(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormula(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

// TestParseFormulaInvalid verifies malformed notation is rejected with
// ErrInvalidFormula.
func TestParseFormulaInvalid(t *testing.T) {
	inputs := []string{
		"",
		"d20",
		"2d",
		"abc",
		"0d6",
		"1d1",
		"1d0",
		"2d6++3",
		"2d6+-3",
		"2x6",
		"1d20 + 5",
	}

	for _, input := range inputs {
		if _, err := ParseFormula(input); !errors.Is(err, ErrInvalidFormula) {
			t.Errorf("ParseFormula(%q) error = %v, want ErrInvalidFormula", input, err)
		}
	}
}

// TestFormulaString verifies canonical notation output.
func TestFormulaString(t *testing.T) {
	tests := []struct {
		formula Formula
		want    string
	}{
		{Formula{Count: 1, Sides: 20}, "1d20"},
		{Formula{Count: 2, Sides: 6, Modifier: 3}, "2d6+3"},
		{Formula{Count: 4, Sides: 8, Modifier: -2}, "4d8-2"},
	}

	for _, tt := range tests {
		if got := tt.formula.String(); got != tt.want {
			t.Errorf("Formula%+v.String() = %q, want %q", tt.formula, got, tt.want)
		}
	}
}

// TestRollRange verifies crypto-backed rolls stay within formula bounds.
func TestRollRange(t *testing.T) {
	roller := New()

	for i := 0; i < 100; i++ {
		result, err := roller.Roll("2d6+3", Normal)
		if err != nil {
			t.Fatalf("Roll failed: %v", err)
		}
		if result.Total < 5 || result.Total > 15 {
			t.Fatalf("2d6+3 total %d out of range [5, 15]", result.Total)
		}
		if len(result.IndividualRolls) != 2 {
			t.Fatalf("expected 2 individual rolls, got %d", len(result.IndividualRolls))
		}
		for _, roll := range result.IndividualRolls {
			if roll < 1 || roll > 6 {
				t.Fatalf("d6 roll %d out of range", roll)
			}
		}
	}
}

// TestRollNormal verifies totals and bookkeeping for a deterministic roll.
func TestRollNormal(t *testing.T) {
	roller := sequenceRoller(t, 4, 5)

	result, err := roller.Roll("2d6+3", Normal)
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if result.Total != 12 {
		t.Errorf("Total = %d, want 12", result.Total)
	}
	if result.Formula != "2d6+3" {
		t.Errorf("Formula = %q, want 2d6+3", result.Formula)
	}
	if result.Modifier != 3 {
		t.Errorf("Modifier = %d, want 3", result.Modifier)
	}
	if result.SelectedRoll() != 9 {
		t.Errorf("SelectedRoll() = %d, want 9", result.SelectedRoll())
	}
	if result.IsCritical || result.IsFumble {
		t.Error("2d6 roll should never flag critical or fumble")
	}
	if result.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

// TestRollAdvantage verifies advantage keeps the higher of two d20s and
// retains both raw rolls.
func TestRollAdvantage(t *testing.T) {
	roller := sequenceRoller(t, 7, 15)

	result, err := roller.Roll("1d20+2", WithAdvantage)
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if result.Total != 17 {
		t.Errorf("Total = %d, want 17 (kept 15 + 2)", result.Total)
	}
	if len(result.IndividualRolls) != 2 {
		t.Fatalf("expected both raw rolls retained, got %v", result.IndividualRolls)
	}
	if result.SelectedRoll() != 15 {
		t.Errorf("SelectedRoll() = %d, want 15", result.SelectedRoll())
	}
}

// TestRollDisadvantage verifies disadvantage keeps the lower of two d20s.
func TestRollDisadvantage(t *testing.T) {
	roller := sequenceRoller(t, 7, 15)

	result, err := roller.Roll("1d20+2", WithDisadvantage)
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if result.Total != 9 {
		t.Errorf("Total = %d, want 9 (kept 7 + 2)", result.Total)
	}
}

// TestRollAdvantageIgnoredForOtherDice verifies advantage only applies to a
// bare d20 and degrades to a normal roll otherwise.
func TestRollAdvantageIgnoredForOtherDice(t *testing.T) {
	roller := sequenceRoller(t, 3, 4)

	result, err := roller.Roll("2d6", WithAdvantage)
	if err != nil {
		t.Fatalf("Roll failed: %v", err)
	}
	if result.Total != 7 {
		t.Errorf("Total = %d, want 7 (normal 2d6 sum)", result.Total)
	}
}

// TestRollCriticalAndFumble verifies the natural 20 and natural 1 flags.
func TestRollCriticalAndFumble(t *testing.T) {
	tests := []struct {
		name      string
		rolls     []int
		advantage Advantage
		critical  bool
		fumble    bool
	}{
		{"natural 20", []int{20}, Normal, true, false},
		{"natural 1", []int{1}, Normal, false, true},
		{"plain roll", []int{10}, Normal, false, false},
		{"advantage selects 20", []int{3, 20}, WithAdvantage, true, false},
		{"disadvantage selects 1", []int{1, 18}, WithDisadvantage, false, true},
		{"advantage avoids 1", []int{1, 18}, WithAdvantage, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roller := sequenceRoller(t, tt.rolls...)
			result, err := roller.Roll("1d20", tt.advantage)
			if err != nil {
				t.Fatalf("Roll failed: %v", err)
			}
			if result.IsCritical != tt.critical {
				t.Errorf("IsCritical = %v, want %v", result.IsCritical, tt.critical)
			}
			if result.IsFumble != tt.fumble {
				t.Errorf("IsFumble = %v, want %v", result.IsFumble, tt.fumble)
			}
		})
	}
}

// TestRollInvalidFormula verifies the roll path propagates parse errors.
func TestRollInvalidFormula(t *testing.T) {
	roller := New()
	if _, err := roller.Roll("not-dice", Normal); !errors.Is(err, ErrInvalidFormula) {
		t.Errorf("Roll error = %v, want ErrInvalidFormula", err)
	}
}
