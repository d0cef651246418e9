package utility

import (
	"math"
	"math/rand"
	"testing"
)

const eps = 1e-9

func constant(v float64) ScoreFunc[NoTarget] {
	return func(NoTarget) float64 { return v }
}

func newTestAction(t *testing.T, cs ...*Consideration[NoTarget]) *Action[NoTarget, string] {
	t.Helper()
	d := NewGlobal[string]()
	a, err := d.AddAction("test", nil, nil, nil, cs...)
	if err != nil {
		t.Fatalf("AddAction: %v", err)
	}
	return a
}

func TestCalculate_NoConsiderations(t *testing.T) {
	ranges := [][2]float64{{0, 1}, {0.2, 0.8}, {-1, 3}}
	for _, r := range ranges {
		a := newTestAction(t).ScoreRange(r[0], r[1])
		a.Calculate(NoTarget{}, 0.1)
		if a.Score() != r[0] {
			t.Errorf("range %v: score = %f, want %f", r, a.Score(), r[0])
		}
	}
}

func TestCalculate_SingleConsiderationIgnoresMethod(t *testing.T) {
	methods := []Method{MethodStandard, MethodMultiply, MethodMax, MethodMin, MethodAdd, MethodAverage}
	for _, m := range methods {
		t.Run(m.String(), func(t *testing.T) {
			a := newTestAction(t, ConsiderWith("c", constant(0.4), m)).ScoreRange(0.5, 1.5)
			a.Calculate(NoTarget{}, 0)
			want := 0.5 + 1.0*0.4
			if math.Abs(a.Score()-want) > eps {
				t.Errorf("score = %f, want %f", a.Score(), want)
			}
		})
	}
}

func TestCalculate_FoldTable(t *testing.T) {
	tests := []struct {
		name     string
		standard Method
		cs       []*Consideration[NoTarget]
		want     float64
	}{
		{
			name:     "multiply default",
			standard: MethodMultiply,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.5)), Consider("b", constant(0.5))},
			want:     0.25,
		},
		{
			name:     "max",
			standard: MethodMax,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.2)), Consider("b", constant(0.7)), Consider("c", constant(0.4))},
			want:     0.7,
		},
		{
			name:     "min",
			standard: MethodMin,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.2)), Consider("b", constant(0.7))},
			want:     0.2,
		},
		{
			name:     "add",
			standard: MethodAdd,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.2)), Consider("b", constant(0.3))},
			want:     0.5,
		},
		{
			name:     "average",
			standard: MethodAverage,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.3)), Consider("b", constant(0.6)), Consider("c", constant(0.9))},
			want:     0.6,
		},
		{
			name:     "max seeds from first even when negative",
			standard: MethodMax,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(-0.5)), Consider("b", constant(-0.2))},
			want:     -0.2,
		},
		{
			name:     "own tag overrides standard",
			standard: MethodMultiply,
			cs: []*Consideration[NoTarget]{
				Consider("a", constant(0.5)),
				ConsiderWith("b", constant(0.9), MethodMax),
			},
			want: 0.9,
		},
		{
			name:     "standard of standard folds as multiply",
			standard: MethodStandard,
			cs:       []*Consideration[NoTarget]{Consider("a", constant(0.5)), Consider("b", constant(0.4))},
			want:     0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAction(t, tt.cs...).Standard(tt.standard)
			a.Calculate(NoTarget{}, 0)
			if math.Abs(a.Score()-tt.want) > eps {
				t.Errorf("score = %f, want %f", a.Score(), tt.want)
			}
		})
	}
}

func TestCalculate_MultiplyVeto(t *testing.T) {
	// A zero under multiply zeroes the accumulator; a later Add can lift it
	// again, a later Multiply cannot.
	vetoed := newTestAction(t,
		Consider("a", constant(0.8)),
		Consider("zero", constant(0)),
		ConsiderWith("b", constant(0.9), MethodMax),
	)
	vetoed.Calculate(NoTarget{}, 0)
	if math.Abs(vetoed.Score()-0.9) > eps {
		t.Errorf("max after veto: score = %f, want 0.9", vetoed.Score())
	}

	stays := newTestAction(t,
		ConsiderWith("a", constant(0.8), MethodAdd),
		Consider("zero", constant(0)),
		Consider("b", constant(0.9)),
	)
	stays.Calculate(NoTarget{}, 0)
	if stays.Score() != 0 {
		t.Errorf("multiply veto: score = %f, want 0", stays.Score())
	}
}

func TestCalculate_AverageOfOnesIsMax(t *testing.T) {
	for n := 2; n <= 7; n++ {
		cs := make([]*Consideration[NoTarget], n)
		for i := range cs {
			cs[i] = Consider("one", constant(1))
		}
		a := newTestAction(t, cs...).Standard(MethodAverage).ScoreRange(0.1, 0.6)
		a.Calculate(NoTarget{}, 0)
		if math.Abs(a.Score()-0.6) > eps {
			t.Errorf("n=%d: score = %f, want 0.6", n, a.Score())
		}
	}
}

func TestCalculate_CachesConsiderationScores(t *testing.T) {
	c1 := Consider("a", constant(0.3))
	c2 := ConsiderWith("b", constant(0.6), MethodMax)
	a := newTestAction(t, c1, c2)

	if c1.Evaluated() {
		t.Fatal("consideration should not be evaluated before Calculate")
	}
	a.Calculate(NoTarget{}, 0)
	if !c1.Evaluated() || c1.LastScore() != 0.3 {
		t.Errorf("c1 = %v/%f, want evaluated 0.3", c1.Evaluated(), c1.LastScore())
	}
	if c2.LastScore() != 0.6 {
		t.Errorf("c2 = %f, want 0.6", c2.LastScore())
	}
}

func TestCalculate_Throttling(t *testing.T) {
	v := 0.2
	a := newTestAction(t, Consider("v", func(NoTarget) float64 { return v })).Every(1.0)

	// Not due yet: score stays at its initial value.
	a.Calculate(NoTarget{}, 0.4)
	if a.Score() != 0 {
		t.Fatalf("score = %f before period elapsed, want 0", a.Score())
	}
	a.Calculate(NoTarget{}, 0.4)
	if a.Score() != 0 {
		t.Fatalf("score = %f before period elapsed, want 0", a.Score())
	}
	if math.Abs(a.RemainingCalculationTime()-0.2) > eps {
		t.Errorf("remaining = %f, want 0.2", a.RemainingCalculationTime())
	}

	// Crossing the threshold recomputes and resets the timer to zero,
	// discarding the 0.2 overshoot.
	a.Calculate(NoTarget{}, 0.4)
	if a.Score() != 0.2 {
		t.Fatalf("score = %f after period elapsed, want 0.2", a.Score())
	}
	if a.RemainingCalculationTime() != 1.0 {
		t.Errorf("remaining = %f after reset, want 1.0", a.RemainingCalculationTime())
	}

	v = 0.9
	a.Calculate(NoTarget{}, 0.5)
	if a.Score() != 0.2 {
		t.Errorf("score = %f mid-period, want cached 0.2", a.Score())
	}
	a.Calculate(NoTarget{}, 0.5)
	if a.Score() != 0.9 {
		t.Errorf("score = %f at period, want 0.9", a.Score())
	}
}

func TestCalculate_DisabledKeepsScore(t *testing.T) {
	calls := 0
	a := newTestAction(t, Consider("v", func(NoTarget) float64 { calls++; return 0.5 }))
	a.Calculate(NoTarget{}, 0)
	a.SetConsidered(false)
	a.Calculate(NoTarget{}, 0)
	if calls != 1 {
		t.Errorf("scoring calls = %d, want 1", calls)
	}
	if a.Score() != 0.5 {
		t.Errorf("score = %f, want 0.5", a.Score())
	}
}

func TestScoreRange_RemapsCachedScore(t *testing.T) {
	a := newTestAction(t, Consider("v", constant(0.25)))
	a.Calculate(NoTarget{}, 0)

	a.ScoreRange(2, 4)
	if math.Abs(a.Score()-2.5) > eps {
		t.Fatalf("score = %f after remap to [2,4], want 2.5", a.Score())
	}

	// v=2.5 in [2,4] → min2 + (max2-min2)*(v-min1)/(max1-min1)
	a.ScoreRange(-1, 1)
	if math.Abs(a.Score()-(-0.5)) > eps {
		t.Errorf("score = %f after remap to [-1,1], want -0.5", a.Score())
	}
}

func TestScoreRange_DegenerateOldRange(t *testing.T) {
	a := newTestAction(t).ScoreRange(0.5, 0.5)
	a.ScoreRange(0.1, 0.9)
	if a.Score() != 0.1 {
		t.Errorf("score = %f, want new minimum 0.1", a.Score())
	}
}

func TestEveryStaggered(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := newTestAction(t, Consider("v", constant(1))).EveryStaggered(2.0, rng)
	rem := a.RemainingCalculationTime()
	if rem <= 0 || rem > 2.0 {
		t.Errorf("remaining = %f, want in (0, 2]", rem)
	}

	b := newTestAction(t).EveryStaggered(2.0, nil)
	if b.RemainingCalculationTime() != 2.0 {
		t.Errorf("nil rng: remaining = %f, want 2.0", b.RemainingCalculationTime())
	}
}

func TestEvery_NegativePeriod(t *testing.T) {
	a := newTestAction(t).Every(-3)
	if a.Period() != 0 {
		t.Errorf("period = %f, want 0", a.Period())
	}
}

func TestMethod_ShortString(t *testing.T) {
	want := map[Method]string{
		MethodStandard: "STD",
		MethodMultiply: "MUL",
		MethodMax:      "MAX",
		MethodMin:      "MIN",
		MethodAdd:      "ADD",
		MethodAverage:  "AVG",
	}
	for m, s := range want {
		if got := m.ShortString(); got != s {
			t.Errorf("%v.ShortString() = %q, want %q", m, got, s)
		}
	}
}

func TestConsideration_String(t *testing.T) {
	c := ConsiderWith("hunger", constant(0.5), MethodMax)
	c.Evaluate(NoTarget{})
	if got := c.String(); got != "0.50 [MAX] - hunger" {
		t.Errorf("String() = %q", got)
	}
	anon := Consider("", constant(0.25))
	anon.Evaluate(NoTarget{})
	if got := anon.String(); got != "0.25" {
		t.Errorf("String() = %q", got)
	}
}
