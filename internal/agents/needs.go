// NeedsState implements a Maslow-inspired needs hierarchy.
package agents

// NeedsState tracks the fulfillment level of each need layer.
// All values range from 0.0 (completely unmet) to 1.0 (fully satisfied).
type NeedsState struct {
	Survival  float64 `json:"survival"`  // Food and health
	Safety    float64 `json:"safety"`    // Physical security
	Belonging float64 `json:"belonging"` // Social connections
	Esteem    float64 `json:"esteem"`    // Standing and skill
}

// Per-unit-time decay rates.
const (
	SurvivalDecay  = 0.002
	BelongingDecay = 0.001
	EsteemDecay    = 0.0005
	EnergyDecay    = 0.001
	StarvationRate = 0.005 // Health lost per unit time at zero survival
	SafetyRecovery = 0.05  // How fast safety tracks the local danger level
)

// OverallSatisfaction returns a weighted average of all needs,
// with lower needs weighted more heavily.
func (n *NeedsState) OverallSatisfaction() float64 {
	return (n.Survival*4 + n.Safety*3 + n.Belonging*2 + n.Esteem*1) / 10
}

// DecayNeeds advances an agent's needs by dt given the danger at its position.
// Starvation drains health; an agent at zero health dies.
func DecayNeeds(a *Agent, dt, danger float64) {
	if !a.Alive {
		return
	}

	a.Needs.Survival = clamp01(a.Needs.Survival - SurvivalDecay*dt)
	a.Needs.Belonging = clamp01(a.Needs.Belonging - BelongingDecay*dt)
	a.Needs.Esteem = clamp01(a.Needs.Esteem - EsteemDecay*dt)
	a.Energy = clamp01(a.Energy - EnergyDecay*dt)

	// Safety drifts toward how safe the current hex actually is.
	target := 1 - danger
	a.Needs.Safety = clamp01(a.Needs.Safety + (target-a.Needs.Safety)*SafetyRecovery*dt)

	if a.Needs.Survival == 0 {
		a.Health = clamp01(a.Health - StarvationRate*dt)
	}
	if a.Health == 0 {
		a.Alive = false
	}

	a.Mood = clampMood(a.Needs.OverallSatisfaction()*2 - 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMood(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
