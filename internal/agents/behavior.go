// Every villager owns a utility decider. Each action is
// scored from the villager's needs and the land around it; the winner runs
// until something else outscores it.
package agents

import (
	"math"
	"math/rand"

	"github.com/talgya/decider/internal/utility"
	"github.com/talgya/decider/internal/world"
)

// Environment is what a villager can sense about the world.
type Environment interface {
	Danger(c world.HexCoord) float64
	Fertility(c world.HexCoord) float64
	SafestNeighbor(c world.HexCoord) world.HexCoord
}

// Decider is a villager's decider.
type Decider = utility.Decider[*Agent, ActionKind]

// Action is one of a villager's registered actions.
type Action = utility.Action[*Agent, ActionKind]

// Effect rates applied per unit of time while an action is active.
const (
	EatGain       = 0.25 // Survival per meal
	MealRate      = 1    // Meals per unit time while eating
	ForageRate    = 0.15 // Food units per unit time on fully fertile land
	WorkWage      = 1    // Crowns per unit time
	WorkStanding  = 0.004
	WorkFatigue   = 0.004
	RestRecovery  = 0.01
	RestHealing   = 0.002
	IdleRecovery  = 0.002
	SocializeGain = 0.01
	FleeRelief    = 0.05

	// Wealth at which poverty stops pushing a villager to work.
	ComfortableWealth = 100
)

// Brain binds a villager to its decider and applies the effects of the
// active action.
type Brain struct {
	Agent   *Agent
	Decider *Decider

	env    Environment
	dt     float64
	forage float64 // Partial food gathered toward the next unit
	meal   float64 // Progress toward the next meal
	wage   float64 // Crowns earned but not yet paid
}

// NewBrain builds a villager's decider with the standard action set.
// rng staggers throttled re-evaluation so villagers do not all rethink on
// the same tick; nil disables staggering.
func NewBrain(a *Agent, env Environment, rng *rand.Rand, opts ...utility.Option) *Brain {
	b := &Brain{
		Agent:   a,
		Decider: utility.New[*Agent, ActionKind](a, opts...),
		env:     env,
	}
	b.register(rng)
	return b
}

func (b *Brain) register(rng *rand.Rand) {
	d := b.Decider
	hunger := utility.Consider("hunger", func(a *Agent) float64 { return 1 - a.Needs.Survival })

	// Registration of a fixed, non-zero id set cannot fail.
	idle, _ := d.AddAction(ActionIdle, nil, b.idle, nil,
		utility.Consider("baseline", func(*Agent) float64 { return 0.1 }),
	)
	idle.WithUserData("fallback")

	d.AddAction(ActionEat, nil, b.eat, nil,
		hunger,
		utility.Consider("has food", func(a *Agent) float64 {
			if a.Food > 0 {
				return 1
			}
			return 0
		}),
	)

	forage, _ := d.AddAction(ActionForage, nil, b.gather, nil,
		utility.Consider("hunger", func(a *Agent) float64 { return 1 - a.Needs.Survival }),
		utility.Consider("pantry empty", func(a *Agent) float64 {
			if a.Food == 0 {
				return 1
			}
			return 0.3
		}),
		utility.Consider("fertility", func(a *Agent) float64 { return 0.4 + 0.6*b.env.Fertility(a.Position) }),
	)
	forage.ScoreRange(0, 0.9).EveryStaggered(2, rng)

	work, _ := d.AddAction(ActionWork, nil, b.work, nil,
		utility.Consider("poverty", func(a *Agent) float64 {
			return 1 - clamp01(float64(a.Wealth)/ComfortableWealth)
		}),
		utility.Consider("ambition", func(a *Agent) float64 { return 1 - a.Needs.Esteem }),
		utility.ConsiderWith("energy", func(a *Agent) float64 { return a.Energy }, utility.MethodMin),
	)
	work.Standard(utility.MethodAverage)

	rest, _ := d.AddAction(ActionRest, nil, b.rest, nil,
		utility.Consider("fatigue", func(a *Agent) float64 { return 1 - a.Energy }),
		utility.ConsiderWith("injury", func(a *Agent) float64 { return 1 - a.Health }, utility.MethodMax),
	)
	rest.ScoreRange(0, 0.95)

	social, _ := d.AddAction(ActionSocialize, nil, b.socialize, nil,
		utility.Consider("loneliness", func(a *Agent) float64 { return 1 - a.Needs.Belonging }),
		utility.Consider("feels safe", func(a *Agent) float64 { return a.Needs.Safety }),
	)
	social.ScoreRange(0, 0.8).EveryStaggered(5, rng)

	flee, _ := d.AddAction(ActionFlee, nil, b.flee, nil,
		utility.Consider("danger", func(a *Agent) float64 { return b.env.Danger(a.Position) }),
		utility.Consider("fear", func(a *Agent) float64 { return 1 - a.Needs.Safety }),
	)
	flee.Standard(utility.MethodMax).EveryStaggered(1, rng)
}

// Update advances the villager's decider by dt. Dead villagers do nothing.
func (b *Brain) Update(dt float64) {
	if !b.Agent.Alive {
		return
	}
	b.dt = dt
	b.Decider.Update(dt)
}

// Force makes the villager perform kind on its next update.
func (b *Brain) Force(kind ActionKind) bool {
	return b.Decider.ForceAction(kind)
}

// Active returns the kind of the active action, or ActionNone.
func (b *Brain) Active() ActionKind {
	if a := b.Decider.Active(); a != nil {
		return a.ID()
	}
	return ActionNone
}

// Close detaches the villager's decider from any debug overlay.
func (b *Brain) Close() {
	b.Decider.Close()
}

func (b *Brain) idle(a *Agent) {
	a.Energy = clamp01(a.Energy + IdleRecovery*b.dt)
}

func (b *Brain) eat(a *Agent) {
	if a.Food <= 0 {
		b.meal = 0
		return
	}
	b.meal += MealRate * b.dt
	for b.meal >= 1 && a.Food > 0 {
		b.meal--
		a.Food--
		a.Needs.Survival = clamp01(a.Needs.Survival + EatGain)
	}
}

func (b *Brain) gather(a *Agent) {
	b.forage += ForageRate * b.env.Fertility(a.Position) * b.dt
	for b.forage >= 1 {
		b.forage--
		a.Food++
	}
}

func (b *Brain) work(a *Agent) {
	b.wage += WorkWage * b.dt
	if whole := math.Floor(b.wage); whole >= 1 {
		b.wage -= whole
		a.Wealth += uint64(whole)
	}
	a.Needs.Esteem = clamp01(a.Needs.Esteem + WorkStanding*b.dt)
	a.Energy = clamp01(a.Energy - WorkFatigue*b.dt)
}

func (b *Brain) rest(a *Agent) {
	a.Energy = clamp01(a.Energy + RestRecovery*b.dt)
	a.Health = clamp01(a.Health + RestHealing*b.dt)
}

func (b *Brain) socialize(a *Agent) {
	a.Needs.Belonging = clamp01(a.Needs.Belonging + SocializeGain*b.dt)
}

func (b *Brain) flee(a *Agent) {
	a.Position = b.env.SafestNeighbor(a.Position)
	a.Needs.Safety = clamp01(a.Needs.Safety + FleeRelief)
}
