// Package agents provides the villager data model, needs, and the
// utility-scored brain that picks what each villager does.
package agents

import (
	"github.com/talgya/decider/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Sex represents biological sex, used only for naming.
type Sex uint8

const (
	SexMale   Sex = 0
	SexFemale Sex = 1
)

// Agent is the core entity representing a person in the simulation.
type Agent struct {
	ID   AgentID `json:"id"`
	Name string  `json:"name"`
	Sex  Sex     `json:"sex"`

	Health float64 `json:"health"` // 0.0-1.0
	Energy float64 `json:"energy"` // 0.0-1.0, drained by work
	Mood   float64 `json:"mood"`   // -1.0 to 1.0

	Position world.HexCoord `json:"position"`
	Home     world.HexCoord `json:"home"`

	Food   int    `json:"food"`
	Wealth uint64 `json:"wealth"` // Crowns

	Needs NeedsState `json:"needs"`

	BornTick uint64 `json:"born_tick"`
	Alive    bool   `json:"alive"`
}

// ActionKind identifies one of the villager actions. The zero value,
// ActionNone, is never registered with a decider.
type ActionKind uint8

const (
	ActionNone      ActionKind = iota
	ActionIdle                 // Fallback when nothing is pressing
	ActionEat                  // Consume food from inventory
	ActionForage               // Gather food from the land
	ActionWork                 // Earn crowns and standing
	ActionRest                 // Recover energy and health
	ActionSocialize            // Spend time with neighbors
	ActionFlee                 // Move away from danger
)

// AllActions lists every registrable action in registration order.
var AllActions = []ActionKind{
	ActionIdle, ActionEat, ActionForage, ActionWork, ActionRest, ActionSocialize, ActionFlee,
}

var actionNames = [...]string{
	ActionNone:      "none",
	ActionIdle:      "idle",
	ActionEat:       "eat",
	ActionForage:    "forage",
	ActionWork:      "work",
	ActionRest:      "rest",
	ActionSocialize: "socialize",
	ActionFlee:      "flee",
}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return "unknown"
}

// ParseActionKind maps an action name to its kind.
func ParseActionKind(s string) (ActionKind, bool) {
	for _, k := range AllActions {
		if actionNames[k] == s {
			return k, true
		}
	}
	return ActionNone, false
}
