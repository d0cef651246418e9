// Agent spawning: creates the initial population with names, positions,
// and mostly-met needs.
package agents

import (
	"math/rand"

	"github.com/talgya/decider/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnPopulation creates count agents scattered within radius hexes of home.
func (s *Spawner) SpawnPopulation(count int, home world.HexCoord, radius int, tick uint64) []*Agent {
	agents := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, s.spawnOne(home, radius, tick))
	}
	return agents
}

func (s *Spawner) spawnOne(home world.HexCoord, radius int, tick uint64) *Agent {
	id := s.nextID
	s.nextID++

	sex := SexMale
	if s.rng.Float32() < 0.5 {
		sex = SexFemale
	}

	// Needs: mostly met at world start (stable starting conditions).
	needs := NeedsState{
		Survival:  0.6 + s.rng.Float64()*0.4,
		Safety:    0.6 + s.rng.Float64()*0.3,
		Belonging: 0.4 + s.rng.Float64()*0.4,
		Esteem:    0.3 + s.rng.Float64()*0.3,
	}

	return &Agent{
		ID:       id,
		Name:     s.generateName(sex),
		Sex:      sex,
		Health:   0.8 + s.rng.Float64()*0.2,
		Energy:   0.6 + s.rng.Float64()*0.4,
		Position: s.scatter(home, radius),
		Home:     home,
		Food:     s.rng.Intn(4),
		Wealth:   uint64(10 + s.rng.Intn(40)),
		Needs:    needs,
		BornTick: tick,
		Alive:    true,
	}
}

// scatter picks a random hex within radius of center.
func (s *Spawner) scatter(center world.HexCoord, radius int) world.HexCoord {
	if radius <= 0 {
		return center
	}
	for {
		q := s.rng.Intn(2*radius+1) - radius
		r := s.rng.Intn(2*radius+1) - radius
		c := world.HexCoord{Q: center.Q + q, R: center.R + r}
		if world.Distance(center, c) <= radius {
			return c
		}
	}
}

func (s *Spawner) generateName(sex Sex) string {
	var firsts []string
	if sex == SexMale {
		firsts = maleNames
	} else {
		firsts = femaleNames
	}
	first := firsts[s.rng.Intn(len(firsts))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Wolfsbane", "Stoneheart",
}
