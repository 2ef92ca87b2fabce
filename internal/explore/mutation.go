package explore

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Conceptual-Machines/variation-explorer/internal/models"
)

const (
	// maxAttempts bounds the randomized search before padding kicks in
	maxAttempts = 50

	// maxSeed is the exclusive upper bound for reseed draws (2^31 - 1)
	maxSeed = 2147483647

	minSteps    = 3
	minGuidance = 1.0

	labelReseed   = "Random Seed"
	labelPrompt   = "Prompt Var"
	labelFallback = "No Change"
)

var (
	stepOffsets     = []int{1, -1, 2, -2, 3, -3, 4, -4}
	guidanceOffsets = []float64{0.1, -0.1, 0.2, -0.2, 0.5, -0.5, 1.0, -1.0}
)

// operator proposes one neighbor of center, or nil when the draw was a no-op.
type operator func(center models.ParameterSet) *models.Cell

// Generator builds batches of neighbor cells around a center parameter set.
// It performs no I/O; all randomness comes from the injected source.
type Generator struct {
	rng      *rand.Rand
	samplers []string
}

// NewGenerator creates a generator drawing from rng over the standard sampler list.
func NewGenerator(rng *rand.Rand) *Generator {
	return NewGeneratorWithSamplers(rng, models.Samplers)
}

// NewGeneratorWithSamplers creates a generator over a custom sampler list.
func NewGeneratorWithSamplers(rng *rand.Rand, samplers []string) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng, samplers: samplers}
}

// Generate returns exactly models.BatchSize cells around center.
//
// promptPool holds pre-fetched prompt rewrites; it is only used when the
// prompt lock is off. Cells carry pairwise-distinct parameter tuples except
// for trailing padding cells, counted in Batch.Padded.
func (g *Generator) Generate(center models.ParameterSet, locks models.LockSet, promptPool []string) models.Batch {
	cells := make([]models.Cell, 0, models.BatchSize)
	seen := make(map[models.Key]struct{}, models.BatchSize)

	add := func(c models.Cell) bool {
		k := c.Params.Key()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		cells = append(cells, c)
		return true
	}

	if !locks.Seed {
		add(g.reseed(center))
	}

	ops := g.operators(locks, promptPool)
	for attempt := 0; attempt < maxAttempts && len(cells) < models.BatchSize; attempt++ {
		if len(ops) == 0 {
			break
		}
		op := ops[g.rng.IntN(len(ops))]
		if c := op(center); c != nil {
			add(*c)
		}
	}

	padded := 0
	for len(cells) < models.BatchSize {
		if !locks.Seed {
			cells = append(cells, g.reseed(center))
		} else {
			cells = append(cells, models.Cell{
				Params: center,
				Label:  labelFallback,
				Kind:   models.KindFallback,
			})
		}
		padded++
	}

	return models.Batch{Cells: cells[:models.BatchSize], Padded: padded}
}

// operators returns the applicable mutation operators in a fixed order so a
// seeded source yields a reproducible sequence.
func (g *Generator) operators(locks models.LockSet, promptPool []string) []operator {
	var ops []operator
	if !locks.Prompt && len(promptPool) > 0 {
		ops = append(ops, g.promptOp(promptPool))
	}
	if !locks.Steps {
		ops = append(ops, g.stepsOp)
	}
	if !locks.Guidance {
		ops = append(ops, g.guidanceOp)
	}
	if !locks.Scheduler && len(g.samplers) > 1 {
		ops = append(ops, g.samplerOp)
	}
	if !locks.Seed {
		ops = append(ops, func(center models.ParameterSet) *models.Cell {
			c := g.reseed(center)
			return &c
		})
	}
	return ops
}

func (g *Generator) reseed(center models.ParameterSet) models.Cell {
	p := center
	p.Seed = g.rng.Int64N(maxSeed)
	return models.Cell{Params: p, Label: labelReseed, Kind: models.KindReseed}
}

func (g *Generator) stepsOp(center models.ParameterSet) *models.Cell {
	change := stepOffsets[g.rng.IntN(len(stepOffsets))]
	steps := max(minSteps, center.Steps+change)
	if steps == center.Steps {
		return nil
	}
	p := center
	p.Steps = steps
	return &models.Cell{
		Params: p,
		Label:  fmt.Sprintf("Steps %+d", change),
		Kind:   models.KindSteps,
	}
}

func (g *Generator) guidanceOp(center models.ParameterSet) *models.Cell {
	change := guidanceOffsets[g.rng.IntN(len(guidanceOffsets))]
	guidance := roundTenth(math.Max(minGuidance, center.GuidanceScale+change))
	if math.Abs(guidance-center.GuidanceScale) < 0.01 {
		return nil
	}
	p := center
	p.GuidanceScale = guidance
	return &models.Cell{
		Params: p,
		Label:  fmt.Sprintf("Guidance %+.1f", change),
		Kind:   models.KindGuidance,
	}
}

func (g *Generator) samplerOp(center models.ParameterSet) *models.Cell {
	n := len(g.samplers)
	current := -1
	for i, s := range g.samplers {
		if s == center.Sampler {
			current = i
			break
		}
	}
	offset := g.rng.IntN(n-1) + 1
	// current == -1 still lands inside [0, n-2], never negative
	next := g.samplers[(current+offset)%n]
	p := center
	p.Sampler = next
	return &models.Cell{
		Params: p,
		Label:  "Sampler: " + next,
		Kind:   models.KindSampler,
	}
}

func (g *Generator) promptOp(pool []string) operator {
	return func(center models.ParameterSet) *models.Cell {
		variant := pool[g.rng.IntN(len(pool))]
		if variant == center.Prompt {
			return nil
		}
		p := center
		p.Prompt = variant
		return &models.Cell{Params: p, Label: labelPrompt, Kind: models.KindPrompt}
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
