package models

// BatchSize is the fixed number of neighbor cells in every batch.
const BatchSize = 8

// MutationKind records which operator produced a cell.
type MutationKind string

const (
	KindReseed   MutationKind = "reseed"
	KindSteps    MutationKind = "steps"
	KindGuidance MutationKind = "guidance"
	KindSampler  MutationKind = "sampler"
	KindPrompt   MutationKind = "prompt"
	KindFallback MutationKind = "fallback"
)

// Cell is one point of the exploration grid.
// Asset is nil while the cell is pending.
type Cell struct {
	Params   ParameterSet `json:"params"`
	Label    string       `json:"label"`
	Kind     MutationKind `json:"kind"`
	Asset    *string      `json:"asset,omitempty"`
	InFlight bool         `json:"in_flight"`
	// ResolvedSeed is the seed the backend reported for Asset.
	ResolvedSeed int64 `json:"resolved_seed,omitempty"`
}

// Pending reports whether the cell still waits for an asset.
func (c Cell) Pending() bool {
	return c.Asset == nil
}

// Clone returns a copy that shares no pointers with c.
func (c Cell) Clone() Cell {
	out := c
	if c.Asset != nil {
		a := *c.Asset
		out.Asset = &a
	}
	return out
}

// Batch is the output of one generator run.
type Batch struct {
	Cells []Cell `json:"cells"`
	// Padded counts the trailing cells added by the fallback fill.
	Padded int `json:"padded"`
}
