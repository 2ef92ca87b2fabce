package models

import (
	"fmt"
	"strings"
)

// Samplers is the fixed, ordered list of sampler identifiers the backend accepts.
// The scheduler mutation walks this list cyclically, so the order matters.
var Samplers = []string{
	"euler",
	"euler_a",
	"heun",
	"dpm2",
	"dpmpp_2s_a",
	"dpmpp_2m",
	"dpmpp_2mv2",
	"ipndm",
	"ipndm_v",
	"lcm",
	"ddim_trailing",
	"tcd",
}

// SamplerIndex returns the position of name in Samplers, or -1.
func SamplerIndex(name string) int {
	for i, s := range Samplers {
		if s == name {
			return i
		}
	}
	return -1
}

// NormalizeSampler maps display names ("Euler a", "DPM++ 2M") to backend identifiers.
func NormalizeSampler(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " a", "_a")
	n = strings.ReplaceAll(n, "++", "pp")
	n = strings.ReplaceAll(n, " ", "_")
	return n
}

// ParameterSet is one generation request. It is a value type: copy it, never share it.
type ParameterSet struct {
	Prompt         string  `json:"prompt" yaml:"prompt"`
	NegativePrompt string  `json:"negative_prompt" yaml:"negative_prompt"`
	Seed           int64   `json:"seed" yaml:"seed"`
	Steps          int     `json:"steps" yaml:"steps"`
	GuidanceScale  float64 `json:"guidance_scale" yaml:"guidance_scale"`
	Sampler        string  `json:"sampler" yaml:"sampler"`
	Width          int     `json:"width" yaml:"width"`
	Height         int     `json:"height" yaml:"height"`
}

// Key is the tuple two cells are compared on for duplicate detection.
// Negative prompt and dimensions never change inside a batch, so they are left out.
type Key struct {
	Prompt        string
	Seed          int64
	Steps         int
	GuidanceScale float64
	Sampler       string
}

// Key returns the duplicate-detection tuple for p.
func (p ParameterSet) Key() Key {
	return Key{
		Prompt:        p.Prompt,
		Seed:          p.Seed,
		Steps:         p.Steps,
		GuidanceScale: p.GuidanceScale,
		Sampler:       p.Sampler,
	}
}

// DefaultParameterSet mirrors the web UI's initial generation settings.
func DefaultParameterSet() ParameterSet {
	return ParameterSet{
		Prompt:         "A cinematic, melancholic photograph of a solitary hooded figure walking through a rain-slicked metropolis at night.",
		NegativePrompt: "deformed, bad anatomy, blurry, cropped, jpeg artifacts, low quality, lowres, watermark, signature",
		Seed:           -1,
		Steps:          4,
		GuidanceScale:  1.0,
		Sampler:        "euler_a",
		Width:          1024,
		Height:         768,
	}
}

// LockField names one lockable field category.
type LockField string

const (
	LockSteps     LockField = "steps"
	LockGuidance  LockField = "guidance"
	LockScheduler LockField = "scheduler"
	LockSeed      LockField = "seed"
	LockPrompt    LockField = "prompt"
)

// ParseLockField converts a path or flag value into a LockField.
func ParseLockField(s string) (LockField, error) {
	switch f := LockField(strings.ToLower(strings.TrimSpace(s))); f {
	case LockSteps, LockGuidance, LockScheduler, LockSeed, LockPrompt:
		return f, nil
	case "sampler":
		return LockScheduler, nil
	default:
		return "", fmt.Errorf("unknown lock field: %q (allowed: steps, guidance, scheduler, seed, prompt)", s)
	}
}

// LockSet holds one flag per mutable field. A locked field is never mutated.
type LockSet struct {
	Steps     bool `json:"steps" yaml:"steps"`
	Guidance  bool `json:"guidance" yaml:"guidance"`
	Scheduler bool `json:"scheduler" yaml:"scheduler"`
	Seed      bool `json:"seed" yaml:"seed"`
	Prompt    bool `json:"prompt" yaml:"prompt"`
}

// DefaultLockSet leaves only the seed free.
func DefaultLockSet() LockSet {
	return LockSet{
		Steps:     true,
		Guidance:  true,
		Scheduler: true,
		Seed:      false,
		Prompt:    true,
	}
}

// AllLocked reports whether no field can be mutated.
func (l LockSet) AllLocked() bool {
	return l.Steps && l.Guidance && l.Scheduler && l.Seed && l.Prompt
}

// Toggle returns a copy of l with field flipped.
func (l LockSet) Toggle(field LockField) LockSet {
	switch field {
	case LockSteps:
		l.Steps = !l.Steps
	case LockGuidance:
		l.Guidance = !l.Guidance
	case LockScheduler:
		l.Scheduler = !l.Scheduler
	case LockSeed:
		l.Seed = !l.Seed
	case LockPrompt:
		l.Prompt = !l.Prompt
	}
	return l
}

// Get reports whether field is locked.
func (l LockSet) Get(field LockField) bool {
	switch field {
	case LockSteps:
		return l.Steps
	case LockGuidance:
		return l.Guidance
	case LockScheduler:
		return l.Scheduler
	case LockSeed:
		return l.Seed
	case LockPrompt:
		return l.Prompt
	}
	return false
}
