package models

import (
	"time"

	"gorm.io/gorm"
)

// GenerationSettings is the persisted "current generation parameters" row.
// There is one row per profile; the explorer uses the "default" profile.
type GenerationSettings struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	Profile        string         `gorm:"uniqueIndex;not null" json:"profile"`
	Prompt         string         `gorm:"type:text" json:"prompt"`
	NegativePrompt string         `gorm:"type:text" json:"negative_prompt"`
	Seed           int64          `json:"seed"`
	Steps          int            `json:"steps"`
	GuidanceScale  float64        `json:"guidance_scale"`
	Sampler        string         `json:"sampler"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	ImageURL       string         `json:"image_url"`
}

// Params extracts the ParameterSet stored in s.
func (s GenerationSettings) Params() ParameterSet {
	return ParameterSet{
		Prompt:         s.Prompt,
		NegativePrompt: s.NegativePrompt,
		Seed:           s.Seed,
		Steps:          s.Steps,
		GuidanceScale:  s.GuidanceScale,
		Sampler:        s.Sampler,
		Width:          s.Width,
		Height:         s.Height,
	}
}

// SetParams overwrites the parameter columns of s with p.
func (s *GenerationSettings) SetParams(p ParameterSet) {
	s.Prompt = p.Prompt
	s.NegativePrompt = p.NegativePrompt
	s.Seed = p.Seed
	s.Steps = p.Steps
	s.GuidanceScale = p.GuidanceScale
	s.Sampler = p.Sampler
	s.Width = p.Width
	s.Height = p.Height
}

// Promotion logs one promote-to-center action.
type Promotion struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	SessionID     string    `gorm:"index;not null" json:"session_id"`
	Label         string    `json:"label"`
	Prompt        string    `gorm:"type:text" json:"prompt"`
	Seed          int64     `json:"seed"`
	Steps         int       `json:"steps"`
	GuidanceScale float64   `json:"guidance_scale"`
	Sampler       string    `json:"sampler"`
	ImageURL      string    `json:"image_url"`
}
