package record

import (
	"fmt"
	"time"
)

// Mood levels are bounded to [MinLevel, MaxLevel].
const (
	MinLevel = 0
	MaxLevel = 100
)

// Mood is a self-reported mood and energy level.
type Mood struct {
	base
	mood   float64
	energy float64
}

// NewMood builds a mood record. A zero at means now.
func NewMood(mood, energy float64, at time.Time) (*Mood, error) {
	if err := checkLevel("mood", mood); err != nil {
		return nil, err
	}
	if err := checkLevel("energy", energy); err != nil {
		return nil, err
	}
	return &Mood{base: stamp(at), mood: mood, energy: energy}, nil
}

func (m *Mood) Type() Type           { return TypeMood }
func (m *Mood) MoodLevel() float64   { return m.mood }
func (m *Mood) EnergyLevel() float64 { return m.energy }

func (m *Mood) String() string {
	return fmt.Sprintf("mood(%.0f/%.0f @ %s)", m.mood, m.energy, m.createdAt.Format(time.RFC3339))
}

func checkLevel(name string, v float64) error {
	if !finite(v) || v < MinLevel || v > MaxLevel {
		return fmt.Errorf("%w: %s level %.2f out of range [%d, %d]", ErrInvalidRecord, name, v, MinLevel, MaxLevel)
	}
	return nil
}
