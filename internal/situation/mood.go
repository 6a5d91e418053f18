package situation

import (
	"math"
	"time"

	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
)

const (
	// ActionExplainMoodChanges asks the user to explain a sudden mood change.
	ActionExplainMoodChanges = "EXPLAIN_MOOD_CHANGES"

	// DefaultMoodThreshold is the level difference above which a change is
	// considered sudden.
	DefaultMoodThreshold = 5.0
)

// MoodAnnotationExpected fires when two consecutive mood records from the
// same calendar day differ by more than Threshold in mood or energy.
type MoodAnnotationExpected struct {
	Threshold float64
	// Location decides calendar-day boundaries. Nil means time.Local.
	Location *time.Location
}

// NewMoodAnnotationExpected returns the rule with the default threshold.
func NewMoodAnnotationExpected() *MoodAnnotationExpected {
	return &MoodAnnotationExpected{Threshold: DefaultMoodThreshold}
}

func (s *MoodAnnotationExpected) Name() string { return "mood_annotation_expected" }

func (s *MoodAnnotationExpected) DependsOn() []record.Type {
	return []record.Type{record.TypeMood}
}

func (s *MoodAnnotationExpected) Assert(snap *Snapshot, ev event.Event) (*event.Action, error) {
	if _, ok := ev.(event.StateChange); !ok {
		return nil, nil
	}
	current, ok := CurrentAs[*record.Mood](snap, record.TypeMood)
	if !ok {
		return nil, nil
	}
	previous, ok := PreviousAs[*record.Mood](snap, record.TypeMood)
	if !ok {
		return nil, nil
	}
	if !SameDay(current.CreatedAt(), previous.CreatedAt(), s.Location) {
		return nil, nil
	}

	moodDiff := math.Abs(current.MoodLevel() - previous.MoodLevel())
	energyDiff := math.Abs(current.EnergyLevel() - previous.EnergyLevel())
	if moodDiff > s.Threshold || energyDiff > s.Threshold {
		return event.NewAction(ActionExplainMoodChanges, s.Name(), current, previous), nil
	}
	return nil, nil
}

// SameDay reports whether a and b fall on the same calendar day, comparing
// both the year and the day of the year, in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// ActionReportMood reminds the user to report their mood.
const ActionReportMood = "REPORT_MOOD"

// MoodReminder fires when the mood stream has been silent for at least
// After. The last known mood, if any, is attached.
type MoodReminder struct {
	After time.Duration
}

func (MoodReminder) Name() string { return "mood_reminder" }

func (MoodReminder) DependsOn() []record.Type {
	return []record.Type{record.TypeMood}
}

func (s MoodReminder) Assert(snap *Snapshot, ev event.Event) (*event.Action, error) {
	nd, ok := ev.(event.NoDataChange)
	if !ok || nd.Elapsed < s.After {
		return nil, nil
	}
	if last, ok := snap.Current(record.TypeMood); ok {
		return event.NewAction(ActionReportMood, s.Name(), last), nil
	}
	return event.NewAction(ActionReportMood, s.Name()), nil
}
