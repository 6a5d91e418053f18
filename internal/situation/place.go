package situation

import (
	"github.com/nidhogg/minuku/internal/event"
	"github.com/nidhogg/minuku/internal/record"
)

// ActionAskAboutPlace asks the user what they are doing at a newly entered
// place.
const ActionAskAboutPlace = "ASK_ABOUT_PLACE"

// PlaceChanged fires when the semantic location moves to a different known
// place. Moving into the unknown place is ignored.
type PlaceChanged struct{}

func (PlaceChanged) Name() string { return "place_changed" }

func (PlaceChanged) DependsOn() []record.Type {
	return []record.Type{record.TypeSemanticLocation}
}

func (p PlaceChanged) Assert(snap *Snapshot, ev event.Event) (*event.Action, error) {
	if _, ok := ev.(event.StateChange); !ok {
		return nil, nil
	}
	current, ok := CurrentAs[*record.SemanticLocation](snap, record.TypeSemanticLocation)
	if !ok || current.Place() == record.Unknown {
		return nil, nil
	}
	previous, ok := PreviousAs[*record.SemanticLocation](snap, record.TypeSemanticLocation)
	if ok && previous.Place() == current.Place() {
		return nil, nil
	}
	recs := []record.Record{current}
	if ok {
		recs = append(recs, previous)
	}
	return event.NewAction(ActionAskAboutPlace, p.Name(), recs...), nil
}
