package record

import (
	"fmt"
	"time"
)

// Envelope is the serialisable form of a record, used by the API, the
// archive and the relay.
type Envelope struct {
	Type      Type           `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

// Wrap converts r into an envelope.
func Wrap(r Record) Envelope {
	e := Envelope{Type: r.Type(), CreatedAt: r.CreatedAt(), Data: map[string]any{}}
	switch v := r.(type) {
	case *Mood:
		e.Data["mood"] = v.MoodLevel()
		e.Data["energy"] = v.EnergyLevel()
	case *Location:
		e.Data["latitude"] = v.Latitude()
		e.Data["longitude"] = v.Longitude()
		e.Data["accuracy"] = v.Accuracy()
	case *SemanticLocation:
		e.Data["place"] = v.Place()
		if src := v.Source(); src != nil {
			e.Data["latitude"] = src.Latitude()
			e.Data["longitude"] = src.Longitude()
		}
	case *Generic:
		for k, val := range v.data {
			e.Data[k] = val
		}
	}
	return e
}

// WrapAll wraps every record in rs.
func WrapAll(rs []Record) []Envelope {
	out := make([]Envelope, len(rs))
	for i, r := range rs {
		out[i] = Wrap(r)
	}
	return out
}

// Unwrap rebuilds a record from its envelope. Types without a concrete Go
// representation come back as *Generic.
func (e Envelope) Unwrap() (Record, error) {
	if err := e.Type.Validate(); err != nil {
		return nil, err
	}
	switch e.Type {
	case TypeMood:
		return NewMood(number(e.Data, "mood"), number(e.Data, "energy"), e.CreatedAt)
	case TypeLocation:
		return NewLocation(number(e.Data, "latitude"), number(e.Data, "longitude"), number(e.Data, "accuracy"), e.CreatedAt)
	case TypeSemanticLocation:
		place, _ := e.Data["place"].(string)
		var src *Location
		if _, ok := e.Data["latitude"]; ok {
			l, err := NewLocation(number(e.Data, "latitude"), number(e.Data, "longitude"), 0, e.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("unwrap %s: %w", e.Type, err)
			}
			src = l
		}
		s := NewSemanticLocation(place, src)
		if !e.CreatedAt.IsZero() {
			s.createdAt = e.CreatedAt
		}
		return s, nil
	default:
		return NewGeneric(e.Type, e.Data, e.CreatedAt), nil
	}
}

func number(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Generic is a record of a type with no dedicated Go representation.
type Generic struct {
	base
	recordType Type
	data       map[string]any
}

// NewGeneric copies data into a new generic record. A zero at means now.
func NewGeneric(t Type, data map[string]any, at time.Time) *Generic {
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return &Generic{base: stamp(at), recordType: t, data: cp}
}

func (g *Generic) Type() Type { return g.recordType }

// Value returns one field of the record.
func (g *Generic) Value(key string) (any, bool) {
	v, ok := g.data[key]
	return v, ok
}
