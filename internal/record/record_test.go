package record

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestMoodValidation(t *testing.T) {
	tests := []struct {
		name         string
		mood, energy float64
		wantErr      bool
	}{
		{"lower bound", 0, 0, false},
		{"upper bound", 100, 100, false},
		{"mood too high", 100.5, 50, true},
		{"energy negative", 50, -1, true},
		{"mood NaN", math.NaN(), 50, true},
		{"energy NaN", 50, math.NaN(), true},
		{"mood infinite", math.Inf(1), 50, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMood(tt.mood, tt.energy, time.Time{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("error %v does not wrap ErrInvalidRecord", err)
			}
		})
	}
}

func TestZeroTimeMeansNow(t *testing.T) {
	before := time.Now()
	m, err := NewMood(50, 50, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if m.CreatedAt().Before(before) {
		t.Fatalf("CreatedAt %v before %v", m.CreatedAt(), before)
	}

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m, _ = NewMood(50, 50, at)
	if !m.CreatedAt().Equal(at) {
		t.Fatalf("CreatedAt = %v, want %v", m.CreatedAt(), at)
	}
}

func TestLocationValidation(t *testing.T) {
	if _, err := NewLocation(91, 0, 0, time.Time{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("latitude 91: err = %v", err)
	}
	if _, err := NewLocation(0, -181, 0, time.Time{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("longitude -181: err = %v", err)
	}
	if _, err := NewLocation(0, 0, -1, time.Time{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("accuracy -1: err = %v", err)
	}
	for _, tt := range []struct {
		name          string
		lat, lon, acc float64
	}{
		{"latitude NaN", math.NaN(), 0, 0},
		{"longitude NaN", 0, math.NaN(), 0},
		{"accuracy NaN", 0, 0, math.NaN()},
		{"accuracy infinite", 0, 0, math.Inf(1)},
		{"latitude -Inf", math.Inf(-1), 0, 0},
	} {
		if _, err := NewLocation(tt.lat, tt.lon, tt.acc, time.Time{}); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: err = %v", tt.name, err)
		}
	}
	if _, err := NewLocation(42.28, -83.74, 10, time.Time{}); err != nil {
		t.Fatalf("valid fix: %v", err)
	}
}

func TestSemanticLocationKeepsSourceTime(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	src, _ := NewLocation(1, 2, 3, at)
	s := NewSemanticLocation("", src)
	if s.Place() != Unknown {
		t.Fatalf("Place = %q, want %q", s.Place(), Unknown)
	}
	if !s.CreatedAt().Equal(at) {
		t.Fatalf("CreatedAt = %v, want %v", s.CreatedAt(), at)
	}
	if s.Source() != src {
		t.Fatal("Source not kept")
	}
}

func TestTypeValidate(t *testing.T) {
	if err := Type("").Validate(); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("empty type: err = %v", err)
	}
	if err := Type("battery").Validate(); err != nil {
		t.Fatalf("battery: %v", err)
	}
}

func TestEnvelopeRoundTripThroughJSON(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mood, _ := NewMood(80, 52, at)
	loc, _ := NewLocation(42.28, -83.74, 5, at)
	place := NewSemanticLocation("home", loc)
	gen := NewGeneric("battery", map[string]any{"level": 0.5}, at)

	for _, r := range []Record{mood, loc, place, gen} {
		data, err := json.Marshal(Wrap(r))
		if err != nil {
			t.Fatalf("marshal %s: %v", r.Type(), err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal %s: %v", r.Type(), err)
		}
		back, err := env.Unwrap()
		if err != nil {
			t.Fatalf("unwrap %s: %v", r.Type(), err)
		}
		if back.Type() != r.Type() || !back.CreatedAt().Equal(at) {
			t.Fatalf("%s: got type %s at %v", r.Type(), back.Type(), back.CreatedAt())
		}
	}
}

func TestEnvelopeUnwrapConcreteTypes(t *testing.T) {
	env := Envelope{Type: TypeMood, Data: map[string]any{"mood": 70.0, "energy": 40.0}}
	r, err := env.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	m, ok := r.(*Mood)
	if !ok || m.MoodLevel() != 70 || m.EnergyLevel() != 40 {
		t.Fatalf("got %#v", r)
	}

	env = Envelope{Type: TypeMood, Data: map[string]any{"mood": 170.0}}
	if _, err := env.Unwrap(); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("out of range mood: err = %v", err)
	}

	env = Envelope{Type: "steps", Data: map[string]any{"count": 12.0}}
	r, _ = env.Unwrap()
	g, ok := r.(*Generic)
	if !ok {
		t.Fatalf("got %T, want *Generic", r)
	}
	if v, _ := g.Value("count"); v != 12.0 {
		t.Fatalf("count = %v", v)
	}
}

func TestGenericCopiesData(t *testing.T) {
	data := map[string]any{"k": "v"}
	g := NewGeneric("x", data, time.Time{})
	data["k"] = "changed"
	if v, _ := g.Value("k"); v != "v" {
		t.Fatalf("generic record observed caller change: %v", v)
	}
}
