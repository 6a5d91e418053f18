package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/minuku/internal/gateway"
	"github.com/nidhogg/minuku/internal/record"
	"github.com/nidhogg/minuku/internal/streams"
)

// MoodReporter accepts self-reported mood and energy levels.
type MoodReporter interface {
	Report(ctx context.Context, mood, energy float64, at time.Time) (*record.Mood, error)
}

// LocationReporter accepts location fixes.
type LocationReporter interface {
	Report(ctx context.Context, lat, lon, accuracy float64, at time.Time) (*record.Location, error)
}

// StreamLister lists registered streams.
type StreamLister interface {
	Stats() []streams.Stats
}

// SituationLister lists registered situations.
type SituationLister interface {
	Situations() []string
}

// StatusProvider provides adapter connection status.
type StatusProvider interface {
	StatusAll() []gateway.AdapterStatus
}

// Deps are what the built-in commands act on. Nil fields leave the matching
// command unregistered.
type Deps struct {
	Mood       MoodReporter
	Location   LocationReporter
	Streams    StreamLister
	Situations SituationLister
	Status     StatusProvider
}

// RegisterBuiltins registers /help and every command whose dependency is set.
func RegisterBuiltins(reg *Registry, d Deps) {
	reg.Register(helpCommand(reg))
	if d.Mood != nil {
		reg.Register(moodCommand(d.Mood))
	}
	if d.Location != nil {
		reg.Register(whereCommand(d.Location))
	}
	if d.Streams != nil {
		reg.Register(streamsCommand(d.Streams))
	}
	if d.Situations != nil {
		reg.Register(situationsCommand(d.Situations))
	}
	if d.Status != nil {
		reg.Register(statusCommand(d.Status))
	}
}

// ---------------------------------------------------------------------------
// /help
// ---------------------------------------------------------------------------

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Description: "List all available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ *Invocation, _ *CommandContext) (*CommandResult, error) {
			cmds := reg.List()
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range cmds {
				fmt.Fprintf(&b, "  /%s: %s\n", c.Name, c.Description)
				if len(c.Aliases) > 0 {
					fmt.Fprintf(&b, "    Also: /%s\n", strings.Join(c.Aliases, ", /"))
				}
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
			}
			return &CommandResult{Content: b.String()}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /mood
// ---------------------------------------------------------------------------

func moodCommand(mood MoodReporter) *Command {
	return &Command{
		Name:        "mood",
		Description: "Report how you feel",
		Usage:       "/mood <mood 0-100> <energy 0-100>",
		MinArgs:     2,
		MaxArgs:     2,
		Handler: func(ctx context.Context, inv *Invocation, _ *CommandContext) (*CommandResult, error) {
			vals, err := inv.Floats()
			if err != nil {
				return nil, err
			}
			m, err := mood.Report(ctx, vals[0], vals[1], time.Time{})
			if err != nil {
				return nil, fmt.Errorf("report mood: %w", err)
			}
			return &CommandResult{
				Content: fmt.Sprintf("Recorded mood %.0f, energy %.0f.", m.MoodLevel(), m.EnergyLevel()),
				Records: []record.Record{m},
			}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /where
// ---------------------------------------------------------------------------

func whereCommand(loc LocationReporter) *Command {
	return &Command{
		Name:        "where",
		Aliases:     []string{"loc"},
		Description: "Report your current location",
		Usage:       "/where <latitude> <longitude> [accuracy meters]",
		MinArgs:     2,
		MaxArgs:     3,
		Handler: func(ctx context.Context, inv *Invocation, _ *CommandContext) (*CommandResult, error) {
			vals, err := inv.Floats()
			if err != nil {
				return nil, err
			}
			var acc float64
			if len(vals) == 3 {
				acc = vals[2]
			}
			l, err := loc.Report(ctx, vals[0], vals[1], acc, time.Time{})
			if err != nil {
				return nil, fmt.Errorf("report location: %w", err)
			}
			return &CommandResult{
				Content: fmt.Sprintf("Recorded location %.5f, %.5f.", l.Latitude(), l.Longitude()),
				Records: []record.Record{l},
			}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /streams
// ---------------------------------------------------------------------------

func streamsCommand(lister StreamLister) *Command {
	return &Command{
		Name:        "streams",
		Description: "List registered streams",
		Usage:       "/streams",
		Handler: func(_ context.Context, _ *Invocation, _ *CommandContext) (*CommandResult, error) {
			stats := lister.Stats()
			if len(stats) == 0 {
				return &CommandResult{Content: "No streams registered."}, nil
			}
			var b strings.Builder
			b.WriteString("Registered streams:\n")
			for _, s := range stats {
				fmt.Fprintf(&b, "  %s (%s): %d records", s.RecordType, s.Kind, s.Pushes)
				if !s.LastPush.IsZero() {
					fmt.Fprintf(&b, ", last %s", s.LastPush.Format(time.RFC3339))
				}
				b.WriteByte('\n')
			}
			return &CommandResult{Content: b.String(), Data: stats}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /situations
// ---------------------------------------------------------------------------

func situationsCommand(lister SituationLister) *Command {
	return &Command{
		Name:        "situations",
		Description: "List registered situations",
		Usage:       "/situations",
		Handler: func(_ context.Context, _ *Invocation, _ *CommandContext) (*CommandResult, error) {
			names := lister.Situations()
			if len(names) == 0 {
				return &CommandResult{Content: "No situations registered."}, nil
			}
			return &CommandResult{
				Content: "Registered situations:\n  " + strings.Join(names, "\n  ") + "\n",
				Data:    names,
			}, nil
		},
	}
}

// ---------------------------------------------------------------------------
// /status
// ---------------------------------------------------------------------------

func statusCommand(provider StatusProvider) *Command {
	return &Command{
		Name:        "status",
		Description: "Show adapter connection status",
		Usage:       "/status",
		Handler: func(_ context.Context, _ *Invocation, _ *CommandContext) (*CommandResult, error) {
			adapters := provider.StatusAll()
			if len(adapters) == 0 {
				return &CommandResult{Content: "No adapters configured."}, nil
			}
			var b strings.Builder
			b.WriteString("Adapter status:\n")
			for _, a := range adapters {
				state := "disconnected"
				if a.Connected {
					state = "connected"
				}
				fmt.Fprintf(&b, "  %s: %s\n", a.Platform, state)
			}
			return &CommandResult{Content: b.String()}, nil
		},
	}
}
