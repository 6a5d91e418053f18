package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/minuku/internal/record"
)

// Describe renders one record as a short line for a chat reply.
func Describe(env record.Envelope) string {
	r, err := env.Unwrap()
	if err != nil {
		return string(env.Type)
	}
	at := r.CreatedAt().Format("Jan 2 15:04")

	switch v := r.(type) {
	case *record.Mood:
		return fmt.Sprintf("mood %.0f, energy %.0f (%s)", v.MoodLevel(), v.EnergyLevel(), at)
	case *record.Location:
		if v.Accuracy() > 0 {
			return fmt.Sprintf("location %.5f, %.5f ±%.0fm (%s)", v.Latitude(), v.Longitude(), v.Accuracy(), at)
		}
		return fmt.Sprintf("location %.5f, %.5f (%s)", v.Latitude(), v.Longitude(), at)
	case *record.SemanticLocation:
		return fmt.Sprintf("at %s (%s)", v.Place(), at)
	}

	keys := make([]string, 0, len(env.Data))
	for k := range env.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = fmt.Sprintf("%s=%v", k, env.Data[k])
	}
	return fmt.Sprintf("%s %s (%s)", env.Type, strings.Join(fields, " "), at)
}

// Text is the message content followed by one line per attached record.
func (m *OutboundMessage) Text() string {
	if len(m.Records) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, env := range m.Records {
		b.WriteString("\n  ")
		b.WriteString(Describe(env))
	}
	return b.String()
}
