package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nidhogg/minuku/internal/record"
)

// ErrUsage makes Dispatch answer with the command's usage line instead of
// an error.
var ErrUsage = errors.New("bad command arguments")

// Command represents a slash command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// MinArgs and MaxArgs bound the argument count. A MaxArgs of 0 means
	// no upper bound.
	MinArgs int
	MaxArgs int
	Handler CommandHandler
}

// CommandHandler is the function signature for command execution.
type CommandHandler func(ctx context.Context, inv *Invocation, cc *CommandContext) (*CommandResult, error)

// CommandContext identifies who issued a command and where.
type CommandContext struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
}

// CommandResult holds the output of a command. Records are the records the
// command stored, in the order it stored them.
type CommandResult struct {
	Content string          `json:"content"`
	Records []record.Record `json:"-"`
	Data    interface{}     `json:"data,omitempty"`
}

// Invocation is a parsed slash command line.
type Invocation struct {
	Name string
	// Args are the whitespace-separated arguments with separating commas
	// removed, so "/where 42.28, -83.74" has two.
	Args []string
	// Raw is everything after the command name, trimmed.
	Raw string
}

// Parse splits a slash command line. ok is false if input is not a command.
func Parse(input string) (inv *Invocation, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil, false
	}
	name, raw, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	if name == "" {
		return nil, false
	}
	inv = &Invocation{Name: strings.ToLower(name), Raw: strings.TrimSpace(raw)}
	for _, f := range strings.Fields(inv.Raw) {
		if f = strings.Trim(f, ","); f != "" {
			inv.Args = append(inv.Args, f)
		}
	}
	return inv, true
}

// Floats parses every argument as a finite number.
func (inv *Invocation) Floats() ([]float64, error) {
	out := make([]float64, len(inv.Args))
	for i, a := range inv.Args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a number", ErrUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
	mu       sync.RWMutex
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command to the registry, replacing any command of the
// same name.
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = cmd
	for _, a := range cmd.Aliases {
		r.aliases[a] = cmd.Name
	}
}

// IsCommand reports whether input looks like a slash command.
func IsCommand(input string) bool {
	_, ok := Parse(input)
	return ok
}

// Dispatch parses a slash command string and executes the matching handler.
func (r *Registry) Dispatch(ctx context.Context, input string, cc *CommandContext) (*CommandResult, error) {
	inv, ok := Parse(input)
	if !ok {
		return nil, fmt.Errorf("not a command: %q", input)
	}
	cmd := r.lookup(inv.Name)
	if cmd == nil {
		return &CommandResult{
			Content: fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", inv.Name),
		}, nil
	}

	n := len(inv.Args)
	if n < cmd.MinArgs || (cmd.MaxArgs > 0 && n > cmd.MaxArgs) {
		return usage(cmd), nil
	}
	res, err := cmd.Handler(ctx, inv, cc)
	if errors.Is(err, ErrUsage) {
		return usage(cmd), nil
	}
	return res, err
}

func (r *Registry) lookup(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if target, ok := r.aliases[name]; ok {
		return r.commands[target]
	}
	return nil
}

func usage(cmd *Command) *CommandResult {
	return &CommandResult{Content: "Usage: " + cmd.Usage}
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
