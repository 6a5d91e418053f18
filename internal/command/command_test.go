package command

import (
	"context"
	"fmt"
	"reflect"
	"testing"
)

func echoCommand(name string) *Command {
	return &Command{
		Name:        name,
		Description: "Echo the arguments",
		Usage:       "/" + name + " <text>",
		Handler: func(_ context.Context, inv *Invocation, cc *CommandContext) (*CommandResult, error) {
			return &CommandResult{Content: cc.Platform + ": " + inv.Raw}, nil
		},
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoCommand("echo"))
	ctx := context.Background()
	cc := &CommandContext{Platform: "test"}

	tests := []struct {
		input string
		want  string
	}{
		{"/echo hello", "test: hello"},
		{"  /ECHO   spaced out  ", "test: spaced out"},
		{"/echo", "test: "},
	}
	for _, tt := range tests {
		res, err := reg.Dispatch(ctx, tt.input, cc)
		if err != nil {
			t.Fatalf("Dispatch(%q): %v", tt.input, err)
		}
		if res.Content != tt.want {
			t.Errorf("Dispatch(%q) = %q, want %q", tt.input, res.Content, tt.want)
		}
	}

	res, err := reg.Dispatch(ctx, "/unknown", cc)
	if err != nil {
		t.Fatalf("unknown command returned error: %v", err)
	}
	if res.Content != "Unknown command: /unknown. Type /help for available commands." {
		t.Errorf("unknown command reply = %q", res.Content)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoCommand("where"))
	reg.Register(echoCommand("mood"))
	reg.Register(echoCommand("mood"))

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("got %d commands, want 2", len(list))
	}
	if list[0].Name != "mood" || list[1].Name != "where" {
		t.Errorf("order = %s, %s", list[0].Name, list[1].Name)
	}
}

func TestIsCommand(t *testing.T) {
	for input, want := range map[string]bool{
		"/mood 50 50": true,
		"  /help":     true,
		"feeling ok":  false,
		"":            false,
		"/":           false,
	} {
		if got := IsCommand(input); got != want {
			t.Errorf("IsCommand(%q) = %v", input, got)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  *Invocation
	}{
		{"/mood 70 40", &Invocation{Name: "mood", Args: []string{"70", "40"}, Raw: "70 40"}},
		{"  /WHERE 42.28, -83.74  ", &Invocation{Name: "where", Args: []string{"42.28", "-83.74"}, Raw: "42.28, -83.74"}},
		{"/where 42.28 , -83.74", &Invocation{Name: "where", Args: []string{"42.28", "-83.74"}, Raw: "42.28 , -83.74"}},
		{"/help", &Invocation{Name: "help"}},
		{"not a command", nil},
		{"/ mood", nil},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.input)
		if ok != (tt.want != nil) || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Parse(%q) = %+v, %v", tt.input, got, ok)
		}
	}
}

func TestInvocationFloats(t *testing.T) {
	inv, _ := Parse("/where 42.5, -83")
	vals, err := inv.Floats()
	if err != nil || len(vals) != 2 || vals[0] != 42.5 || vals[1] != -83 {
		t.Fatalf("Floats = %v, %v", vals, err)
	}
	for _, input := range []string{"/mood NaN 50", "/mood 50 +Inf", "/mood happy 50"} {
		inv, _ := Parse(input)
		if _, err := inv.Floats(); err == nil {
			t.Errorf("%q: accepted", input)
		}
	}
}

func TestDispatchEnforcesArguments(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register(&Command{
		Name:    "pair",
		Aliases: []string{"p"},
		Usage:   "/pair <a> <b> [c]",
		MinArgs: 2,
		MaxArgs: 3,
		Handler: func(_ context.Context, inv *Invocation, _ *CommandContext) (*CommandResult, error) {
			calls++
			if inv.Args[0] == "bad" {
				return nil, fmt.Errorf("checking %s: %w", inv.Args[0], ErrUsage)
			}
			return &CommandResult{Content: "ok"}, nil
		},
	})
	ctx := context.Background()

	for input, want := range map[string]string{
		"/pair 1 2":     "ok",
		"/p 1 2 3":      "ok",
		"/pair 1":       "Usage: /pair <a> <b> [c]",
		"/pair 1 2 3 4": "Usage: /pair <a> <b> [c]",
		"/pair bad 2":   "Usage: /pair <a> <b> [c]",
	} {
		res, err := reg.Dispatch(ctx, input, &CommandContext{})
		if err != nil {
			t.Fatalf("Dispatch(%q): %v", input, err)
		}
		if res.Content != want {
			t.Errorf("Dispatch(%q) = %q, want %q", input, res.Content, want)
		}
	}
	if calls != 3 {
		t.Fatalf("handler ran %d times, want 3", calls)
	}
	if list := reg.List(); len(list) != 1 {
		t.Fatalf("aliases listed as commands: %d", len(list))
	}
	if _, err := reg.Dispatch(ctx, "hello", &CommandContext{}); err == nil {
		t.Fatal("plain text dispatched")
	}
}
