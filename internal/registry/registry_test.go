package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/marvin-core/marvin/pkg/models"
)

func noopHandler(ctx context.Context, tc *ToolContext, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	def := &ToolDef{Name: "read_file", Handler: noopHandler}
	if err := r.Register(def); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(def); err == nil {
		t.Fatal("expected error re-registering an existing tool name")
	}
}

func TestForMode(t *testing.T) {
	r := New()
	must := func(name string, cat Category) {
		if err := r.Register(&ToolDef{Name: name, Category: cat, Handler: noopHandler}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	must("read_file", CategoryAlways)
	must("apply_patch", CategoryAlways)
	must("web_search", CategoryAlways)
	must("run_tests", CategoryCoding)
	must("calendar_create_event", CategoryReadonly)

	tests := []struct {
		mode       models.Mode
		wantNames  []string
		wantAbsent []string
	}{
		{models.ModeSurf, []string{"read_file", "web_search"}, []string{"apply_patch", "run_tests"}},
		{models.ModeCoding, []string{"run_tests", "web_search"}, []string{}},
		{models.ModeLockin, []string{"run_tests", "calendar_create_event"}, []string{}},
	}

	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			got := r.ForMode(tc.mode)
			names := make(map[string]bool, len(got))
			for _, d := range got {
				names[d.Name] = true
			}
			for _, want := range tc.wantNames {
				if !names[want] {
					t.Errorf("mode %s: expected %q to be visible, names=%v", tc.mode, want, names)
				}
			}
			for _, absent := range tc.wantAbsent {
				if names[absent] {
					t.Errorf("mode %s: expected %q to be hidden", tc.mode, absent)
				}
			}
		})
	}
}

func TestCoerceArguments(t *testing.T) {
	def := &ToolDef{
		Name: "create_file",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []any{"path"},
		},
	}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"empty string becomes empty object", "", false},
		{"plain object", `{"path":"a.txt"}`, false},
		{"double encoded", `"{\"path\":\"a.txt\"}"`, false},
		{"missing required field", `{}`, true},
		{"not json", `not json at all`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CoerceArguments(def, tc.raw)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got none")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCoerceArgumentsRawPatch(t *testing.T) {
	def := &ToolDef{Name: "apply_patch"}
	raw := "*** Begin Patch\n*** Update File: a.txt\n*** End Patch"
	args, err := CoerceArguments(def, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	patch, ok := args["__raw_patch"].(string)
	if !ok || !strings.HasPrefix(patch, "*** Begin Patch") {
		t.Fatalf("expected __raw_patch field with the raw text, got %v", args)
	}
}

func TestResolvePathRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"absolute", "/etc/passwd"},
		{"dot dot", "../outside.txt"},
		{"nested dot dot", "sub/../../outside.txt"},
		{"tickets root", ".tickets/secret.json"},
		{"tickets nested", ".tickets/sub/secret.json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolvePath(dir, tc.path)
			if err == nil {
				t.Fatalf("expected rejection for path %q", tc.path)
			}
			if !strings.HasPrefix(err.Error(), "Error:") {
				t.Fatalf("expected error to start with 'Error:', got %q", err.Error())
			}
		})
	}
}

func TestResolvePathAllowsRelative(t *testing.T) {
	dir := t.TempDir()
	resolved, err := ResolvePath(dir, "sub/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(resolved, "sub/file.txt") {
		t.Fatalf("expected resolved path to end with sub/file.txt, got %q", resolved)
	}
}

func TestCheckLargeFileGuard(t *testing.T) {
	if err := CheckLargeFileGuard("big.txt", LargeFileThresholdBytes+1, 500, false); err == nil {
		t.Fatal("expected refusal for large file without a line window")
	}
	if err := CheckLargeFileGuard("big.txt", LargeFileThresholdBytes+1, 500, true); err != nil {
		t.Fatalf("expected no error when a line window is supplied: %v", err)
	}
	if err := CheckLargeFileGuard("small.txt", 100, 5, false); err != nil {
		t.Fatalf("expected no error for a small file: %v", err)
	}
}

func TestTicketGateFriction(t *testing.T) {
	g := NewTicketGate()
	proceed, msg := g.CheckCreateTicket(true)
	if proceed {
		t.Fatal("expected the first create_ticket call to be rejected")
	}
	if !strings.Contains(msg, "acceptance criteria") {
		t.Fatalf("expected the friction message to demand acceptance criteria, got %q", msg)
	}
	proceed, _ = g.CheckCreateTicket(true)
	if !proceed {
		t.Fatal("expected the second create_ticket call to succeed")
	}
}

func TestTicketGateFrictionInactiveWithoutParentTicket(t *testing.T) {
	g := NewTicketGate()
	proceed, _ := g.CheckCreateTicket(false)
	if !proceed {
		t.Fatal("expected create_ticket to proceed immediately with no parent ticket active")
	}
	// The no-op call must not consume the friction rejection.
	proceed, _ = g.CheckCreateTicket(true)
	if proceed {
		t.Fatal("expected the first gated create_ticket call to still be rejected")
	}
}

func TestTicketGateBlocksWriteTools(t *testing.T) {
	g := NewTicketGate()
	proceed, _ := g.CheckWriteTool("create_file", true)
	if proceed {
		t.Fatal("expected write tool to be blocked before a ticket exists")
	}
	g.MarkTicketCreated()
	proceed, _ = g.CheckWriteTool("create_file", true)
	if !proceed {
		t.Fatal("expected write tool to proceed once a ticket has been created")
	}
}

func TestTicketGateInactiveWhenNoParentTicket(t *testing.T) {
	g := NewTicketGate()
	proceed, _ := g.CheckWriteTool("create_file", false)
	if !proceed {
		t.Fatal("expected write tool to proceed when the ticket gate is not active")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New()
	tc := &ToolContext{}
	result := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "nope"}, tc, NewTicketGate())
	if !result.IsError || !strings.Contains(result.Content, "Unknown tool") {
		t.Fatalf("expected unknown-tool error, got %+v", result)
	}
}

func TestExecuteHandlerPanicBecomesError(t *testing.T) {
	r := New()
	_ = r.Register(&ToolDef{
		Name: "boom",
		Handler: func(ctx context.Context, tc *ToolContext, args map[string]any) (string, error) {
			panic("kaboom")
		},
	})
	tc := &ToolContext{}
	result := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "boom"}, tc, NewTicketGate())
	if !result.IsError || !strings.Contains(result.Content, "panicked") {
		t.Fatalf("expected panic to be converted to an error result, got %+v", result)
	}
}

func TestStripInternalFields(t *testing.T) {
	def := &ToolDef{
		Name: "apply_patch",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":         map[string]any{"type": "string"},
				"__raw_patch":  map[string]any{"type": "string"},
			},
			"required": []any{"path", "__raw_patch"},
		},
	}
	spec := def.ToFunctionSpec()
	props, _ := spec.Function.Parameters["properties"].(map[string]any)
	if _, ok := props["__raw_patch"]; ok {
		t.Fatal("expected __raw_patch to be stripped from the projected schema")
	}
	if _, ok := props["path"]; !ok {
		t.Fatal("expected path to remain in the projected schema")
	}
	required, _ := spec.Function.Parameters["required"].([]any)
	for _, r := range required {
		if r == "__raw_patch" {
			t.Fatal("expected __raw_patch to be stripped from required")
		}
	}
}
