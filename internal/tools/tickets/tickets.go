// Package tickets implements create_ticket: a `.tickets/` on-disk
// store under the working directory. The registry's TicketGate enforces
// the deliberate two-call friction before this handler is even reached.
package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marvin-core/marvin/internal/registry"
)

const ticketsDirName = ".tickets"

// Ticket is one persisted ticket record under <workingDir>/.tickets/.
type Ticket struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Criteria    []string  `json:"acceptance_criteria"`
	CreatedAt   time.Time `json:"created_at"`
}

// Defs returns the ticket tool definitions, ready to register. The
// registry.TicketGate's CheckCreateTicket runs ahead of this handler;
// when a parent ticket is active, the friction rejection has already
// happened once for this session by the time Handler is invoked.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{createTicketDef()}
}

func createTicketDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name: "create_ticket",
		Description: "Record a ticket for the current task: a title, a thorough multi-paragraph " +
			"description, and bulleted acceptance criteria.",
		Category: registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"acceptance_criteria": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{"title", "description"},
		},
		Handler: createTicket,
	}
}

func createTicket(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)
	if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
		return "Error: title and description are required", nil
	}

	var criteria []string
	if raw, ok := args["acceptance_criteria"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				criteria = append(criteria, s)
			}
		}
	}

	dir := filepath.Join(tc.WorkingDir, ticketsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Sprintf("Error: create ticket store: %v", err), nil
	}

	id, err := nextID(dir)
	if err != nil {
		return fmt.Sprintf("Error: allocate ticket id: %v", err), nil
	}

	ticket := Ticket{
		ID:          id,
		Title:       title,
		Description: description,
		Criteria:    criteria,
		CreatedAt:   time.Now(),
	}
	if err := write(dir, ticket); err != nil {
		return fmt.Sprintf("Error: write ticket: %v", err), nil
	}

	return fmt.Sprintf("Created ticket %s: %s", ticket.ID, ticket.Title), nil
}

func nextID(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	max := 0
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if !strings.HasPrefix(name, "T-") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "T-")); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("T-%d", max+1), nil
}

func write(dir string, t Ticket) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, t.ID+".json"), data, 0o644)
}

// List reads every persisted ticket under <workingDir>/.tickets/, sorted
// by ID. Used by the `tickets` REPL surface and for tests.
func List(workingDir string) ([]Ticket, error) {
	dir := filepath.Join(workingDir, ticketsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Ticket
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var t Ticket
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("tickets: parse %s: %w", e.Name(), err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
