package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/marvin-core/marvin/pkg/models"
)

// Execute validates and runs one tool call end to end: coercion, the
// ticket gate, shell confirmation, and the handler itself, always
// returning a ToolResult rather than a Go error so a failing tool can
// never crash the session.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall, tc *ToolContext, gate *TicketGate) models.ToolResult {
	def, ok := r.Get(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("Error: Unknown tool: %s. Available: %v", call.Name, r.Names()))
	}

	gateActive := tc.ParentTicketID != ""
	if call.Name == "create_ticket" {
		if proceed, msg := gate.CheckCreateTicket(gateActive); !proceed {
			return errorResult(call.ID, msg)
		}
	} else if proceed, msg := gate.CheckWriteTool(call.Name, gateActive); !proceed {
		return errorResult(call.ID, msg)
	}

	args, err := CoerceArguments(def, call.Arguments)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("Error: %s", err))
	}

	if def.RequiresConfirmation && !tc.NonInteractive && tc.ConfirmCommand != nil {
		command, _ := args["command"].(string)
		if !tc.ConfirmCommand(command) {
			return errorResult(call.ID, "Error: user declined the shell confirmation for: "+command)
		}
	}

	content, err := runHandler(ctx, def, tc, args)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("Error: %s", err))
	}

	if call.Name == "create_ticket" && !strings.HasPrefix(content, "Error:") {
		gate.MarkTicketCreated()
	}

	return models.ToolResult{ToolCallID: call.ID, Content: content}
}

// runHandler isolates the handler invocation so a panicking handler
// surfaces as an "Error:" result instead of crashing the loop.
func runHandler(ctx context.Context, def *ToolDef, tc *ToolContext, args map[string]any) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", def.Name, rec)
		}
	}()
	return def.Handler(ctx, tc, args)
}

func errorResult(toolCallID, content string) models.ToolResult {
	return models.ToolResult{ToolCallID: toolCallID, Content: content, IsError: true}
}
