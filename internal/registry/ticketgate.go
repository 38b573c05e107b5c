package registry

import (
	"fmt"
	"sync"
)

// WriteTools are the tool names gated on a created ticket once a parent
// ticket id is active in the session.
var WriteTools = map[string]bool{
	"create_file":  true,
	"append_file":  true,
	"apply_patch":  true,
	"run_command":  true,
	"git_commit":   true,
	"git_checkout": true,
}

const ticketFrictionMessage = "Error: a ticket needs a thorough description and explicit acceptance " +
	"criteria before it can be created. Resupply create_ticket with a multi-paragraph description " +
	"covering what changes, why, and how to verify it, plus a bulleted acceptance-criteria list."

// TicketGate implements the deliberate first-call friction on
// create_ticket and the resulting write-tool gate, both active only
// while a parent ticket id is present in context: the first
// create_ticket call in a session is rejected so the model is forced to
// resupply a thorough description; the second succeeds and unlocks write
// tools for the remainder of the session. The rejection counter is
// per-session, not per-ticket.
type TicketGate struct {
	mu            sync.Mutex
	rejectedOnce  bool
	ticketCreated bool
}

// NewTicketGate returns a gate with no prior create_ticket attempts.
func NewTicketGate() *TicketGate {
	return &TicketGate{}
}

// CheckCreateTicket reports whether this create_ticket call should
// proceed to the handler. The friction only applies while a parent
// ticket id is active (gateActive); without one, create_ticket proceeds
// immediately. If it returns false, msg is the templated friction error
// the caller must return as the tool result instead of invoking the
// handler.
func (g *TicketGate) CheckCreateTicket(gateActive bool) (proceed bool, msg string) {
	if !gateActive {
		return true, ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.rejectedOnce {
		g.rejectedOnce = true
		return false, ticketFrictionMessage
	}
	return true, ""
}

// MarkTicketCreated records that create_ticket has now succeeded,
// unlocking write tools for the rest of the session.
func (g *TicketGate) MarkTicketCreated() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticketCreated = true
}

// CheckWriteTool reports whether name may run given this gate's state. A
// write tool is blocked only while a parent ticket id is active
// (gateActive) and no ticket has yet been created in this session.
func (g *TicketGate) CheckWriteTool(name string, gateActive bool) (proceed bool, msg string) {
	if !gateActive || !WriteTools[name] {
		return true, ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ticketCreated {
		return true, ""
	}
	return false, fmt.Sprintf(
		"Error: %s requires an approved ticket first; call create_ticket with a thorough "+
			"description and acceptance criteria before making changes.", name)
}
