// Package session implements the session manager: the per-session owner
// of conversation state, context budget, compaction trigger,
// mode/profile state, usage accounting, and the busy/abort lifecycle.
// Every submission exits through a deferred cleanup that clears busy and
// resolves done unconditionally.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marvin-core/marvin/internal/budget"
	"github.com/marvin-core/marvin/internal/compactor"
	"github.com/marvin-core/marvin/internal/loop"
	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/promptbuilder"
	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/internal/usage"
	"github.com/marvin-core/marvin/pkg/models"
)

// ErrBusy is returned by Submit when a submission is already in flight.
// It surfaces to the caller, never to the model.
var ErrBusy = errors.New("Error: session busy")

// Callbacks are the hooks a caller (REPL or non-interactive runner) wires
// into one Submit call. All fields are optional.
type Callbacks struct {
	OnDelta    func(text string)
	OnToolCall func(names []string)
	OnError    func(err error)
	OnComplete func(result Result)
}

// Result is what one Submit call returns.
type Result struct {
	Message models.Message
	Usage   providers.Usage
}

// ProviderSwitch bundles a new adapter with the model id the session
// should record against the usage tracker and request in ChatOptions.
type ProviderSwitch struct {
	Provider providers.Provider
	Model    string
}

// Config bundles a new Session's collaborators and initial state.
type Config struct {
	Registry   *registry.Registry
	Profile    *profile.Profile
	Provider   providers.Provider
	Model      string
	Mode       models.Mode
	WorkingDir string

	// NonInteractive mirrors ToolContext.NonInteractive: run_command
	// skips shell confirmation when true.
	NonInteractive bool
	ConfirmCommand func(command string) bool

	// ParentTicketID activates the ticket gate for write tools when
	// non-empty.
	ParentTicketID string

	Thresholds budget.Thresholds
	RoundCap   int

	// AuditToolCalls enables the JSONL audit line per tool call under
	// <profileDir>/tool-calls.jsonl.
	AuditToolCalls bool

	NtfyTopic string
}

// Session owns one conversation's state exclusively: messages, mode,
// provider, and the live profile reference.
type Session struct {
	mu sync.Mutex

	busy        bool
	messages    []models.Message
	mode        models.Mode
	shellMode   bool
	workingDir  string
	ntfyTopic   string
	abortCancel context.CancelFunc
	done        chan struct{}

	registry       *registry.Registry
	gate           *registry.TicketGate
	prof           *profile.Profile
	provider       providers.Provider
	model          string
	nonInteractive bool
	confirmCommand func(command string) bool
	parentTicketID string
	thresholds     budget.Thresholds
	roundCap       int
	auditToolCalls bool
	tracker        *usage.Tracker
}

// New constructs a Session ready to accept Submit calls.
func New(cfg Config) *Session {
	thresholds := cfg.Thresholds
	if thresholds == (budget.Thresholds{}) {
		thresholds = budget.DefaultThresholds()
	}
	var persist usage.Persister
	if cfg.Profile != nil {
		persist = auditPersister{p: cfg.Profile, audit: cfg.AuditToolCalls}
	}
	return &Session{
		messages:       nil,
		mode:           cfg.Mode,
		workingDir:     cfg.WorkingDir,
		ntfyTopic:      cfg.NtfyTopic,
		registry:       cfg.Registry,
		gate:           registry.NewTicketGate(),
		prof:           cfg.Profile,
		provider:       cfg.Provider,
		model:          cfg.Model,
		nonInteractive: cfg.NonInteractive,
		confirmCommand: cfg.ConfirmCommand,
		parentTicketID: cfg.ParentTicketID,
		thresholds:     thresholds,
		roundCap:       cfg.RoundCap,
		auditToolCalls: cfg.AuditToolCalls,
		tracker:        usage.NewTracker(persist),
	}
}

// Messages returns a copy of the in-memory conversation history.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// IsBusy reports whether a submission is currently in flight.
func (s *Session) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Submit drives one full turn: pre-compaction, system-prompt assembly,
// tool filtering, the agent loop, usage recording, and chat-log
// persistence. Every exit path resolves done and clears busy.
func (s *Session) Submit(ctx context.Context, prompt string, cb Callbacks) (Result, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Result{}, ErrBusy
	}
	s.busy = true
	runCtx, cancel := context.WithCancel(ctx)
	s.abortCancel = cancel
	doneCh := make(chan struct{})
	s.done = doneCh
	mode := s.mode
	codingMode := mode.CodingMode()
	workingDir := s.workingDir
	history := append([]models.Message{}, s.messages...)
	provider := s.provider
	model := s.model
	nonInteractive := s.nonInteractive
	confirmCommand := s.confirmCommand
	parentTicketID := s.parentTicketID
	thresholds := s.thresholds
	roundCap := s.roundCap
	prof := s.prof
	reg := s.registry
	gate := s.gate
	tracker := s.tracker
	s.mu.Unlock()

	var finalResult Result
	var runErr error

	defer func() {
		// Callbacks fire before busy/done resolve: a waiter unblocked by
		// Done() or a clear IsBusy() must already see OnComplete's side
		// effects.
		if runErr != nil {
			if cb.OnError != nil {
				cb.OnError(runErr)
			}
		} else if cb.OnComplete != nil {
			cb.OnComplete(finalResult)
		}
		s.mu.Lock()
		s.busy = false
		s.abortCancel = nil
		close(doneCh)
		s.mu.Unlock()
	}()

	if provider == nil {
		runErr = fmt.Errorf("session: no provider configured")
		return Result{}, runErr
	}

	var profileView promptbuilder.ProfileView
	var profileDir string
	if prof != nil {
		profileView = promptbuilder.ProfileView{
			Name:        prof.Name,
			Preferences: prof.Preferences,
			SavedPlaces: prof.SavedPlaces,
			ChatLog:     prof.ChatLog,
		}
		profileDir = prof.Dir()
	}
	systemPrompt := promptbuilder.Build(profileView, mode, codingMode, workingDir)

	userMsg := models.Message{Role: models.RoleUser, Content: prompt, CreatedAt: time.Now()}
	submission := make([]models.Message, 0, len(history)+2)
	submission = append(submission, models.Message{Role: models.RoleSystem, Content: systemPrompt, CreatedAt: time.Now()})
	submission = append(submission, history...)
	submission = append(submission, userMsg)

	toolCtx := &registry.ToolContext{
		WorkingDir:     workingDir,
		CodingMode:     codingMode,
		Mode:           mode,
		NonInteractive: nonInteractive,
		ProfileDir:     profileDir,
		Profile:        prof,
		ConfirmCommand: confirmCommand,
		ParentTicketID: parentTicketID,
	}

	tracked := func(names []string) {
		for _, name := range names {
			tracker.RecordToolCall(name)
		}
		if cb.OnToolCall != nil {
			cb.OnToolCall(names)
		}
	}

	var backup compactor.BackupWriter
	if prof != nil {
		backup = prof
	}

	loopCfg := loop.Config{
		Provider:   provider,
		Registry:   reg,
		ToolDefs:   reg.ForMode(mode),
		ToolCtx:    toolCtx,
		Gate:       gate,
		Thresholds: thresholds,
		Summarizer: providerSummarizer{provider: provider, model: model},
		Backup:     backup,
		RoundCap:   roundCap,
	}

	res, newHistory, err := loop.Run(runCtx, loopCfg, submission, loop.Callbacks{
		OnDelta:    cb.OnDelta,
		OnToolCall: tracked,
		OnError:    cb.OnError,
	})

	if err != nil {
		runErr = err
		return Result{}, err
	}

	tracker.RecordTurn(provider.Name(), model, res.Usage.InputTokens, res.Usage.OutputTokens)

	s.mu.Lock()
	// newHistory includes the system prompt the loop prepended; drop it
	// before storing so the session's own messages stay system-message
	// free (the builder regenerates it fresh on the next submission).
	if len(newHistory) > 0 && newHistory[0].Role == models.RoleSystem {
		newHistory = newHistory[1:]
	}
	s.messages = newHistory
	s.mu.Unlock()

	if prof != nil {
		_ = prof.AppendChatLog(models.ChatLogEntry{Role: string(models.RoleUser), Text: prompt, Time: userMsg.CreatedAt})
		_ = prof.AppendChatLog(models.ChatLogEntry{Role: string(models.RoleAssistant), Text: res.Message.Content, Time: time.Now()})
	}

	finalResult = Result{Message: res.Message, Usage: res.Usage}
	return finalResult, nil
}

// ToggleCodingMode flips between surf and coding mode, returning the new
// derived CodingMode value.
func (s *Session) ToggleCodingMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.CodingMode() {
		s.mode = models.ModeSurf
	} else {
		s.mode = models.ModeCoding
	}
	return s.mode.CodingMode()
}

// SetMode sets the session's mode directly.
func (s *Session) SetMode(mode models.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// GetMode returns the session's current mode.
func (s *Session) GetMode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ToggleShellMode flips the UI-only shell-mode flag and returns the new
// value.
func (s *Session) ToggleShellMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shellMode = !s.shellMode
	return s.shellMode
}

// UndoLast removes the last in-memory message and pops one chat-log
// entry, returning the removed message's role. If there is no in-memory
// message, it still pops one chat-log entry and reports ok=false.
func (s *Session) UndoLast() (role models.Role, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prof != nil {
		s.prof.PopChatLog()
	}
	if len(s.messages) == 0 {
		return "", false
	}
	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	return last.Role, true
}

// Abort signals the in-flight submission's context, if any. The
// round-in-progress provider call rejects and the loop exits through
// Submit's deferred cleanup.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.abortCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done returns the channel that closes when the current (or most recent)
// submission's cleanup has run, or nil if Submit has never been called.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// SwitchProfile loads the named profile and makes it the session's live
// profile: every subsequent submission's tool context and prompt builder
// see the new profile, and usage records append to its directory. The
// conversation history is untouched; only the profile state changes.
func (s *Session) SwitchProfile(name string) (*profile.Profile, error) {
	p, err := profile.Load(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.prof = p
	audit := s.auditToolCalls
	s.mu.Unlock()
	s.tracker.SetPersister(auditPersister{p: p, audit: audit})
	_ = profile.WriteLastProfile(name)
	return p, nil
}

// auditPersister forwards usage records to the profile unconditionally
// and tool-call audit lines only when auditing is enabled.
type auditPersister struct {
	p     *profile.Profile
	audit bool
}

func (a auditPersister) AppendUsageRecord(v any) error { return a.p.AppendUsageRecord(v) }

func (a auditPersister) AppendToolCallRecord(v any) error {
	if !a.audit {
		return nil
	}
	return a.p.AppendToolCallRecord(v)
}

// Profile returns the session's live profile, or nil if none is loaded.
func (s *Session) Profile() *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prof
}

// SwitchProvider destroys the old adapter and installs the new one.
func (s *Session) SwitchProvider(ps ProviderSwitch) error {
	s.mu.Lock()
	old := s.provider
	s.provider = ps.Provider
	s.model = ps.Model
	s.mu.Unlock()
	if old != nil {
		return old.Destroy()
	}
	return nil
}

// Destroy aborts any in-flight submission, persists nothing further (the
// tracker already write-throughs per turn), and destroys the current
// provider adapter.
func (s *Session) Destroy() error {
	s.Abort()
	s.mu.Lock()
	provider := s.provider
	s.mu.Unlock()
	if provider != nil {
		return provider.Destroy()
	}
	return nil
}

// Usage exposes the session's usage tracker for the `usage` REPL command
// and the MARVIN_COST sentinel.
func (s *Session) Usage() *usage.Tracker {
	return s.tracker
}

// providerSummarizer adapts a providers.Provider into compactor.Summarizer
// using the same model the session is currently talking to.
type providerSummarizer struct {
	provider providers.Provider
	model    string
}

const summarizePrompt = "Summarize the conversation transcript below faithfully and concisely. " +
	"Preserve concrete decisions, stated user preferences, and tool findings. Do not invent facts " +
	"not present in the transcript."

func (p providerSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: summarizePrompt},
		{Role: models.RoleUser, Content: transcript},
	}
	res, err := p.provider.Chat(ctx, messages, providers.ChatOptions{Model: p.model})
	if err != nil {
		return "", err
	}
	return res.Message.Content, nil
}
