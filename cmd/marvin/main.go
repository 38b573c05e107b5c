// Package main is the CLI entry point for Marvin, an interactive
// terminal assistant that drives LLMs through a tool catalogue: one
// cobra command carrying the full flag surface, a non-interactive
// single-shot mode, and the interactive REPL with its typed commands.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/spf13/cobra"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/providers"
	"github.com/marvin-core/marvin/internal/providers/localserver"
	"github.com/marvin-core/marvin/internal/providers/openaicompat"
	"github.com/marvin-core/marvin/internal/providers/vendorsdk"
	"github.com/marvin-core/marvin/internal/session"
	"github.com/marvin-core/marvin/internal/tools"
	"github.com/marvin-core/marvin/internal/tools/notify"
	"github.com/marvin-core/marvin/internal/tools/websearch"
	"github.com/marvin-core/marvin/pkg/models"
)

// Build information, populated by -X ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var opts struct {
	provider       string
	model          string
	plain          bool
	curses         bool
	nonInteractive bool
	prompt         string
	workingDir     string
	mode           string
	ntfyTopic      string
	profileName    string
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "marvin [prompt]",
		Short:        "Marvin - an interactive terminal assistant",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && opts.prompt == "" {
				opts.prompt = strings.Join(args, " ")
			}
			return run(cmd.Context())
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.provider, "provider", "anthropic", "provider: anthropic|openai|local-server|local-daemon")
	flags.StringVar(&opts.model, "model", "", "override the provider's default model")
	flags.BoolVar(&opts.plain, "plain", false, "force plain-text UI")
	flags.BoolVar(&opts.curses, "curses", false, "force the curses-style UI")
	flags.BoolVar(&opts.nonInteractive, "non-interactive", false, "single-shot mode; requires --prompt or piped stdin")
	flags.StringVar(&opts.prompt, "prompt", "", "inline initial prompt")
	flags.StringVar(&opts.workingDir, "working-dir", "", "working directory; implies coding capability")
	flags.StringVar(&opts.mode, "mode", "surf", "surf|coding|lockin")
	flags.StringVar(&opts.ntfyTopic, "ntfy", "", "subscribe to a push-notification topic")
	flags.StringVar(&opts.profileName, "profile", "default", "profile name under ~/.marvin/profiles/")
	return rootCmd
}

func run(ctx context.Context) error {
	mode := models.Mode(strings.ToLower(strings.TrimSpace(opts.mode)))
	switch mode {
	case models.ModeSurf, models.ModeCoding, models.ModeLockin:
	default:
		return fmt.Errorf("unknown mode %q: expected surf, coding, or lockin", opts.mode)
	}
	if opts.workingDir != "" {
		if info, err := os.Stat(opts.workingDir); err != nil || !info.IsDir() {
			return fmt.Errorf("working dir %q does not exist", opts.workingDir)
		}
		if mode == models.ModeSurf {
			mode = models.ModeCoding
		}
	}

	prof, err := profile.Load(opts.profileName)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	_ = profile.WriteLastProfile(opts.profileName)

	provider, model, err := buildProvider(opts.provider, opts.model)
	if err != nil {
		return err
	}

	reg, err := tools.Register(tools.Config{
		WebSearch: websearch.Config{},
		Notify:    notify.Config{},
	})
	if err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	sess := session.New(session.Config{
		Registry:       reg,
		Profile:        prof,
		Provider:       provider,
		Model:          model,
		Mode:           mode,
		WorkingDir:     opts.workingDir,
		NonInteractive: opts.nonInteractive,
		ConfirmCommand: confirmCommand,
		AuditToolCalls: true,
		NtfyTopic:      opts.ntfyTopic,
	})
	defer sess.Destroy()

	if opts.ntfyTopic != "" {
		if err := recordNtfySubscription(prof, opts.ntfyTopic); err != nil {
			fmt.Fprintln(os.Stderr, "Error: subscribe to", opts.ntfyTopic, err)
		}
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.nonInteractive {
		return runNonInteractive(runCtx, sess)
	}
	return runREPL(runCtx, sess, prof)
}

// recordNtfySubscription seeds the profile's subscription list from
// --ntfy at startup, the same JSON-file write notify_subscribe performs
// once the model calls it mid-session.
func recordNtfySubscription(prof *profile.Profile, topic string) error {
	path := prof.NtfySubscriptionsPath()
	var subs []models.NtfySubscription
	if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
		if err := json.Unmarshal(data, &subs); err != nil {
			return err
		}
	}
	for _, s := range subs {
		if s.Topic == topic {
			return nil
		}
	}
	subs = append(subs, models.NtfySubscription{Topic: topic, AddedAt: time.Now()})
	payload, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// buildProvider is the provider factory: selection by name flows to one
// of the three adapter families, with credentials read from environment
// variables rather than flags.
func buildProvider(name, model string) (providers.Provider, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "":
		p, err := vendorsdk.New(vendorsdk.Config{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  firstNonEmpty(model, "claude-sonnet-4-20250514"),
		})
		if err != nil {
			return nil, "", err
		}
		return p, firstNonEmpty(model, "claude-sonnet-4-20250514"), nil
	case "openai":
		m := firstNonEmpty(model, "gpt-4o")
		p, err := openaicompat.New(openaicompat.Config{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Name:   "openai",
			Model:  m,
		})
		if err != nil {
			return nil, "", err
		}
		return p, m, nil
	case "local-server", "local-daemon":
		base := os.Getenv("MARVIN_LOCAL_BASE_URL")
		if base == "" {
			base = "http://localhost:11434/v1"
		}
		m := firstNonEmpty(model, "llama3")
		p, err := localserver.New(localserver.Config{
			BaseURL: base,
			Name:    strings.ToLower(name),
			Model:   m,
		})
		if err != nil {
			return nil, "", err
		}
		return p, m, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q: expected anthropic, openai, local-server, or local-daemon", name)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// confirmCommand prompts on stdin/stderr before a run_command call in
// interactive mode.
func confirmCommand(command string) bool {
	fmt.Fprintf(os.Stderr, "Run shell command? %s [y/N] ", command)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// runNonInteractive implements single-shot mode: a prompt from --prompt
// or piped stdin, one submission, the final text to stdout, and the
// MARVIN_COST sentinel on stderr.
func runNonInteractive(ctx context.Context, sess *session.Session) error {
	prompt := opts.prompt
	if strings.TrimSpace(prompt) == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		emitCostSentinel(sess)
		return fmt.Errorf("empty prompt")
	}

	result, err := sess.Submit(ctx, prompt, session.Callbacks{})
	emitCostSentinel(sess)
	if err != nil {
		return err
	}
	fmt.Println(result.Message.Content)
	return nil
}

func emitCostSentinel(sess *session.Session) {
	totals := sess.Usage().Snapshot()
	payload, err := json.Marshal(totals)
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "MARVIN_COST:%s\n", payload)
}

// runREPL implements the interactive typed-command surface.
func runREPL(ctx context.Context, sess *session.Session, prof *profile.Profile) error {
	curses := opts.curses || (!opts.plain && term.IsTerminal(int(os.Stdin.Fd())))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptGlyph(curses))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		prof = sess.Profile()
		_ = prof.AppendInputHistory(line)

		switch {
		case line == "quit" || line == "exit":
			return nil
		case line == "!code":
			fmt.Printf("coding mode: %v\n", sess.ToggleCodingMode())
		case strings.HasPrefix(line, "!mode"):
			handleModeCommand(sess, strings.TrimSpace(strings.TrimPrefix(line, "!mode")))
		case line == "!sh" || line == "!shell":
			fmt.Printf("shell mode: %v\n", sess.ToggleShellMode())
		case strings.HasPrefix(line, "!sh ") || strings.HasPrefix(line, "!shell "):
			runInlineShell(ctx, sess, line)
		case strings.HasPrefix(line, "!model"):
			handleModelCommand(sess, strings.TrimSpace(strings.TrimPrefix(line, "!model")))
		case line == "usage":
			fmt.Println(sess.Usage().Snapshot().Summary())
		case line == "preferences":
			printPreferences(prof)
		case strings.HasPrefix(line, "profiles"):
			handleProfilesCommand(sess, strings.TrimSpace(strings.TrimPrefix(line, "profiles")))
		case line == "saved":
			printSavedPlaces(prof)
		case strings.HasPrefix(line, "!"):
			runInlineShell(ctx, sess, "!sh "+strings.TrimPrefix(line, "!"))
		default:
			submitInteractive(ctx, sess, line)
		}
	}
	return scanner.Err()
}

func promptGlyph(curses bool) string {
	if curses {
		return "\n› "
	}
	return "> "
}

func submitInteractive(ctx context.Context, sess *session.Session, line string) {
	_, err := sess.Submit(ctx, line, session.Callbacks{
		OnDelta: func(text string) { fmt.Print(text) },
		OnToolCall: func(names []string) {
			fmt.Fprintf(os.Stderr, "[tools: %s]\n", strings.Join(names, ", "))
		},
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		},
		OnComplete: func(session.Result) {
			fmt.Println()
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func handleModeCommand(sess *session.Session, arg string) {
	if arg == "" {
		fmt.Println(sess.GetMode())
		return
	}
	mode := models.Mode(strings.ToLower(arg))
	switch mode {
	case models.ModeSurf, models.ModeCoding, models.ModeLockin:
		sess.SetMode(mode)
		fmt.Printf("mode: %s\n", mode)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", arg)
	}
}

func handleModelCommand(sess *session.Session, arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		fmt.Println(opts.provider, opts.model)
		return
	}
	providerName := fields[0]
	model := ""
	if len(fields) > 1 {
		model = fields[1]
	}
	p, resolvedModel, err := buildProvider(providerName, model)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	if err := sess.SwitchProvider(session.ProviderSwitch{Provider: p, Model: resolvedModel}); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	opts.provider, opts.model = providerName, resolvedModel
	fmt.Printf("switched to %s (%s)\n", providerName, resolvedModel)
}

// runInlineShell forwards a "!<cmd>" or "!sh <cmd>" line to the model as
// an ordinary submission, so run_command's confirmation and ticket-gate
// discipline still apply rather than bypassing them with a direct exec.
func runInlineShell(ctx context.Context, sess *session.Session, line string) {
	command := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "!shell"), "!sh"))
	if command == "" {
		return
	}
	submitInteractive(ctx, sess, fmt.Sprintf("Run this shell command and report its output: %s", command))
}

func printPreferences(prof *profile.Profile) {
	if len(prof.Preferences) == 0 {
		fmt.Println("no preferences set")
		return
	}
	for k, v := range prof.Preferences {
		fmt.Printf("%s: %v\n", k, v)
	}
}

// handleProfilesCommand lists profiles with no argument, or switches the
// session's live profile when a name is given.
func handleProfilesCommand(sess *session.Session, arg string) {
	if arg == "" {
		names, err := profile.ListProfiles()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}
	p, err := sess.SwitchProfile(arg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	opts.profileName = p.Name
	fmt.Printf("switched to profile %s\n", p.Name)
}

func printSavedPlaces(prof *profile.Profile) {
	if len(prof.SavedPlaces) == 0 {
		fmt.Println("no saved places")
		return
	}
	for _, p := range prof.SavedPlaces {
		if p.Address != "" {
			fmt.Printf("%s: %s\n", p.Name, p.Address)
		} else {
			fmt.Printf("%s: %.5f, %.5f\n", p.Name, p.Latitude, p.Longitude)
		}
	}
}
