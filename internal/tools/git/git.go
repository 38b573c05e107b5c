// Package git implements git_commit and git_checkout, shelling out
// through internal/tools/shellexec rather than a Git library, since
// both tools are thin, workspace-scoped wrappers around a handful of
// git subcommands.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/internal/tools/shellexec"
)

// Defs returns the git tool definitions, ready to register. Both are
// write tools: ticket-gated, and excluded from surf mode by
// internal/registry's SurfExclude.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{gitCommitDef(), gitCheckoutDef()}
}

func gitCommitDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "git_commit",
		Description: "Stage all changes in the working directory and create a git commit.",
		Category:    registry.CategoryCoding,
		Writes:      true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "The commit message."},
			},
			"required": []string{"message"},
		},
		Handler: gitCommit,
	}
}

func gitCommit(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return "Error: message is required", nil
	}

	addResult, err := shellexec.Run(ctx, "git add -A", tc.WorkingDir)
	if err != nil {
		return "Error: git add: " + err.Error(), nil
	}
	if addResult.ExitCode != 0 {
		return "Error: git add failed: " + addResult.Stderr, nil
	}

	command := fmt.Sprintf("git commit -m %s", shellQuote(message))
	commitResult, err := shellexec.Run(ctx, command, tc.WorkingDir)
	if err != nil {
		return "Error: git commit: " + err.Error(), nil
	}
	if commitResult.ExitCode != 0 {
		return "Error: git commit failed: " + commitResult.Stderr, nil
	}
	return commitResult.Stdout, nil
}

func gitCheckoutDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "git_checkout",
		Description: "Check out a git branch or ref in the working directory, optionally creating it.",
		Category:    registry.CategoryCoding,
		Writes:      true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ref":    map[string]any{"type": "string", "description": "The branch name or ref to check out."},
				"create": map[string]any{"type": "boolean", "description": "Create the branch if it does not exist."},
			},
			"required": []string{"ref"},
		},
		Handler: gitCheckout,
	}
}

func gitCheckout(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	ref, _ := args["ref"].(string)
	if strings.TrimSpace(ref) == "" {
		return "Error: ref is required", nil
	}
	create, _ := args["create"].(bool)

	command := "git checkout " + shellQuote(ref)
	if create {
		command = "git checkout -b " + shellQuote(ref)
	}
	result, err := shellexec.Run(ctx, command, tc.WorkingDir)
	if err != nil {
		return "Error: git checkout: " + err.Error(), nil
	}
	if result.ExitCode != 0 {
		return "Error: git checkout failed: " + result.Stderr, nil
	}
	if result.Stdout != "" {
		return result.Stdout, nil
	}
	return "Switched to " + ref, nil
}

// shellQuote wraps s in single quotes for safe passing to `/bin/sh -c`,
// escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
