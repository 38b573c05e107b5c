// Package system implements system_info and get_usage, the reference
// pair that stays visible in coding and lockin mode as research aids:
// runtime facts, and windowed reads of the profile's usage logs.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/internal/usage"
)

// Defs returns the system tool definitions, ready to register.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{systemInfoDef(), getUsageDef()}
}

func systemInfoDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "system_info",
		Description: "Report basic runtime facts: OS, architecture, Go version, working directory, and current mode.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: systemInfo,
	}
}

func systemInfo(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	info := map[string]any{
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"go_version":  runtime.Version(),
		"working_dir": tc.WorkingDir,
		"mode":        string(tc.Mode),
		"coding_mode": tc.CodingMode,
		"time":        time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return string(payload), nil
}

func getUsageDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name: "get_usage",
		Description: "Report accumulated token/cost usage for a time window: today, 24h, 7d, 30d, all, " +
			"or an ISO <from>/<to> range.",
		Category: registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"window": map[string]any{"type": "string", "description": "today|24h|7d|30d|all|<ISO from>/<ISO to>"},
			},
		},
		Handler: getUsage,
	}
}

func getUsage(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	windowArg, _ := args["window"].(string)
	window, err := usage.ParseWindow(windowArg)
	if err != nil {
		return "Error: " + err.Error(), nil
	}

	prof, ok := tc.Profile.(*profile.Profile)
	if !ok || prof == nil {
		return "Error: no active profile to read usage from", nil
	}

	records, err := usage.ReadUsageLog(prof.UsageLogPath())
	if err != nil {
		return "Error: read usage log: " + err.Error(), nil
	}
	toolCalls, err := usage.ReadToolCallLog(prof.ToolCallsLogPath())
	if err != nil {
		return "Error: read tool-call log: " + err.Error(), nil
	}

	totals := usage.QueryRecords(records, toolCalls, window)
	return strings.TrimSpace(fmt.Sprintf("window: %s\n%s", windowOrDefault(windowArg), totals.Summary())), nil
}

func windowOrDefault(w string) string {
	if strings.TrimSpace(w) == "" {
		return "today"
	}
	return w
}
