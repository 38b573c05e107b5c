package registry

import "github.com/marvin-core/marvin/pkg/models"

// The mode filter sets are explicit named constants, not heuristics:
// membership is curated, never derived from tool metadata.

// SurfExclude names heavy coding tools, full-wiki fetch, remote clone, and
// the 3D-app bridge excluded from surf mode.
var SurfExclude = []string{
	"apply_patch",
	"run_command",
	"git_commit",
	"git_checkout",
	"wiki_fetch_full",
	"git_clone_remote",
	"app3d_bridge",
}

// CodingReferenceTools is the small subset of "always" tools usable as
// research aids in coding mode.
var CodingReferenceTools = []string{
	"read_file",
	"web_search",
	"fetch_url",
	"wiki_fetch_full",
	"web_search_stack",
	"github_search",
	"system_info",
	"get_usage",
}

// LockinExtras is the curated productivity subset added on top of coding
// mode for lockin, explicitly excluding entertainment-style tools.
var LockinExtras = []string{
	"focus_start",
	"focus_stop",
	"calendar_create_event",
	"calendar_list_events",
	"alarm_set",
	"alarm_cancel",
	"timer_set",
	"timer_cancel",
	"note_create",
	"note_append",
	"note_search",
	"notify_send",
	"notify_subscribe",
}

// ForMode projects the registry to the tool list visible in the given
// mode.
func (r *Registry) ForMode(mode models.Mode) []*ToolDef {
	always := r.byCategory(CategoryAlways)
	coding := r.byCategory(CategoryCoding)

	switch mode {
	case models.ModeSurf:
		return excludeByName(always, SurfExclude)
	case models.ModeCoding:
		out := append([]*ToolDef{}, coding...)
		out = append(out, filterByName(always, CodingReferenceTools)...)
		return out
	case models.ModeLockin:
		out := append([]*ToolDef{}, coding...)
		out = append(out, filterByName(always, CodingReferenceTools)...)
		out = append(out, filterByName(r.All(), LockinExtras)...)
		return out
	default:
		return r.All()
	}
}

func (r *Registry) byCategory(cat Category) []*ToolDef {
	var out []*ToolDef
	for _, def := range r.All() {
		if def.Category == cat {
			out = append(out, def)
		}
	}
	return out
}

func filterByName(defs []*ToolDef, names []string) []*ToolDef {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*ToolDef
	for _, d := range defs {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

func excludeByName(defs []*ToolDef, names []string) []*ToolDef {
	exclude := make(map[string]bool, len(names))
	for _, n := range names {
		exclude[n] = true
	}
	var out []*ToolDef
	for _, d := range defs {
		if !exclude[d.Name] {
			out = append(out, d)
		}
	}
	return out
}
