// Package tools is the single registration point for the tool
// catalogue: it assembles every internal/tools/* package's definitions
// into one *registry.Registry, so name collisions surface at startup.
package tools

import (
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/internal/tools/calendar"
	"github.com/marvin-core/marvin/internal/tools/files"
	"github.com/marvin-core/marvin/internal/tools/git"
	"github.com/marvin-core/marvin/internal/tools/notes"
	"github.com/marvin-core/marvin/internal/tools/notify"
	"github.com/marvin-core/marvin/internal/tools/savedplaces"
	"github.com/marvin-core/marvin/internal/tools/shellexec"
	"github.com/marvin-core/marvin/internal/tools/system"
	"github.com/marvin-core/marvin/internal/tools/tickets"
	"github.com/marvin-core/marvin/internal/tools/websearch"
)

// Config bundles the knobs the few tool packages with their own Config
// need; zero values fall back to each package's defaults.
type Config struct {
	WebSearch websearch.Config
	Notify    notify.Config
}

// Register builds a fresh registry populated with every tool package.
func Register(cfg Config) (*registry.Registry, error) {
	reg := registry.New()
	var defs []*registry.ToolDef
	defs = append(defs, files.Defs()...)
	defs = append(defs, shellexec.Defs()...)
	defs = append(defs, git.Defs()...)
	defs = append(defs, tickets.Defs()...)
	defs = append(defs, system.Defs()...)
	defs = append(defs, websearch.Defs(cfg.WebSearch)...)
	defs = append(defs, notes.Defs()...)
	defs = append(defs, savedplaces.Defs()...)
	defs = append(defs, calendar.Defs()...)
	defs = append(defs, notify.Defs(cfg.Notify)...)

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
