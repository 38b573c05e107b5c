// Package savedplaces implements the location tools, which mutate the
// live profile's SavedPlaces list in memory and persist it
// write-through, the same discipline internal/profile.Profile exposes
// for preferences.
package savedplaces

import (
	"context"
	"fmt"
	"strings"

	"github.com/marvin-core/marvin/internal/profile"
	"github.com/marvin-core/marvin/internal/registry"
	"github.com/marvin-core/marvin/pkg/models"
)

// Defs returns the saved-places tool definitions, ready to register.
func Defs() []*registry.ToolDef {
	return []*registry.ToolDef{saveDef(), listDef(), removeDef()}
}

func saveDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "location_save",
		Description: "Save a named location to the user's profile for later reference.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":      map[string]any{"type": "string"},
				"address":   map[string]any{"type": "string"},
				"latitude":  map[string]any{"type": "number"},
				"longitude": map[string]any{"type": "number"},
			},
			"required": []string{"name"},
		},
		Handler: save,
	}
}

func listDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "location_list",
		Description: "List the user's saved locations.",
		Category:    registry.CategoryAlways,
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler:     list,
	}
}

func removeDef() *registry.ToolDef {
	return &registry.ToolDef{
		Name:        "location_remove",
		Description: "Remove a saved location from the user's profile by name.",
		Category:    registry.CategoryAlways,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []string{"name"},
		},
		Handler: remove,
	}
}

func save(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	prof, ok := tc.Profile.(*profile.Profile)
	if !ok || prof == nil {
		return "Error: no active profile to save a location against", nil
	}
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "Error: name is required", nil
	}

	place := models.SavedPlace{Name: name}
	if address, ok := args["address"].(string); ok {
		place.Address = address
	}
	if lat, ok := args["latitude"].(float64); ok {
		place.Latitude = lat
	}
	if lon, ok := args["longitude"].(float64); ok {
		place.Longitude = lon
	}

	replaced := false
	for i, existing := range prof.SavedPlaces {
		if strings.EqualFold(existing.Name, name) {
			prof.SavedPlaces[i] = place
			replaced = true
			break
		}
	}
	if !replaced {
		prof.SavedPlaces = append(prof.SavedPlaces, place)
	}

	if err := prof.SaveSavedPlaces(); err != nil {
		return fmt.Sprintf("Error: persist saved places: %v", err), nil
	}
	return fmt.Sprintf("Saved location %q", name), nil
}

func remove(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	prof, ok := tc.Profile.(*profile.Profile)
	if !ok || prof == nil {
		return "Error: no active profile to remove a location from", nil
	}
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "Error: name is required", nil
	}

	for i, existing := range prof.SavedPlaces {
		if strings.EqualFold(existing.Name, name) {
			prof.SavedPlaces = append(prof.SavedPlaces[:i], prof.SavedPlaces[i+1:]...)
			if err := prof.SaveSavedPlaces(); err != nil {
				return fmt.Sprintf("Error: persist saved places: %v", err), nil
			}
			return fmt.Sprintf("Removed location %q", name), nil
		}
	}
	return fmt.Sprintf("Error: no saved location named %q", name), nil
}

func list(ctx context.Context, tc *registry.ToolContext, args map[string]any) (string, error) {
	prof, ok := tc.Profile.(*profile.Profile)
	if !ok || prof == nil || len(prof.SavedPlaces) == 0 {
		return "No saved locations.", nil
	}
	var b strings.Builder
	for _, p := range prof.SavedPlaces {
		if p.Address != "" {
			fmt.Fprintf(&b, "%s: %s\n", p.Name, p.Address)
		} else {
			fmt.Fprintf(&b, "%s: %.5f, %.5f\n", p.Name, p.Latitude, p.Longitude)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
