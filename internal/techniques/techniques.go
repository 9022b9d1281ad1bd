// Package techniques is the catalog of strikes a user can practice.
package techniques

import (
	"errors"
	"fmt"
	"strings"
)

// Category groups techniques.
type Category string

const (
	Punches Category = "punches"
	Kicks   Category = "kicks"
	Elbows  Category = "elbows"
	Knees   Category = "knees"
	Combos  Category = "combos"
)

// Categories in display order.
var Categories = []Category{Punches, Kicks, Elbows, Knees, Combos}

// Level is a difficulty or experience level.
type Level string

const (
	Beginner     Level = "beginner"
	Intermediate Level = "intermediate"
	Advanced     Level = "advanced"
)

// Levels in ascending order.
var Levels = []Level{Beginner, Intermediate, Advanced}

var (
	ErrUnknownTechnique = errors.New("unknown technique")
	ErrUnknownLevel     = errors.New("unknown experience level")
	ErrUnknownCategory  = errors.New("unknown category")
)

// Technique is one catalog entry.
type Technique struct {
	ID       int      `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Level    Level    `json:"level"`
}

var catalog = []Technique{
	{1, "jab", "Jab", Punches, Beginner},
	{2, "cross", "Cross", Punches, Beginner},
	{3, "hook", "Hook", Punches, Intermediate},
	{4, "uppercut", "Uppercut", Punches, Intermediate},
	{5, "teep", "Teep (Push Kick)", Kicks, Beginner},
	{6, "roundhouse", "Roundhouse Kick", Kicks, Beginner},
	{7, "side-kick", "Side Kick", Kicks, Intermediate},
	{8, "axe-kick", "Axe Kick", Kicks, Advanced},
	{9, "horizontal-elbow", "Horizontal Elbow", Elbows, Intermediate},
	{10, "uppercut-elbow", "Uppercut Elbow", Elbows, Intermediate},
	{11, "downward-elbow", "Downward Elbow", Elbows, Advanced},
	{12, "straight-knee", "Straight Knee", Knees, Beginner},
	{13, "diagonal-knee", "Diagonal Knee", Knees, Intermediate},
	{14, "flying-knee", "Flying Knee", Knees, Advanced},
	{15, "jab-cross", "Jab-Cross", Combos, Beginner},
	{16, "jab-cross-hook", "Jab-Cross-Hook", Combos, Intermediate},
	{17, "kick-punch", "Kick-Punch Combo", Combos, Intermediate},
	{18, "elbow-knee", "Elbow-Knee Combo", Combos, Advanced},
}

// Generic selections that stand for a whole category.
var generic = map[string]Category{
	"elbow": Elbows,
	"knee":  Knees,
	"combo": Combos,
}

// All returns a copy of the catalog.
func All() []Technique {
	return append([]Technique(nil), catalog...)
}

// ByCategory returns the techniques in c.
func ByCategory(c Category) ([]Technique, error) {
	if !isCategory(c) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	var out []Technique
	for _, t := range catalog {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out, nil
}

// Grouped returns the catalog keyed by category.
func Grouped() map[Category][]Technique {
	out := make(map[Category][]Technique, len(Categories))
	for _, t := range catalog {
		out[t.Category] = append(out[t.Category], t)
	}
	return out
}

// Lookup finds a technique by slug or display name, ignoring case.
func Lookup(s string) (Technique, bool) {
	s = strings.TrimSpace(s)
	for _, t := range catalog {
		if strings.EqualFold(t.Slug, s) || strings.EqualFold(t.Name, s) {
			return t, true
		}
	}
	return Technique{}, false
}

// ValidateSelection accepts a catalog technique or a generic category
// selection ("elbow", "knee", "combo") and returns its canonical form.
// An empty selection is allowed.
func ValidateSelection(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, ok := Lookup(s); ok {
		return t.Slug, nil
	}
	if _, ok := generic[strings.ToLower(s)]; ok {
		return strings.ToLower(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTechnique, s)
}

// ParseLevel validates an experience level. An empty level is allowed.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

func isCategory(c Category) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}
