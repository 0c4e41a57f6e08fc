package domain

import (
	"sort"
	"strings"
)

// ChecklistState maps category -> step -> done. Missing entries read as false.
type ChecklistState map[string]map[string]bool

func (s ChecklistState) Done(category, step string) bool {
	if s == nil {
		return false
	}
	return s[category][step]
}

func (s ChecklistState) Clone() ChecklistState {
	if s == nil {
		return nil
	}
	out := make(ChecklistState, len(s))
	for cat, steps := range s {
		inner := make(map[string]bool, len(steps))
		for step, done := range steps {
			inner[step] = done
		}
		out[cat] = inner
	}
	return out
}

// BuildChecklist turns a client selection into the checklist stored on a mission.
// Category and step order is first-seen; duplicate categories are folded together,
// blank names and repeated steps are dropped, and categories without steps vanish.
func BuildChecklist(selection []ChecklistItem) []ChecklistItem {
	var (
		order []string
		steps = map[string][]string{}
		seen  = map[string]map[string]bool{}
	)
	for _, item := range selection {
		cat := strings.TrimSpace(item.Category)
		if cat == "" {
			continue
		}
		if _, ok := seen[cat]; !ok {
			seen[cat] = map[string]bool{}
			order = append(order, cat)
		}
		for _, step := range item.Steps {
			step = strings.TrimSpace(step)
			if step == "" || seen[cat][step] {
				continue
			}
			seen[cat][step] = true
			steps[cat] = append(steps[cat], step)
		}
	}
	out := make([]ChecklistItem, 0, len(order))
	for _, cat := range order {
		if len(steps[cat]) == 0 {
			continue
		}
		out = append(out, ChecklistItem{Category: cat, Steps: steps[cat]})
	}
	return out
}

func InitializeState(checklist []ChecklistItem) ChecklistState {
	state := make(ChecklistState, len(checklist))
	for _, item := range checklist {
		inner := make(map[string]bool, len(item.Steps))
		for _, step := range item.Steps {
			inner[step] = false
		}
		state[item.Category] = inner
	}
	return state
}

// MergeState folds incoming into base without ever clearing a completed step.
// Neither input is modified.
func MergeState(base, incoming ChecklistState) ChecklistState {
	out := base.Clone()
	if out == nil {
		out = ChecklistState{}
	}
	for cat, steps := range incoming {
		if _, ok := out[cat]; !ok {
			out[cat] = map[string]bool{}
		}
		for step, done := range steps {
			if done {
				out[cat][step] = true
			} else if _, ok := out[cat][step]; !ok {
				out[cat][step] = false
			}
		}
	}
	return out
}

// NormalizeState returns a complete state for checklist whose values come from
// incoming. Entries for steps not on the checklist are discarded.
func NormalizeState(checklist []ChecklistItem, incoming ChecklistState) ChecklistState {
	state := InitializeState(checklist)
	for cat, steps := range state {
		for step := range steps {
			steps[step] = incoming.Done(cat, step)
		}
	}
	return state
}

// ValidateState lists "category/step" pairs in state that are not on the checklist.
func ValidateState(checklist []ChecklistItem, state ChecklistState) []string {
	known := make(map[string]map[string]bool, len(checklist))
	for _, item := range checklist {
		known[item.Category] = map[string]bool{}
		for _, step := range item.Steps {
			known[item.Category][step] = true
		}
	}
	var unknown []string
	for cat, steps := range state {
		for step := range steps {
			if !known[cat][step] {
				unknown = append(unknown, cat+"/"+step)
			}
		}
	}
	sort.Strings(unknown)
	return unknown
}

// Progress counts completed and total steps of the checklist.
func Progress(checklist []ChecklistItem, state ChecklistState) (done, total int) {
	for _, item := range checklist {
		for _, step := range item.Steps {
			total++
			if state.Done(item.Category, step) {
				done++
			}
		}
	}
	return done, total
}
