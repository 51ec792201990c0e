// Package privilege implements the static privilege-level graph described in
// SPEC_FULL.md section 4.2: named device modes (user-exec, enable, configure, a
// named configuration session) with their prompt patterns and the
// commands/authentication needed to traverse each edge.
package privilege

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/smnsjas/go-netshell"
)

// Level is one named device privilege level, immutable once built into a Graph.
type Level struct {
	// Name identifies this level, e.g. "exec", "privilege_exec", "configuration".
	Name string

	// Pattern matches the idle prompt for this level.
	Pattern *regexp.Regexp

	// PreviousLevel is the parent level name reached by de-escalating, or "" at
	// the graph root.
	PreviousLevel string
	// DeescalateCmd is sent to move from this level to PreviousLevel.
	DeescalateCmd string

	// NextLevel is the child level name reached by escalating, or "" at a leaf.
	NextLevel string
	// EscalateCmd is sent to move from this level to NextLevel.
	EscalateCmd string
	// EscalateAuth marks the escalate edge as requiring an in-band password
	// exchange (invariant 3: both EscalateCmd and EscalatePrompt must then be set).
	EscalateAuth bool
	// EscalatePrompt matches the password prompt shown by EscalateCmd, when
	// EscalateAuth is true.
	EscalatePrompt *regexp.Regexp

	// Depth orders levels for tie-breaking when multiple patterns match the same
	// prompt: the level with the highest Depth wins (spec.md section 4.2).
	Depth int
}

// Graph is an immutable, per-Session owned map of privilege levels forming a DAG
// rooted at the lowest level, built once by NewGraph and never mutated except
// through RegisterConfigurationSession/Unregister while no operation is in flight.
type Graph struct {
	levels  map[string]Level
	ordered []Level // sorted by Depth, descending, for tie-break matching
	def     string
}

// NewGraph validates and builds a Graph. It returns netshell.ErrInvalidConfig
// (wrapped with detail) for a duplicate name, an unknown defaultDesiredLevel, a
// cycle in the previous/next relations, or an EscalateAuth edge missing its
// EscalateCmd or EscalatePrompt.
func NewGraph(levels []Level, defaultDesiredLevel string) (*Graph, error) {
	g := &Graph{levels: make(map[string]Level, len(levels)), def: defaultDesiredLevel}

	for _, lvl := range levels {
		if lvl.Name == "" {
			return nil, fmt.Errorf("%w: privilege level has empty name", netshell.ErrInvalidConfig)
		}
		if _, dup := g.levels[lvl.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate privilege level name %q", netshell.ErrInvalidConfig, lvl.Name)
		}
		if lvl.Pattern == nil {
			return nil, fmt.Errorf("%w: privilege level %q has no pattern", netshell.ErrInvalidConfig, lvl.Name)
		}
		if lvl.EscalateAuth && (lvl.EscalateCmd == "" || lvl.EscalatePrompt == nil) {
			return nil, fmt.Errorf("%w: privilege level %q has escalate_auth but missing escalate_cmd/escalate_prompt",
				netshell.ErrInvalidConfig, lvl.Name)
		}
		g.levels[lvl.Name] = lvl
	}

	if defaultDesiredLevel != "" {
		if _, ok := g.levels[defaultDesiredLevel]; !ok {
			return nil, fmt.Errorf("%w: default_desired_privilege_level %q not found in graph",
				netshell.ErrInvalidConfig, defaultDesiredLevel)
		}
	}

	for name, lvl := range g.levels {
		if lvl.NextLevel != "" {
			if _, ok := g.levels[lvl.NextLevel]; !ok {
				return nil, fmt.Errorf("%w: level %q escalates to unknown level %q",
					netshell.ErrInvalidConfig, name, lvl.NextLevel)
			}
		}
		if lvl.PreviousLevel != "" {
			if _, ok := g.levels[lvl.PreviousLevel]; !ok {
				return nil, fmt.Errorf("%w: level %q de-escalates to unknown level %q",
					netshell.ErrInvalidConfig, name, lvl.PreviousLevel)
			}
		}
	}

	if err := g.checkSameDepthOverlap(); err != nil {
		return nil, err
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	g.rebuildOrdered()
	return g, nil
}

func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.levels))
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: cycle detected in privilege graph at %q", netshell.ErrInvalidConfig, name)
		}
		color[name] = gray
		if next := g.levels[name].NextLevel; next != "" {
			if err := visit(next); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}
	for name := range g.levels {
		if err := visit(name); err != nil {
			return err
		}
	}
	for name := range g.levels {
		seen := make(map[string]bool)
		for cur := name; cur != ""; cur = g.levels[cur].PreviousLevel {
			if seen[cur] {
				return fmt.Errorf("%w: cycle detected in privilege graph previous-level chain at %q", netshell.ErrInvalidConfig, cur)
			}
			seen[cur] = true
		}
	}
	return nil
}

// checkSameDepthOverlap rejects graphs where two levels at the same Depth have
// overlapping patterns. DetermineCurrentLevel's tie-break (highest Depth wins)
// only disambiguates levels at *different* depths; two levels at the same depth
// that can both match a prompt have no tie-break and the match becomes
// map-iteration-order dependent, so spec.md section 4.2 requires rejecting this
// at construction time instead.
func (g *Graph) checkSameDepthOverlap() error {
	byDepth := make(map[int][]Level)
	for _, lvl := range g.levels {
		byDepth[lvl.Depth] = append(byDepth[lvl.Depth], lvl)
	}
	for _, lvls := range byDepth {
		sort.Slice(lvls, func(i, j int) bool { return lvls[i].Name < lvls[j].Name })
		for i := 0; i < len(lvls); i++ {
			for j := i + 1; j < len(lvls); j++ {
				if patternsOverlap(lvls[i].Pattern, lvls[j].Pattern) {
					return fmt.Errorf("%w: levels %q and %q at depth %d have overlapping patterns",
						netshell.ErrInvalidConfig, lvls[i].Name, lvls[j].Name, lvls[i].Depth)
				}
			}
		}
	}
	return nil
}

// promptOverlapProbes is a representative sample of prompt shapes seen across
// the platform packages (user/privileged/config prompts, named config
// sub-modes, IOS-XR's RP/slot-qualified form). Two patterns "overlap" for the
// purposes of checkSameDepthOverlap if any probe matches both -- detecting true
// regex-intersection emptiness in general is undecidable, so this is a
// practical, not exhaustive, check.
var promptOverlapProbes = []string{
	"switch>", "switch#", "switch$",
	"switch(config)#", "switch(config-if)#", "switch(config-vlan)#", "switch(config-line)#",
	"router>", "router#", "router(config)#",
	"admin@switch>", "admin@switch#",
	"RP/0/RP0/CPU0:router#", "RP/0/RP0/CPU0:router(config)#",
}

func patternsOverlap(a, b *regexp.Regexp) bool {
	for _, probe := range promptOverlapProbes {
		if a.MatchString(probe) && b.MatchString(probe) {
			return true
		}
	}
	return false
}

func (g *Graph) rebuildOrdered() {
	g.ordered = g.ordered[:0]
	for _, lvl := range g.levels {
		g.ordered = append(g.ordered, lvl)
	}
	sort.Slice(g.ordered, func(i, j int) bool { return g.ordered[i].Depth > g.ordered[j].Depth })
}

// DefaultDesiredLevel returns the graph's resting privilege level name.
func (g *Graph) DefaultDesiredLevel() string {
	return g.def
}

// Level looks up a level by name.
func (g *Graph) Level(name string) (Level, bool) {
	lvl, ok := g.levels[name]
	return lvl, ok
}

// Len returns the number of levels in the graph, used by the acquire-priv
// iteration bound (2 * len(graph), spec.md section 4.2).
func (g *Graph) Len() int {
	return len(g.levels)
}

// DetermineCurrentLevel matches prompt against every level's pattern and returns
// the level with the highest Depth among those that match (spec.md's tie-break
// rule). It returns netshell.ErrUnknownPrivilegeLevel if nothing matches.
func (g *Graph) DetermineCurrentLevel(prompt string) (Level, error) {
	for _, lvl := range g.ordered {
		if lvl.Pattern.MatchString(prompt) {
			return lvl, nil
		}
	}
	return Level{}, fmt.Errorf("%w: prompt %q matched nothing in graph", netshell.ErrUnknownPrivilegeLevel, prompt)
}

// RegisterConfigurationSession inserts a level dynamically, for
// register_configuration_session (spec.md section 4.3): a named configuration
// session gets its own prompt pattern and an escalate edge from fromLevel. Must
// only be called while no Channel operation is in flight (spec.md section 5).
func (g *Graph) RegisterConfigurationSession(lvl Level, fromLevel string) error {
	parent, ok := g.levels[fromLevel]
	if !ok {
		return fmt.Errorf("%w: register configuration session: unknown base level %q",
			netshell.ErrInvalidConfig, fromLevel)
	}
	if _, dup := g.levels[lvl.Name]; dup {
		return fmt.Errorf("%w: duplicate privilege level name %q", netshell.ErrInvalidConfig, lvl.Name)
	}
	lvl.PreviousLevel = fromLevel
	lvl.Depth = parent.Depth + 1
	parent.NextLevel = lvl.Name
	g.levels[fromLevel] = parent
	g.levels[lvl.Name] = lvl
	g.rebuildOrdered()
	return nil
}

// UnregisterConfigurationSession removes a dynamically registered level and
// restores its parent's escalate edge.
func (g *Graph) UnregisterConfigurationSession(name string) {
	lvl, ok := g.levels[name]
	if !ok {
		return
	}
	if parent, ok := g.levels[lvl.PreviousLevel]; ok {
		if parent.NextLevel == name {
			parent.NextLevel = ""
			g.levels[lvl.PreviousLevel] = parent
		}
	}
	delete(g.levels, name)
	g.rebuildOrdered()
}
