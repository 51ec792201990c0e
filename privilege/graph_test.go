package privilege_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/privilege"
)

func baseLevels() []privilege.Level {
	return []privilege.Level{
		{
			Name:          "exec",
			Pattern:       regexp.MustCompile(`(?m)^switch>\s*$`),
			NextLevel:     "privilege_exec",
			EscalateCmd:   "enable\n",
			EscalateAuth:  true,
			EscalatePrompt: regexp.MustCompile(`(?m)^Password:\s*$`),
			Depth:         0,
		},
		{
			Name:          "privilege_exec",
			Pattern:       regexp.MustCompile(`(?m)^switch#\s*$`),
			PreviousLevel: "exec",
			DeescalateCmd: "disable\n",
			NextLevel:     "configuration",
			EscalateCmd:   "configure terminal\n",
			Depth:         1,
		},
		{
			Name:          "configuration",
			Pattern:       regexp.MustCompile(`(?m)^switch\(config\)#\s*$`),
			PreviousLevel: "privilege_exec",
			DeescalateCmd: "end\n",
			Depth:         2,
		},
	}
}

func TestNewGraph_Valid(t *testing.T) {
	g, err := privilege.NewGraph(baseLevels(), "privilege_exec")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, "privilege_exec", g.DefaultDesiredLevel())
}

func TestNewGraph_RejectsDuplicateName(t *testing.T) {
	levels := baseLevels()
	levels = append(levels, levels[0])
	_, err := privilege.NewGraph(levels, "exec")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrInvalidConfig)
}

func TestNewGraph_RejectsUnknownDefault(t *testing.T) {
	_, err := privilege.NewGraph(baseLevels(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrInvalidConfig)
}

func TestNewGraph_RejectsEscalateAuthMissingPrompt(t *testing.T) {
	levels := baseLevels()
	levels[0].EscalatePrompt = nil
	_, err := privilege.NewGraph(levels, "exec")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrInvalidConfig)
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	levels := baseLevels()
	levels[0].NextLevel = "configuration"
	levels[2].NextLevel = "exec"
	_, err := privilege.NewGraph(levels, "exec")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrInvalidConfig)
}

func TestNewGraph_RejectsSameDepthOverlappingPatterns(t *testing.T) {
	levels := baseLevels()
	// privilege_exec and configuration collide at the same depth: configuration's
	// pattern also matches a bare privilege_exec-style prompt, and with no
	// depth difference there is no tie-break to disambiguate them.
	levels[2].Depth = levels[1].Depth
	levels[2].Pattern = regexp.MustCompile(`(?m)^switch(\(config\))?#\s*$`)

	_, err := privilege.NewGraph(levels, "exec")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrInvalidConfig)
}

func TestDetermineCurrentLevel_TieBreaksByDepth(t *testing.T) {
	levels := baseLevels()
	// overlapping pattern: privilege_exec's pattern also matches a configuration-style line
	levels[1].Pattern = regexp.MustCompile(`(?m)^switch(\(config\))?#\s*$`)
	g, err := privilege.NewGraph(levels, "exec")
	require.NoError(t, err)

	lvl, err := g.DetermineCurrentLevel("switch(config)#")
	require.NoError(t, err)
	assert.Equal(t, "configuration", lvl.Name)
}

func TestDetermineCurrentLevel_Unknown(t *testing.T) {
	g, err := privilege.NewGraph(baseLevels(), "exec")
	require.NoError(t, err)
	_, err = g.DetermineCurrentLevel("garbage$ ")
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrUnknownPrivilegeLevel)
}

func TestRegisterAndUnregisterConfigurationSession(t *testing.T) {
	g, err := privilege.NewGraph(baseLevels(), "exec")
	require.NoError(t, err)

	err = g.RegisterConfigurationSession(privilege.Level{
		Name:    "configuration_vlan",
		Pattern: regexp.MustCompile(`(?m)^switch\(config-vlan\)#\s*$`),
	}, "configuration")
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	lvl, ok := g.Level("configuration")
	require.True(t, ok)
	assert.Equal(t, "configuration_vlan", lvl.NextLevel)

	g.UnregisterConfigurationSession("configuration_vlan")
	assert.Equal(t, 3, g.Len())
	lvl, ok = g.Level("configuration")
	require.True(t, ok)
	assert.Equal(t, "", lvl.NextLevel)
}
