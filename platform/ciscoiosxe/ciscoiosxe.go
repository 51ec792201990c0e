// Package ciscoiosxe supplies the privilege graph and connection hooks for
// Cisco IOS-XE: exec -> privilege_exec -> configuration, with the standard
// "enable"/secondary-password escalation edge.
package ciscoiosxe

import (
	"context"
	"regexp"

	"github.com/smnsjas/go-netshell/driver"
	"github.com/smnsjas/go-netshell/privilege"
)

const DefaultDesiredLevel = "privilege_exec"

var (
	execPattern          = regexp.MustCompile(`(?im)^[a-z0-9.\-@()/:]{1,32}>\s*$`)
	privilegeExecPattern = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}#\s*$`)
	configurationPattern = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}\(config\)#\s*$`)
	passwordPrompt       = regexp.MustCompile(`(?im)^Password:\s*$`)
)

// Levels returns the IOS-XE privilege graph levels, ready to pass to
// privilege.NewGraph.
func Levels() []privilege.Level {
	return []privilege.Level{
		{
			Name:           "exec",
			Pattern:        execPattern,
			NextLevel:      "privilege_exec",
			EscalateCmd:    "enable\n",
			EscalateAuth:   true,
			EscalatePrompt: passwordPrompt,
			Depth:          0,
		},
		{
			Name:          "privilege_exec",
			Pattern:       privilegeExecPattern,
			PreviousLevel: "exec",
			DeescalateCmd: "disable\n",
			NextLevel:     "configuration",
			EscalateCmd:   "configure terminal\n",
			Depth:         1,
		},
		{
			Name:          "configuration",
			Pattern:       configurationPattern,
			PreviousLevel: "privilege_exec",
			DeescalateCmd: "end\n",
			Depth:         2,
		},
	}
}

// NewGraph builds the IOS-XE privilege graph.
func NewGraph() (*privilege.Graph, error) {
	return privilege.NewGraph(Levels(), DefaultDesiredLevel)
}

// DisablePaging sends "terminal length 0" and "terminal width 512" so show
// commands never page, matching the terminal-geometry hooks the core exec
// drivers in this family send on open. It talks to the Channel directly,
// bypassing SendCommand's priv-acquisition and Result bookkeeping since this
// runs during Open before the Session is fully up.
func DisablePaging(ctx context.Context, s *driver.Session) error {
	ch := s.Channel()
	if _, _, err := ch.SendInput(ctx, "terminal length 0\n", true, false); err != nil {
		return err
	}
	_, _, err := ch.SendInput(ctx, "terminal width 512\n", true, false)
	return err
}

// Hooks returns the IOS-XE connection hooks for driver.Config.
func Hooks() driver.Hooks {
	return driver.Hooks{
		DisablePaging: DisablePaging,
	}
}
