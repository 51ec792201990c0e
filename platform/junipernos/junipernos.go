// Package junipernos supplies the privilege graph and connection hooks for
// Juniper Junos: operational mode (">") and configuration mode ("#"), entered
// with "configure" and left with "exit".
package junipernos

import (
	"context"
	"regexp"

	"github.com/smnsjas/go-netshell/driver"
	"github.com/smnsjas/go-netshell/privilege"
)

const DefaultDesiredLevel = "exec"

var (
	execPattern          = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}>\s*$`)
	configurationPattern = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}#\s*$`)
)

// Levels returns the Junos privilege graph levels.
func Levels() []privilege.Level {
	return []privilege.Level{
		{
			Name:        "exec",
			Pattern:     execPattern,
			NextLevel:   "configuration",
			EscalateCmd: "configure\n",
			Depth:       0,
		},
		{
			Name:          "configuration",
			Pattern:       configurationPattern,
			PreviousLevel: "exec",
			DeescalateCmd: "exit\n",
			Depth:         1,
		},
	}
}

// NewGraph builds the Junos privilege graph.
func NewGraph() (*privilege.Graph, error) {
	return privilege.NewGraph(Levels(), DefaultDesiredLevel)
}

// DisablePaging sets the CLI screen length to 0 (no paging) and the screen
// width to 511, exactly as the Junos helper does on connection open.
func DisablePaging(ctx context.Context, s *driver.Session) error {
	ch := s.Channel()
	if _, _, err := ch.SendInput(ctx, "set cli screen-length 0\n", true, false); err != nil {
		return err
	}
	_, _, err := ch.SendInput(ctx, "set cli screen-width 511\n", true, false)
	return err
}

// ConfigSessionAbort discards pending candidate-config edits on failure rather
// than leaving them staged for a later (possibly accidental) commit.
const ConfigSessionAbort = "rollback 0\n"

// Hooks returns the Junos connection hooks for driver.Config.
func Hooks() driver.Hooks {
	return driver.Hooks{
		DisablePaging:      DisablePaging,
		ConfigSessionAbort: ConfigSessionAbort,
	}
}
