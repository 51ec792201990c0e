// Package aristaeos supplies the privilege graph and connection hooks for
// Arista EOS: exec (">") -> privilege_exec ("#") -> configuration
// ("(config)#"), the same three-level shape as IOS-XE but with EOS's own
// paging/width commands and an "exit" sent on close (IOS-XE sends nothing on
// close).
package aristaeos

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
)

// Levels returns the EOS privilege graph levels.
func Levels() []privilege.Level {
	return []privilege.Level{
		{
			Name:        "exec",
			Pattern:     execPattern,
			NextLevel:   "privilege_exec",
			EscalateCmd: "enable\n",
			Depth:       0,
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

// NewGraph builds the EOS privilege graph.
func NewGraph() (*privilege.Graph, error) {
	return privilege.NewGraph(Levels(), DefaultDesiredLevel)
}

// DisablePaging sends "terminal length 0" and "terminal width 32767".
func DisablePaging(ctx context.Context, s *driver.Session) error {
	ch := s.Channel()
	if _, _, err := ch.SendInput(ctx, "terminal length 0\n", true, false); err != nil {
		return err
	}
	_, _, err := ch.SendInput(ctx, "terminal width 32767\n", true, false)
	return err
}

// OnClose exits the session cleanly back to the login banner.
func OnClose(ctx context.Context, s *driver.Session) error {
	_, _, err := s.Channel().SendInput(ctx, "exit\n", true, false)
	return err
}

// ConfigSessionAbort is what SendConfigs sends after a failed config line; on
// EOS "abort" discards a pending configuration session. Nothing in this
// package sends "configure session <name>".
const ConfigSessionAbort = "abort\n"

// Hooks returns the EOS connection hooks for driver.Config.
func Hooks() driver.Hooks {
	return driver.Hooks{
		DisablePaging:      DisablePaging,
		OnClose:            OnClose,
		ConfigSessionAbort: ConfigSessionAbort,
	}
}

// ConfigurationSessionLevel builds the privilege.Level for a named EOS
// configuration session (e.g. "configure session netshell"), rooted at
// configuration, for use with driver.Session.RegisterConfigurationSession.
func ConfigurationSessionLevel(name string) privilege.Level {
	pattern := regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}\(config-s-` + regexp.QuoteMeta(name) + `\)#\s*$`)
	return privilege.Level{
		Name:          name,
		Pattern:       pattern,
		PreviousLevel: "configuration",
		DeescalateCmd: "end\n",
		Depth:         3,
	}
}
