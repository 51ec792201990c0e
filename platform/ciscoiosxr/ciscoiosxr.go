// Package ciscoiosxr supplies the privilege graph and connection hooks for
// Cisco IOS-XR. Unlike IOS-XE, IOS-XR has no separate exec/privilege_exec split
// (it drops a user straight into privilege_exec) and adds a
// special_configuration level for exclusive/admin configuration sessions.
package ciscoiosxr

import (
	"context"
	"regexp"

	"github.com/smnsjas/go-netshell/driver"
	"github.com/smnsjas/go-netshell/privilege"
)

const DefaultDesiredLevel = "privilege_exec"

var (
	privilegeExecPattern        = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}#\s*$`)
	configurationPattern        = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}\(config[a-z0-9.\-@/:]{0,16}\)#\s*$`)
	specialConfigurationPattern = regexp.MustCompile(`(?im)^[a-z0-9.\-@/:]{1,32}\(config[a-z0-9.\-@/:]{1,16}\)#\s*$`)
)

// Levels returns the IOS-XR privilege graph levels.
func Levels() []privilege.Level {
	return []privilege.Level{
		{
			Name:        "privilege_exec",
			Pattern:     privilegeExecPattern,
			NextLevel:   "configuration",
			EscalateCmd: "configure terminal\n",
			Depth:       1,
		},
		{
			Name:          "configuration",
			Pattern:       configurationPattern,
			PreviousLevel: "privilege_exec",
			DeescalateCmd: "end\n",
			Depth:         2,
		},
		{
			Name:          "special_configuration",
			Pattern:       specialConfigurationPattern,
			PreviousLevel: "privilege_exec",
			DeescalateCmd: "end\n",
			Depth:         3,
		},
	}
}

// NewGraph builds the IOS-XR privilege graph.
func NewGraph() (*privilege.Graph, error) {
	return privilege.NewGraph(Levels(), DefaultDesiredLevel)
}

// DisablePaging sends "terminal length 0".
func DisablePaging(ctx context.Context, s *driver.Session) error {
	_, _, err := s.Channel().SendInput(ctx, "terminal length 0\n", true, false)
	return err
}

// PreLogin matches the core driver's comms_pre_login_handler hook point: IOS-XR
// needs nothing extra before paging is disabled, but the hook slot is kept so a
// caller can still layer banner-handling or similar in front of it.
func PreLogin(ctx context.Context, s *driver.Session) error {
	return nil
}

// ConfigSessionAbort is sent by SendConfigs when a pushed config line fails,
// discarding the candidate configuration instead of leaving it pending.
const ConfigSessionAbort = "abort\n"

// Hooks returns the IOS-XR connection hooks for driver.Config.
func Hooks() driver.Hooks {
	return driver.Hooks{
		PreLogin:           PreLogin,
		DisablePaging:      DisablePaging,
		ConfigSessionAbort: ConfigSessionAbort,
	}
}
