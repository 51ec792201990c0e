package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell/transport"
)

func TestBuildCommand_SSH_WithUsernameAndPort(t *testing.T) {
	tr := &Transport{
		opts:   transport.Options{Host: "switch1", Port: 2222, Username: "admin", StrictHostKeyCheck: true},
		binary: BinarySSH,
	}
	cmd, err := tr.buildCommand()
	require.NoError(t, err)
	assert.Equal(t, "ssh", cmd.Args[0])
	assert.Contains(t, cmd.Args, "-p")
	assert.Contains(t, cmd.Args, "2222")
	assert.Contains(t, cmd.Args, "admin@switch1")
	assert.NotContains(t, cmd.Args, "-o")
}

func TestBuildCommand_SSH_InsecureAddsHostKeyBypass(t *testing.T) {
	tr := &Transport{
		opts:   transport.Options{Host: "switch1", StrictHostKeyCheck: false},
		binary: BinarySSH,
	}
	cmd, err := tr.buildCommand()
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, "StrictHostKeyChecking=no")
}

func TestBuildCommand_Telnet_DefaultsPort23(t *testing.T) {
	tr := &Transport{
		opts:   transport.Options{Host: "switch1"},
		binary: BinaryTelnet,
	}
	cmd, err := tr.buildCommand()
	require.NoError(t, err)
	assert.Equal(t, "telnet", cmd.Args[0])
	assert.Contains(t, cmd.Args, "23")
}

func TestBuildCommand_UnknownBinary(t *testing.T) {
	tr := &Transport{opts: transport.Options{Host: "switch1"}, binary: Binary("rlogin")}
	_, err := tr.buildCommand()
	require.Error(t, err)
}

func TestFilteredEnv_RemovesExcluded(t *testing.T) {
	t.Setenv("NETSHELL_TEST_VAR", "1")
	env := filteredEnv("NETSHELL_TEST_VAR")
	for _, e := range env {
		assert.NotContains(t, e, "NETSHELL_TEST_VAR=")
	}
}
