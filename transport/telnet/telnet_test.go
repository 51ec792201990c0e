package telnet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell/transport"
)

func newPipeTransport(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	client, peer := net.Pipe()
	tr := &Transport{opts: transport.Options{Host: "switch1", Port: 23}, conn: client}
	return tr, peer
}

func TestRead_StripsIACAndAnswersOptions(t *testing.T) {
	tr, peer := newPipeTransport(t)
	defer peer.Close()

	go func() {
		// IAC DO ECHO(1), IAC WILL SGA(3), then plain text.
		peer.Write([]byte{255, 253, 1, 255, 251, 3})
		peer.Write([]byte("switch>"))
	}()

	go func() {
		buf := make([]byte, 16)
		peer.Read(buf) // consume the refusal reply telnet writes back
	}()

	text, err := tr.Read(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(text), "switch>")
}

func TestRead_ContextCancellation(t *testing.T) {
	tr, peer := newPipeTransport(t)
	defer peer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Read(ctx)
	require.Error(t, err)
}

func TestNegotiateIAC_SkipsSubnegotiation(t *testing.T) {
	tr, peer := newPipeTransport(t)
	defer peer.Close()

	chunk := []byte{255, 250, 24, 0, 'x', 'x', 'x', 255, 240}
	chunk = append(chunk, []byte("switch#")...)
	out, err := tr.negotiateIAC(context.Background(), chunk)
	require.NoError(t, err)
	assert.Equal(t, "switch#", string(out))
}
