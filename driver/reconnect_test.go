package driver

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/channel"
	"github.com/smnsjas/go-netshell/privilege"
	"github.com/smnsjas/go-netshell/transport"
	"github.com/smnsjas/go-netshell/transport/mock"
)

const reconnectTestTransportName = "reconnecttest-mock"

var (
	reconnectRegisterOnce sync.Once
	reconnectMu           sync.Mutex
	reconnectCurrentMock  *mock.Transport
)

func useReconnectMockTransport(mt *mock.Transport) {
	reconnectRegisterOnce.Do(func() {
		transport.Register(reconnectTestTransportName, transport.ModeSync, func(transport.Options) (transport.Transport, error) {
			reconnectMu.Lock()
			defer reconnectMu.Unlock()
			return reconnectCurrentMock, nil
		})
	})
	reconnectMu.Lock()
	reconnectCurrentMock = mt
	reconnectMu.Unlock()
}

func reconnectTestGraph(t *testing.T) *privilege.Graph {
	t.Helper()
	g, err := privilege.NewGraph([]privilege.Level{
		{
			Name:    "privilege_exec",
			Pattern: regexp.MustCompile(`(?m)^switch#\s*$`),
			Depth:   0,
		},
	}, "privilege_exec")
	require.NoError(t, err)
	return g
}

func newReconnectSession(t *testing.T, mt *mock.Transport, policy *ReconnectPolicy) *Session {
	t.Helper()
	useReconnectMockTransport(mt)
	s, err := New(Config{
		Host:          "switch1",
		TransportName: reconnectTestTransportName,
		Channel: channel.Config{
			TimeoutOps:    time.Second,
			PromptPattern: regexp.MustCompile(`(?m)^\S*#\s*$`),
		},
		Graph:               reconnectTestGraph(t),
		DefaultDesiredLevel: "privilege_exec",
		Reconnect:           policy,
	})
	require.NoError(t, err)
	return s
}

func TestNoteConnectionError_SetsFlagOnlyWhenEnabledAndMatching(t *testing.T) {
	s := newReconnectSession(t, mock.New(), &ReconnectPolicy{Enabled: true})
	s.noteConnectionError(fmt.Errorf("wrap: %w", netshell.ErrConnection))
	assert.True(t, s.needsReconnect)

	s2 := newReconnectSession(t, mock.New(), &ReconnectPolicy{Enabled: false})
	s2.noteConnectionError(fmt.Errorf("wrap: %w", netshell.ErrConnection))
	assert.False(t, s2.needsReconnect)

	s3 := newReconnectSession(t, mock.New(), &ReconnectPolicy{Enabled: true})
	s3.noteConnectionError(netshell.ErrChannelTimeout)
	assert.False(t, s3.needsReconnect)
}

func TestReconnectIfNeeded_NoOpWhenNotFlagged(t *testing.T) {
	s := newReconnectSession(t, mock.New(), &ReconnectPolicy{Enabled: true})
	require.NoError(t, s.reconnectIfNeeded(context.Background()))
}

func TestReconnectIfNeeded_RedialsAndClearsFlag(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n"))
	s := newReconnectSession(t, mt, &ReconnectPolicy{
		Enabled:      true,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	s.needsReconnect = true
	require.NoError(t, s.reconnectIfNeeded(context.Background()))
	assert.False(t, s.needsReconnect)
}

func TestReconnectIfNeeded_GivesUpAfterMaxAttempts(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n"))
	s := newReconnectSession(t, mt, &ReconnectPolicy{
		Enabled:      true,
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	mt.OpenFunc = func(ctx context.Context) error {
		return fmt.Errorf("dial refused")
	}

	s.needsReconnect = true
	err := s.reconnectIfNeeded(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrConnection)
	assert.True(t, s.needsReconnect)
}

func TestJitter_StaysWithinTenPercentBand(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := jitter(d)
		assert.GreaterOrEqual(t, got, d-d/10-time.Millisecond)
		assert.LessOrEqual(t, got, d+d/10+time.Millisecond)
	}
}

func TestJitter_ZeroIsNoOp(t *testing.T) {
	assert.Equal(t, time.Duration(0), jitter(0))
}
