package channel_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/channel"
	"github.com/smnsjas/go-netshell/transport/mock"
)

var promptPattern = regexp.MustCompile(`(?m)^switch#\s*$`)

func newTestChannel(t *testing.T, mt *mock.Transport, cfg channel.Config) *channel.Channel {
	t.Helper()
	if cfg.PromptPattern == nil {
		cfg.PromptPattern = promptPattern
	}
	if cfg.TimeoutOps == 0 {
		cfg.TimeoutOps = time.Second
	}
	return channel.New(mt, cfg)
}

func TestSendInput_SimpleCommand(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n")).Script(
		mock.Step{OnWriteContains: "show version\n", Reply: []byte("show version\nCisco IOS XE\nswitch#\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	_, err := ch.Read(context.Background())
	require.NoError(t, err)

	raw, processed, err := ch.SendInput(context.Background(), "show version\n", true, false)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Cisco IOS XE")
	assert.Equal(t, "Cisco IOS XE", string(processed))
}

func TestSendInput_DoesNotSendDuplicateReturnWhenInputEndsInNewline(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n")).Script(
		mock.Step{OnWriteContains: "show version\n", Reply: []byte("show version\nCisco IOS XE\nswitch#\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	_, err := ch.Read(context.Background())
	require.NoError(t, err)

	_, _, err = ch.SendInput(context.Background(), "show version\n", true, false)
	require.NoError(t, err)

	// Exactly one write carries the command text (with its own trailing
	// newline); there must be no second, separate "\n"-only write -- that
	// would submit a blank Enter the device would answer with an extra prompt.
	require.Len(t, mt.Writes, 1)
	assert.Equal(t, "show version\n", string(mt.Writes[0]))
}

func TestSendInput_StripsOnlyEchoWhenPromptNotStripped(t *testing.T) {
	mt := mock.New().Script(
		mock.Step{OnWriteContains: "show clock\n", Reply: []byte("show clock\n12:00:00 UTC\nswitch#\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	_, processed, err := ch.SendInput(context.Background(), "show clock\n", false, false)
	require.NoError(t, err)
	assert.Equal(t, "12:00:00 UTC\nswitch#", string(processed))
}

func TestSendInput_Eager_WriteOnlyNoRead(t *testing.T) {
	mt := mock.New()
	ch := newTestChannel(t, mt, channel.Config{})

	raw, processed, err := ch.SendInput(context.Background(), "banner motd ^\n", false, true)
	require.NoError(t, err)
	assert.Nil(t, raw)
	assert.Nil(t, processed)
	require.Len(t, mt.Writes, 1)
	assert.Equal(t, "banner motd ^\n", string(mt.Writes[0]))
}

func TestReadUntilPrompt_ConsumesBuffer(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n"))
	ch := newTestChannel(t, mt, channel.Config{})

	out, err := ch.ReadUntilPrompt(context.Background(), promptPattern)
	require.NoError(t, err)
	assert.Equal(t, "switch#\n", string(out))

	mt.QueueReply([]byte("switch#\n"))
	out2, err := ch.ReadUntilPrompt(context.Background(), promptPattern)
	require.NoError(t, err)
	assert.Equal(t, "switch#\n", string(out2))
}

func TestReadUntilExplicitPrompt_ReportsWhichMatched(t *testing.T) {
	confirm := regexp.MustCompile(`(?m)^Confirm \[y/N\]:\s*$`)
	mt := mock.New().QueueReply([]byte("Confirm [y/N]: "))
	ch := newTestChannel(t, mt, channel.Config{})

	_, which, err := ch.ReadUntilExplicitPrompt(context.Background(), []*regexp.Regexp{promptPattern, confirm})
	require.NoError(t, err)
	assert.Equal(t, 1, which)
}

func TestANSIStrip_RemovesEscapeSequences(t *testing.T) {
	mt := mock.New().QueueReply([]byte("\x1b[32mswitch#\x1b[0m\n"))
	ch := newTestChannel(t, mt, channel.Config{ANSIStrip: true})

	out, err := ch.ReadUntilPrompt(context.Background(), promptPattern)
	require.NoError(t, err)
	assert.Equal(t, "switch#\n", string(out))
	assert.NotContains(t, string(out), "\x1b")
}

func TestOperation_TimesOutWithoutPromptMatch(t *testing.T) {
	mt := mock.New()
	ch := newTestChannel(t, mt, channel.Config{TimeoutOps: 10 * time.Millisecond})

	_, err := ch.ReadUntilPrompt(context.Background(), promptPattern)
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrChannelTimeout)
}

func TestReadBuffer_BoundedBySize(t *testing.T) {
	mt := mock.New().Script(
		mock.Step{OnWriteContains: "flood\n", Reply: make([]byte, 4096), ChunkSize: 64},
	)
	ch := newTestChannel(t, mt, channel.Config{MaxBufferBytes: 128, TimeoutOps: time.Second})

	_, _, err := ch.SendInput(context.Background(), "flood\n", false, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, netshell.ErrBufferExceeded)
}

func TestSendInputsInteract_DrivesScriptedDialog(t *testing.T) {
	confirm := regexp.MustCompile(`(?m)^Confirm \[y/N\]:\s*$`)
	mt := mock.New().QueueReply([]byte("Confirm [y/N]: ")).Script(
		mock.Step{OnWriteContains: "y", Reply: []byte("y\nDone.\nswitch#\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	raw, _, err := ch.SendInputsInteract(context.Background(), []channel.InteractEvent{
		{Input: "y", ExpectPrompt: confirm},
	}, promptPattern)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Done.")
}

func TestSetPromptPattern_ChangesActivePrompt(t *testing.T) {
	mt := mock.New()
	ch := newTestChannel(t, mt, channel.Config{})
	enablePattern := regexp.MustCompile(`(?m)^switch\(config\)#\s*$`)

	ch.SetPromptPattern(enablePattern)
	assert.Equal(t, enablePattern, ch.PromptPattern())
}

func TestAuthenticateInBand_AnswersPasswordPromptThenMatchesIdlePrompt(t *testing.T) {
	mt := mock.New().QueueReply([]byte("Password: ")).Script(
		mock.Step{OnWriteContains: "secret\n", Reply: []byte("\nswitch#\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	prompts := channel.InBandAuthPrompts{
		Password: regexp.MustCompile(`(?im)^.*password:\s*$`),
		Failure:  regexp.MustCompile(`(?im)^.*permission denied.*$`),
	}
	err := ch.AuthenticateInBand(context.Background(), prompts, channel.InBandAuthCredentials{Password: "secret"}, "switch1")
	require.NoError(t, err)
}

func TestAuthenticateInBand_RejectsOnFailurePattern(t *testing.T) {
	mt := mock.New().QueueReply([]byte("Password: ")).Script(
		mock.Step{OnWriteContains: "wrong\n", Reply: []byte("\nPermission denied\n")},
	)
	ch := newTestChannel(t, mt, channel.Config{})

	prompts := channel.InBandAuthPrompts{
		Password: regexp.MustCompile(`(?im)^.*password:\s*$`),
		Failure:  regexp.MustCompile(`(?im)^.*permission denied.*$`),
	}
	err := ch.AuthenticateInBand(context.Background(), prompts, channel.InBandAuthCredentials{Password: "wrong"}, "switch1")
	require.Error(t, err)
	assert.True(t, netshell.IsAuthenticationFailure(err))
}

func TestOpLock_SerializesConcurrentCallers(t *testing.T) {
	mt := mock.New().QueueReply([]byte("switch#\n"))
	ch := newTestChannel(t, mt, channel.Config{TimeoutOps: time.Second})

	done := make(chan struct{})
	go func() {
		_, _ = ch.ReadUntilPrompt(context.Background(), promptPattern)
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := ch.Write(ctx, []byte("queued\n"), false)
	<-done
	_ = err // either serialized successfully after the read completed, or context deadline hit first
}
