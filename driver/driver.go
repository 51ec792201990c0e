// Package driver implements the Session/NetworkDriver layer from SPEC_FULL.md
// section 4.3: it composes a Channel, a privilege.Graph, and a Transport into the
// public send_command(s)/send_config(s)/send_interactive surface, handling
// privilege acquisition, defer-based restoration, and connection lifecycle.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/channel"
	"github.com/smnsjas/go-netshell/internal/audit"
	"github.com/smnsjas/go-netshell/internal/sessionlog"
	"github.com/smnsjas/go-netshell/privilege"
	"github.com/smnsjas/go-netshell/transport"
)

// DefaultPromptPattern is the generic catch-all prompt regex a Session starts
// with before any privilege level is known, matching the device's conventional
// shell prompt character set. It is narrowed to each privilege.Level's own
// pattern during AcquirePriv's first escalate/de-escalate transition; callers
// that build a Config with no Channel.PromptPattern of their own should use
// this for the initial value.
var DefaultPromptPattern = regexp.MustCompile(`(?m)^[a-zA-Z0-9.\-@()/:_]{1,64}[>#$]\s*$`)

// Hooks let a platform package (platform/ciscoiosxe and friends) customize
// connection bring-up/tear-down and configuration-session abort behavior without
// the core depending on any vendor package.
type Hooks struct {
	// PreLogin runs once the transport is open, before anything else.
	PreLogin func(ctx context.Context, s *Session) error
	// DisablePaging runs after PreLogin; typically sends "terminal length 0" or
	// equivalent. Most platforms set this.
	DisablePaging func(ctx context.Context, s *Session) error
	// OnClose runs before the transport is closed.
	OnClose func(ctx context.Context, s *Session) error
	// ConfigSessionAbort is sent when SendConfigs must bail out mid-session
	// (e.g. "abort" on IOS-XR candidate configs) instead of simply de-escalating.
	ConfigSessionAbort string
}

// Config configures a Session.
type Config struct {
	Host string

	TransportName string
	TransportOpts transport.Options

	Channel channel.Config

	Graph               *privilege.Graph
	DefaultDesiredLevel string
	AuthSecondary       string

	// InBandAuth configures the prompt set Session.Open drives via
	// Channel.AuthenticateInBand once the transport is open, before any
	// PreLogin hook (SPEC_FULL.md section 4.3's hook ordering). Leave nil for
	// transports that authenticate at the transport level (cryptossh);
	// required for transports that hand back a bare login prompt (system,
	// telnet). Credentials come from TransportOpts.Username/Password/
	// PrivateKeyPassphrase.
	InBandAuth *channel.InBandAuthPrompts

	Hooks Hooks

	Logger      *slog.Logger
	AuditLogger *audit.Logger
	Transcript  *sessionlog.Writer

	Clock netshell.Clock

	CircuitBreaker *CircuitBreakerPolicy
	Reconnect      *ReconnectPolicy
}

// Session owns one Transport/Channel pair for the lifetime of a connection to
// one device. Every public operation serializes through the Channel's own
// opLock; Session itself adds no further locking, matching spec.md section 5's
// "one Session, one Transport, exclusively" model.
type Session struct {
	cfg     Config
	clock   netshell.Clock
	logger  *slog.Logger
	audit   *audit.Logger
	breaker *CircuitBreaker

	transport transport.Transport
	channel   *channel.Channel
	graph     *privilege.Graph

	closed         bool
	needsReconnect bool
}

// New validates cfg and returns an unopened Session. Call Open before issuing
// any command.
func New(cfg Config) (*Session, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: session host is required", netshell.ErrInvalidConfig)
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("%w: session requires a privilege graph", netshell.ErrInvalidConfig)
	}
	if cfg.DefaultDesiredLevel == "" {
		cfg.DefaultDesiredLevel = cfg.Graph.DefaultDesiredLevel()
	}
	if _, ok := cfg.Graph.Level(cfg.DefaultDesiredLevel); !ok {
		return nil, fmt.Errorf("%w: default desired level %q not in graph", netshell.ErrInvalidConfig, cfg.DefaultDesiredLevel)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = netshell.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Reconnect == nil {
		cfg.Reconnect = DefaultReconnectPolicy()
	}

	t, err := transport.New(cfg.TransportName, cfg.TransportOpts)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		audit:     cfg.AuditLogger,
		breaker:   NewCircuitBreaker(cfg.CircuitBreaker, clock),
		transport: t,
		graph:     cfg.Graph,
	}, nil
}

// Open dials the transport (through the circuit breaker), builds the Channel,
// and runs PreLogin/DisablePaging hooks. Only Open is guarded by the circuit
// breaker: once a Session is up, command execution is never retried or
// fast-failed, since a command may have already reached the device.
func (s *Session) Open(ctx context.Context) error {
	s.audit.Log(audit.EventConnection, "open", "", s.cfg.Host, audit.OutcomeAttempt, audit.SeverityInfo, nil)

	err := s.breaker.Execute(func() error {
		return s.transport.Open(ctx)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			s.audit.Log(audit.EventConnection, "open", "", s.cfg.Host, audit.OutcomeDenied, audit.SeverityWarning, nil)
			return err
		}
		s.audit.Log(audit.EventConnection, "open", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityError,
			map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %v", netshell.ErrTransportOpen, err)
	}

	s.channel = channel.New(s.transport, s.cfg.Channel)

	if s.cfg.InBandAuth != nil {
		creds := channel.InBandAuthCredentials{
			Username:   s.cfg.TransportOpts.Username,
			Password:   s.cfg.TransportOpts.Password,
			Passphrase: string(s.cfg.TransportOpts.PrivateKeyPassphrase),
		}
		if err := s.channel.AuthenticateInBand(ctx, *s.cfg.InBandAuth, creds, s.cfg.Host); err != nil {
			s.audit.Log(audit.EventAuthentication, "in_band", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityError,
				map[string]any{"error": err.Error()})
			return err
		}
		s.audit.Log(audit.EventAuthentication, "in_band", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo, nil)
	}

	if s.cfg.Hooks.PreLogin != nil {
		if err := s.cfg.Hooks.PreLogin(ctx, s); err != nil {
			s.audit.Log(audit.EventConnection, "pre_login_hook", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityError, nil)
			return err
		}
	}
	if s.cfg.Hooks.DisablePaging != nil {
		if err := s.cfg.Hooks.DisablePaging(ctx, s); err != nil {
			return err
		}
	}

	s.audit.Log(audit.EventConnection, "open", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo, nil)
	s.logger.Info("session opened", "host", s.cfg.Host)
	return nil
}

// Close runs the OnClose hook and tears down the transport. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if s.cfg.Hooks.OnClose != nil {
		_ = s.cfg.Hooks.OnClose(ctx, s)
	}
	s.closed = true
	err := s.transport.Close()
	if s.cfg.Transcript != nil {
		_ = s.cfg.Transcript.Close()
	}
	s.audit.Log(audit.EventConnection, "close", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo, nil)
	s.logger.Info("session closed", "host", s.cfg.Host)
	return err
}

// Channel exposes the underlying Channel for platform hooks and advanced
// callers that need raw read/write access (e.g. a disable-paging hook).
func (s *Session) Channel() *channel.Channel {
	return s.channel
}

// Host returns the configured device host.
func (s *Session) Host() string {
	return s.cfg.Host
}

// checkOpenCtx verifies the Session is usable and, per SPEC_FULL.md's reconnect
// invariant, re-dials the transport first if the previous operation left it
// flagged dead. The failed operation that tripped the original ConnectionError
// already returned its own Result/error; this only affects the *next* call.
func (s *Session) checkOpenCtx(ctx context.Context) error {
	if s.closed || s.channel == nil {
		return netshell.ErrSessionClosed
	}
	if s.needsReconnect {
		return s.reconnectIfNeeded(ctx)
	}
	return nil
}

// GetPrompt returns the device's current prompt text.
func (s *Session) GetPrompt(ctx context.Context) (string, error) {
	if err := s.checkOpenCtx(ctx); err != nil {
		return "", err
	}
	prompt, err := s.channel.GetPrompt(ctx)
	s.noteConnectionError(err)
	return prompt, err
}

func (s *Session) determineCurrentLevel(ctx context.Context) (privilege.Level, error) {
	prompt, err := s.channel.GetPrompt(ctx)
	if err != nil {
		return privilege.Level{}, err
	}
	return s.graph.DetermineCurrentLevel(prompt)
}

// AcquirePriv drives the escalate/de-escalate loop until the channel is sitting
// at desiredLevel, bounded at 2*len(graph) transitions (spec.md section 4.2) to
// guarantee termination against a misconfigured or cyclic-looking graph.
func (s *Session) AcquirePriv(ctx context.Context, desiredLevel string) error {
	if err := s.checkOpenCtx(ctx); err != nil {
		return err
	}
	target, ok := s.graph.Level(desiredLevel)
	if !ok {
		return fmt.Errorf("%w: %q", netshell.ErrUnknownPrivilegeLevel, desiredLevel)
	}

	current, err := s.determineCurrentLevel(ctx)
	if err != nil {
		s.noteConnectionError(err)
		return err
	}
	if current.Name == target.Name {
		return nil
	}

	maxAttempts := s.graph.Len() * 2
	for attempt := 0; ; attempt++ {
		if attempt >= maxAttempts {
			s.audit.Log(audit.EventPrivilege, "acquire", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityError,
				map[string]any{"desired": desiredLevel, "current": current.Name})
			return fmt.Errorf("%w: target %q from %q", netshell.ErrCouldNotAcquirePrivLevel, desiredLevel, current.Name)
		}

		var next privilege.Level
		if current.Depth > target.Depth {
			next, err = s.deescalate(ctx, current)
		} else {
			next, err = s.escalate(ctx, current)
		}
		if err != nil {
			s.noteConnectionError(err)
			return err
		}
		current = next
		if current.Name == target.Name {
			return nil
		}
	}
}

// escalate drives one escalate edge and returns the level reached, trusting the
// transition that was just confirmed by the Channel rather than re-querying the
// prompt (spec.md's iteration bound still guards against a transition that
// silently lands somewhere unexpected: the caller compares current.Name against
// its target on every loop iteration).
func (s *Session) escalate(ctx context.Context, current privilege.Level) (privilege.Level, error) {
	if current.NextLevel == "" {
		return privilege.Level{}, fmt.Errorf("%w: %q has no escalate edge", netshell.ErrUnknownPrivilegeLevel, current.Name)
	}
	next, ok := s.graph.Level(current.NextLevel)
	if !ok {
		return privilege.Level{}, fmt.Errorf("%w: %q escalates to unknown %q", netshell.ErrUnknownPrivilegeLevel, current.Name, current.NextLevel)
	}

	if current.EscalateAuth {
		s.channel.SetPromptPattern(current.EscalatePrompt)
		if _, _, err := s.channel.SendInput(ctx, current.EscalateCmd, false, false); err != nil {
			return privilege.Level{}, err
		}
		s.channel.SetPromptPattern(next.Pattern)
		if err := s.channel.Write(ctx, []byte(s.cfg.AuthSecondary), true); err != nil {
			return privilege.Level{}, err
		}
		if err := s.channel.SendReturn(ctx); err != nil {
			return privilege.Level{}, err
		}
		if _, err := s.channel.ReadUntilPrompt(ctx, next.Pattern); err != nil {
			if errors.Is(err, netshell.ErrChannelTimeout) {
				authErr := &netshell.AuthenticationError{Host: s.cfg.Host, Stage: "secondary"}
				s.audit.Log(audit.EventAuthentication, "secondary", "", s.cfg.Host, audit.OutcomeFailure, audit.SeverityError, nil)
				return privilege.Level{}, authErr
			}
			return privilege.Level{}, err
		}
		s.audit.Log(audit.EventPrivilege, "escalate", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo,
			map[string]any{"from": current.Name, "to": next.Name})
		return next, nil
	}

	s.channel.SetPromptPattern(next.Pattern)
	if _, _, err := s.channel.SendInput(ctx, current.EscalateCmd, true, false); err != nil {
		return privilege.Level{}, err
	}
	s.audit.Log(audit.EventPrivilege, "escalate", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo,
		map[string]any{"from": current.Name, "to": next.Name})
	return next, nil
}

func (s *Session) deescalate(ctx context.Context, current privilege.Level) (privilege.Level, error) {
	if current.PreviousLevel == "" {
		return privilege.Level{}, fmt.Errorf("%w: %q has no de-escalate edge", netshell.ErrUnknownPrivilegeLevel, current.Name)
	}
	prev, ok := s.graph.Level(current.PreviousLevel)
	if !ok {
		return privilege.Level{}, fmt.Errorf("%w: %q de-escalates to unknown %q", netshell.ErrUnknownPrivilegeLevel, current.Name, current.PreviousLevel)
	}
	s.channel.SetPromptPattern(prev.Pattern)
	if _, _, err := s.channel.SendInput(ctx, current.DeescalateCmd, true, false); err != nil {
		return privilege.Level{}, err
	}
	s.audit.Log(audit.EventPrivilege, "deescalate", "", s.cfg.Host, audit.OutcomeSuccess, audit.SeverityInfo,
		map[string]any{"from": current.Name, "to": prev.Name})
	return prev, nil
}

// SendCommand runs one command at the default desired privilege level.
func (s *Session) SendCommand(ctx context.Context, command string, stripPrompt bool, failedWhenContains []string) (*netshell.Result, error) {
	results, err := s.SendCommands(ctx, []string{command}, stripPrompt, false, failedWhenContains)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// SendCommands runs commands in order at the default desired privilege level. If
// stopOnFailed is true, it stops issuing further commands as soon as one Result
// comes back Failed (but still returns every Result produced so far).
func (s *Session) SendCommands(ctx context.Context, commands []string, stripPrompt, stopOnFailed bool, failedWhenContains []string) ([]*netshell.Result, error) {
	if err := s.checkOpenCtx(ctx); err != nil {
		return nil, err
	}
	if err := s.AcquirePriv(ctx, s.cfg.DefaultDesiredLevel); err != nil {
		return nil, err
	}

	results := make([]*netshell.Result, 0, len(commands))
	for _, cmd := range commands {
		result := netshell.NewResult(s.clock, s.cfg.Host, cmd, failedWhenContains)
		raw, processed, err := s.channel.SendInput(ctx, cmd, stripPrompt, false)
		if err != nil {
			s.noteConnectionError(err)
			return results, err
		}
		result.RecordResult(s.clock, raw, string(processed))
		s.audit.Log(audit.EventCommand, "send_command", result.CorrelationID, s.cfg.Host,
			outcomeFor(result.Failed), severityFor(result.Failed), map[string]any{"command": cmd})
		results = append(results, result)
		if stopOnFailed && result.Failed {
			break
		}
	}
	return results, nil
}

// SendConfigs acquires the configuration privilege level, sends each config
// line, and restores the default desired level before returning -- even on
// error, via defer, so a failed config push never strands the Session in
// configuration mode (spec.md section 4.3).
func (s *Session) SendConfigs(ctx context.Context, configs []string, stripPrompt bool, failedWhenContains []string) (results []*netshell.Result, err error) {
	if err := s.checkOpenCtx(ctx); err != nil {
		return nil, err
	}
	if err := s.AcquirePriv(ctx, "configuration"); err != nil {
		return nil, err
	}

	defer func() {
		if restoreErr := s.AcquirePriv(ctx, s.cfg.DefaultDesiredLevel); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	results = make([]*netshell.Result, 0, len(configs))
	for _, cfg := range configs {
		result := netshell.NewResult(s.clock, s.cfg.Host, cfg, failedWhenContains)
		raw, processed, sendErr := s.channel.SendInput(ctx, cfg, stripPrompt, false)
		if sendErr != nil {
			s.noteConnectionError(sendErr)
			err = sendErr
			return results, err
		}
		result.RecordResult(s.clock, raw, string(processed))
		s.audit.Log(audit.EventCommand, "send_config", result.CorrelationID, s.cfg.Host,
			outcomeFor(result.Failed), severityFor(result.Failed), map[string]any{"config": cfg})
		results = append(results, result)
		if result.Failed && s.cfg.Hooks.ConfigSessionAbort != "" {
			_, _, _ = s.channel.SendInput(ctx, s.cfg.Hooks.ConfigSessionAbort, true, false)
			break
		}
	}
	return results, nil
}

// SendInteractive drives a scripted confirmation dialog (spec.md's
// send_inputs_interact) and returns a single Result covering the whole exchange.
func (s *Session) SendInteractive(ctx context.Context, events []channel.InteractEvent, finale *regexp.Regexp, failedWhenContains []string) (*netshell.Result, error) {
	if err := s.checkOpenCtx(ctx); err != nil {
		return nil, err
	}
	if err := s.AcquirePriv(ctx, s.cfg.DefaultDesiredLevel); err != nil {
		return nil, err
	}

	var channelInput string
	if len(events) > 0 {
		channelInput = events[0].Input
	}
	result := netshell.NewResult(s.clock, s.cfg.Host, channelInput, failedWhenContains)
	if len(events) > 0 {
		if events[0].ExpectPrompt != nil {
			result.Expectation = events[0].ExpectPrompt.String()
		}
		result.Response = events[0].Input
	}
	finalPattern := finale
	if finalPattern == nil {
		finalPattern = s.channel.PromptPattern()
	}
	if finalPattern != nil {
		result.Finale = finalPattern.String()
	}
	raw, processed, err := s.channel.SendInputsInteract(ctx, events, finale)
	if err != nil {
		s.noteConnectionError(err)
		return nil, err
	}
	result.RecordResult(s.clock, raw, string(processed))
	s.audit.Log(audit.EventCommand, "send_interactive", result.CorrelationID, s.cfg.Host,
		outcomeFor(result.Failed), severityFor(result.Failed), nil)
	return result, nil
}

// RegisterConfigurationSession adds a named configuration sub-level (e.g. IOS-XE
// "config-vlan") rooted at fromLevel, for drivers that need to model a
// sub-editor's own prompt and privilege semantics. Must be called while idle
// (no operation in flight); it does not itself acquire the new level.
func (s *Session) RegisterConfigurationSession(lvl privilege.Level, fromLevel string) error {
	return s.graph.RegisterConfigurationSession(lvl, fromLevel)
}

// UnregisterConfigurationSession removes a level added by
// RegisterConfigurationSession.
func (s *Session) UnregisterConfigurationSession(name string) {
	s.graph.UnregisterConfigurationSession(name)
}

func outcomeFor(failed bool) string {
	if failed {
		return audit.OutcomeFailure
	}
	return audit.OutcomeSuccess
}

func severityFor(failed bool) string {
	if failed {
		return audit.SeverityWarning
	}
	return audit.SeverityInfo
}
