// Command netshell-cli is a general-purpose network-device client built on
// go-netshell. It supports running show commands, pushing configuration lines,
// and recording an on-disk session transcript, across SSH, system ssh/telnet,
// and raw Telnet transports.
//
// Password can be provided via:
//   - -pass flag (least secure, visible in process list)
//   - NETSHELL_PASSWORD environment variable (recommended)
//   - stdin prompt (if neither flag nor env var is set)
//
// Usage:
//
//	netshell-cli -host switch1 -user admin -platform ciscoiosxe -command "show version"
//
// Examples:
//
//	# Using environment variable (recommended)
//	export NETSHELL_PASSWORD='secret'
//	netshell-cli -host switch1 -user admin -platform ciscoiosxe -command "show version"
//
//	# Pushing configuration
//	netshell-cli -host switch1 -user admin -platform ciscoiosxe -config "hostname switch1"
//
//	# Over the system ssh(1) binary instead of an in-process SSH client
//	netshell-cli -host switch1 -user admin -platform aristaeos -transport system -command "show version"
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/smnsjas/go-netshell"
	"github.com/smnsjas/go-netshell/channel"
	"github.com/smnsjas/go-netshell/driver"
	"github.com/smnsjas/go-netshell/internal/audit"
	netshelllog "github.com/smnsjas/go-netshell/internal/log"
	"github.com/smnsjas/go-netshell/internal/sessionlog"
	"github.com/smnsjas/go-netshell/platform/aristaeos"
	"github.com/smnsjas/go-netshell/platform/ciscoiosxe"
	"github.com/smnsjas/go-netshell/platform/ciscoiosxr"
	"github.com/smnsjas/go-netshell/platform/junipernos"
	"github.com/smnsjas/go-netshell/privilege"
	"github.com/smnsjas/go-netshell/transport"
	_ "github.com/smnsjas/go-netshell/transport/cryptossh"
	_ "github.com/smnsjas/go-netshell/transport/system"
	_ "github.com/smnsjas/go-netshell/transport/telnet"
)

func main() {
	host := flag.String("host", "", "device hostname or IP")
	port := flag.Int("port", 0, "device port (default: 22 for ssh/system, 23 for telnet)")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password (use NETSHELL_PASSWORD env var instead)")
	authSecondary := flag.String("auth-secondary", "", "secondary/enable password (use NETSHELL_AUTH_SECONDARY env var instead)")
	platformName := flag.String("platform", "ciscoiosxe", "ciscoiosxe, ciscoiosxr, junipernos, or aristaeos")
	transportName := flag.String("transport", "cryptossh", "cryptossh, system, or telnet")
	insecure := flag.Bool("insecure", true, "skip SSH host key verification (cryptossh transport only)")

	command := flag.String("command", "", "command to run (repeat with ; to separate multiple)")
	configLine := flag.String("config", "", "configuration line to push (repeat with ; to separate multiple)")
	failedWhenContains := flag.String("failed-when-contains", "", "comma-separated substrings marking command output as failed")
	stripPrompt := flag.Bool("strip-prompt", true, "strip the trailing device prompt from command output")

	timeout := flag.Duration("timeout", 30*time.Second, "per-operation timeout")
	connectTimeout := flag.Duration("connect-timeout", 10*time.Second, "connection timeout")

	breakerThreshold := flag.Int("breaker-threshold", 0, "circuit breaker failure threshold (0 disables)")
	breakerTimeout := flag.Duration("breaker-timeout", 30*time.Second, "circuit breaker reset timeout")

	reconnect := flag.Bool("reconnect", false, "reconnect (with backoff) after a dropped connection, on the next operation")
	reconnectMaxAttempts := flag.Int("reconnect-max-attempts", 0, "reconnect attempt limit (0 means unlimited)")
	reconnectInitialDelay := flag.Duration("reconnect-initial-delay", time.Second, "initial reconnect backoff delay")
	reconnectMaxDelay := flag.Duration("reconnect-max-delay", 30*time.Second, "reconnect backoff delay cap")

	transcriptPath := flag.String("transcript", "", "path to write a session byte transcript")
	transcriptMaxSize := flag.Int64("transcript-max-size", 10*1024*1024, "transcript rotation size in bytes")
	transcriptBackups := flag.Int("transcript-backups", 3, "transcript rotation backups to keep")

	logLevel := flag.String("loglevel", "info", "debug, info, warn, or error")

	flag.Parse()

	if *host == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Error: -host and -user are required")
		flag.Usage()
		os.Exit(1)
	}
	if *command == "" && *configLine == "" {
		fmt.Fprintln(os.Stderr, "Error: one of -command or -config is required")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(netshelllog.NewRedactingHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)})))

	graph, hooks, defaultLevel, err := platformFor(*platformName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	resolvedPort := *port
	if resolvedPort == 0 {
		if *transportName == "telnet" {
			resolvedPort = 23
		} else {
			resolvedPort = 22
		}
	}

	pass := getPassword(*password, "NETSHELL_PASSWORD")
	secondary := *authSecondary
	if secondary == "" {
		secondary = os.Getenv("NETSHELL_AUTH_SECONDARY")
	}

	var transcript *sessionlog.Writer
	if *transcriptPath != "" {
		transcript, err = sessionlog.Open(*transcriptPath, *transcriptMaxSize, *transcriptBackups)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error opening transcript:", err)
			os.Exit(1)
		}
	}

	s, err := driver.New(driver.Config{
		Host:          *host,
		TransportName: *transportName,
		TransportOpts: transport.Options{
			Host:               *host,
			Port:               resolvedPort,
			Username:           *username,
			Password:           pass,
			StrictHostKeyCheck: !*insecure,
			ConnectTimeout:     *connectTimeout,
			ReadTimeout:        *timeout,
		},
		Channel: channel.Config{
			PromptPattern: driver.DefaultPromptPattern,
			TimeoutOps:    *timeout,
		},
		Graph:               graph,
		DefaultDesiredLevel: defaultLevel,
		AuthSecondary:       secondary,
		InBandAuth:          inBandAuthPromptsFor(*transportName),
		Hooks:               hooks,
		Logger:              logger,
		AuditLogger:         audit.New(logger),
		Transcript:          transcript,
		CircuitBreaker: &driver.CircuitBreakerPolicy{
			Enabled:          *breakerThreshold > 0,
			FailureThreshold: *breakerThreshold,
			ResetTimeout:     *breakerTimeout,
		},
		Reconnect: &driver.ReconnectPolicy{
			Enabled:      *reconnect,
			MaxAttempts:  *reconnectMaxAttempts,
			InitialDelay: *reconnectInitialDelay,
			MaxDelay:     *reconnectMaxDelay,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building session:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout*2)
	defer cancel()

	if err := s.Open(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error opening session:", err)
		os.Exit(1)
	}
	defer s.Close(context.Background())

	var failSubstrings []string
	if *failedWhenContains != "" {
		failSubstrings = strings.Split(*failedWhenContains, ",")
	}

	exitCode := 0
	if *command != "" {
		if !runCommands(splitLines(*command), func(line string) (*netshell.Result, error) {
			return s.SendCommand(ctx, line+"\n", *stripPrompt, failSubstrings)
		}) {
			exitCode = 1
		}
	}
	if *configLine != "" {
		configLines := splitLines(*configLine)
		results, err := s.SendConfigs(ctx, configLines, *stripPrompt, failSubstrings)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error pushing config:", err)
			os.Exit(1)
		}
		for i, r := range results {
			printResult(configLines[i], r.Result, r.Failed)
			if r.Failed {
				exitCode = 1
			}
		}
	}
	os.Exit(exitCode)
}

func runCommands(lines []string, send func(string) (*netshell.Result, error)) bool {
	ok := true
	for _, line := range lines {
		r, err := send(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		printResult(line, r.Result, r.Failed)
		if r.Failed {
			ok = false
		}
	}
	return ok
}

func splitLines(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printResult(cmd, result string, failed bool) {
	status := "OK"
	if failed {
		status = "FAILED"
	}
	fmt.Printf("\n--- %s [%s] ---\n%s\n", cmd, status, result)
}

// inBandAuthPromptsFor returns the prompt set Session.Open should drive via
// Channel.AuthenticateInBand for transports that hand back a bare login
// prompt. cryptossh authenticates at the transport level and gets nil.
func inBandAuthPromptsFor(transportName string) *channel.InBandAuthPrompts {
	failure := regexp.MustCompile(`(?im)^.*(permission denied|authentication failed|login incorrect).*$`)
	password := regexp.MustCompile(`(?im)^.*password:\s*$`)
	switch transportName {
	case "system":
		return &channel.InBandAuthPrompts{Password: password, Failure: failure}
	case "telnet":
		return &channel.InBandAuthPrompts{
			Username: regexp.MustCompile(`(?im)^.*(login|username):\s*$`),
			Password: password,
			Failure:  failure,
		}
	default:
		return nil
	}
}

func platformFor(name string) (*privilege.Graph, driver.Hooks, string, error) {
	switch name {
	case "ciscoiosxe":
		g, err := ciscoiosxe.NewGraph()
		return g, ciscoiosxe.Hooks(), ciscoiosxe.DefaultDesiredLevel, err
	case "ciscoiosxr":
		g, err := ciscoiosxr.NewGraph()
		return g, ciscoiosxr.Hooks(), ciscoiosxr.DefaultDesiredLevel, err
	case "junipernos":
		g, err := junipernos.NewGraph()
		return g, junipernos.Hooks(), junipernos.DefaultDesiredLevel, err
	case "aristaeos":
		g, err := aristaeos.NewGraph()
		return g, aristaeos.Hooks(), aristaeos.DefaultDesiredLevel, err
	default:
		return nil, driver.Hooks{}, "", fmt.Errorf("unknown platform %q", name)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getPassword returns the secret from flagValue, then envVar, then prompts for
// it (hiding input on a terminal, reading a line otherwise for piped stdin). An
// empty envVar name means no env var fallback and no prompt: the secret is
// empty unless flagValue is set.
func getPassword(flagValue, envVar string) string {
	if flagValue != "" {
		return flagValue
	}
	if envVar != "" {
		if envPass := os.Getenv(envVar); envPass != "" {
			return envPass
		}
	}
	if envVar == "" {
		return ""
	}

	fmt.Fprintf(os.Stderr, "%s: ", envVar)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		passBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return ""
		}
		return string(passBytes)
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
