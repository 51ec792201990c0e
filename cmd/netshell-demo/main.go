// Command netshell-demo opens one session against a network device and runs a
// fixed demonstration sequence: connect, show the current prompt, run one
// command, then disconnect. It exists to exercise the
// library end to end with the smallest possible flag surface; netshell-cli is
// the full-featured client.
//
// Password can be provided via:
//   - -pass flag (least secure, visible in process list)
//   - NETSHELL_PASSWORD environment variable (recommended)
//   - stdin prompt (if neither flag nor env var is set)
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/smnsjas/go-netshell/channel"
	"github.com/smnsjas/go-netshell/driver"
	netshelllog "github.com/smnsjas/go-netshell/internal/log"
	"github.com/smnsjas/go-netshell/platform/aristaeos"
	"github.com/smnsjas/go-netshell/platform/ciscoiosxe"
	"github.com/smnsjas/go-netshell/platform/ciscoiosxr"
	"github.com/smnsjas/go-netshell/platform/junipernos"
	"github.com/smnsjas/go-netshell/privilege"
	"github.com/smnsjas/go-netshell/transport"
	_ "github.com/smnsjas/go-netshell/transport/cryptossh"
)

func main() {
	host := flag.String("host", "", "device hostname or IP")
	port := flag.Int("port", 22, "SSH port")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password (use NETSHELL_PASSWORD env var instead)")
	platformName := flag.String("platform", "ciscoiosxe", "ciscoiosxe, ciscoiosxr, junipernos, or aristaeos")
	command := flag.String("command", "show version", "command to run after connecting")
	insecure := flag.Bool("insecure", true, "skip SSH host key verification")
	timeout := flag.Duration("timeout", 30*time.Second, "per-operation timeout")
	flag.Parse()

	if *host == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "Error: -host and -user are required")
		flag.Usage()
		os.Exit(1)
	}

	graph, hooks, defaultLevel, err := platformFor(*platformName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	pass := getPassword(*password)

	logger := slog.New(netshelllog.NewRedactingHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	s, err := driver.New(driver.Config{
		Host:          *host,
		TransportName: "cryptossh",
		TransportOpts: transport.Options{
			Host:               *host,
			Port:               *port,
			Username:           *username,
			Password:           pass,
			StrictHostKeyCheck: !*insecure,
			ConnectTimeout:     *timeout,
			ReadTimeout:        *timeout,
		},
		Channel: channel.Config{
			PromptPattern: driver.DefaultPromptPattern,
			TimeoutOps:    *timeout,
		},
		Graph:               graph,
		DefaultDesiredLevel: defaultLevel,
		Hooks:               hooks,
		Logger:              logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building session:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := s.Open(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error opening session:", err)
		os.Exit(1)
	}
	defer s.Close(context.Background())

	prompt, err := s.GetPrompt(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading prompt:", err)
		os.Exit(1)
	}
	fmt.Printf("Connected. Current prompt: %s\n", prompt)

	result, err := s.SendCommand(ctx, *command+"\n", true, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error sending command:", err)
		os.Exit(1)
	}
	fmt.Printf("\n--- %s ---\n%s\n", *command, result.Result)
	if result.Failed {
		fmt.Fprintln(os.Stderr, "command reported failure")
		os.Exit(1)
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

// getPassword returns password from flag, env var, or prompts for it.
func getPassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPass := os.Getenv("NETSHELL_PASSWORD"); envPass != "" {
		return envPass
	}

	fmt.Fprint(os.Stderr, "Password: ")

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
