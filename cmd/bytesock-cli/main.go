// Command bytesock-cli is an interactive client for binary-stream endpoints.
//
// It maintains one managed connection and exposes the connection lifecycle
// on a readline prompt: connect, send frames, watch lifecycle and data
// events, disconnect. Inbound frames are printed as hex.
//
// Usage:
//
//	bytesock-cli [flags]
//
// Flags:
//
//	-addr string       Endpoint address, e.g. ws://host:8080/stream
//	-config string     Configuration file path (YAML)
//	-capture string    Capture file path for connection events
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Connect interactively to a local endpoint
//	bytesock-cli -addr ws://127.0.0.1:8080/stream
//
//	# Use a config file and record a capture trace
//	bytesock-cli -config client.yaml -capture session.blog
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"

	"github.com/bytesock/bytesock-go/pkg/connection"
	caplog "github.com/bytesock/bytesock-go/pkg/log"
)

// fileConfig mirrors the YAML configuration file.
type fileConfig struct {
	Address          string `yaml:"address"`
	Autoconnect      bool   `yaml:"autoconnect"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	CaptureFile      string `yaml:"capture_file"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func parseLogLevel(s string) slog.Level {
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

func main() {
	var (
		addrFlag    = flag.String("addr", "", "endpoint address, e.g. ws://host:8080/stream")
		configFlag  = flag.String("config", "", "configuration file path (YAML)")
		captureFlag = flag.String("capture", "", "capture file path for connection events")
		levelFlag   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg := &fileConfig{}
	if *configFlag != "" {
		loaded, err := loadConfig(*configFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags override the config file
	if *addrFlag != "" {
		cfg.Address = *addrFlag
	}
	if *captureFlag != "" {
		cfg.CaptureFile = *captureFlag
	}
	if cfg.Address == "" {
		fmt.Fprintln(os.Stderr, "an endpoint address is required (-addr or config file)")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(*levelFlag),
	}))

	var capture caplog.Logger = caplog.NoopLogger{}
	if cfg.CaptureFile != "" {
		fl, err := caplog.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open capture file: %v\n", err)
			os.Exit(1)
		}
		defer fl.Close()
		capture = fl
	}

	var reconnectDelay time.Duration
	if cfg.ReconnectDelayMs < 0 {
		reconnectDelay = -1
	} else {
		reconnectDelay = time.Duration(cfg.ReconnectDelayMs) * time.Millisecond
	}

	client, err := connection.New(connection.Config{
		Address:        cfg.Address,
		Autoconnect:    cfg.Autoconnect,
		ReconnectDelay: reconnectDelay,
		Logger:         logger,
		ProtocolLogger: capture,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Destroy()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bytesock> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	out := rl.Stdout()

	client.Events().Connected.Subscribe(func(struct{}) {
		fmt.Fprintln(out, "* connected")
	})
	client.Events().Disconnected.Subscribe(func(struct{}) {
		fmt.Fprintln(out, "* disconnected")
	})
	client.Events().Error.Subscribe(func(err error) {
		fmt.Fprintf(out, "* error: %v\n", err)
	})
	client.Events().Data.Subscribe(func(frame []byte) {
		fmt.Fprintf(out, "* data (%d bytes): %s\n", len(frame), hex.EncodeToString(frame))
	})

	run(rl, client)
}

func run(rl *readline.Instance, client *connection.Client) {
	out := rl.Stdout()
	printHelp(out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			printHelp(out)

		case "connect", "c":
			cmdConnect(out, rl, client)

		case "disconnect", "d":
			client.Disconnect()
			fmt.Fprintln(out, "Disconnected; automatic reconnect is now off.")

		case "send", "s":
			cmdSend(out, client, []byte(strings.Join(args, " ")))

		case "sendhex", "sx":
			cmdSendHex(out, client, args)

		case "status", "st":
			fmt.Fprintf(out, "State: %s\n", client.State())

		case "quit", "exit", "q":
			fmt.Fprintln(out, "Exiting...")
			return

		default:
			fmt.Fprintf(out, "Unknown command %q. Type 'help' for commands.\n", cmd)
		}
	}
}

func cmdConnect(out io.Writer, rl *readline.Instance, client *connection.Client) {
	ch := client.ConnectAsync()
	go func() {
		if err := <-ch; err != nil {
			fmt.Fprintf(rl.Stdout(), "* connect failed: %v\n", err)
		}
	}()
	fmt.Fprintln(out, "Connecting...")
}

func cmdSend(out io.Writer, client *connection.Client, payload []byte) {
	if len(payload) == 0 {
		fmt.Fprintln(out, "Usage: send <text>")
		return
	}
	if err := client.Send(payload); err != nil {
		fmt.Fprintf(out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Sent %d bytes.\n", len(payload))
}

func cmdSendHex(out io.Writer, client *connection.Client, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "Usage: sendhex <hex>")
		return
	}
	payload, err := hex.DecodeString(args[0])
	if err != nil {
		fmt.Fprintf(out, "Invalid hex: %v\n", err)
		return
	}
	if err := client.Send(payload); err != nil {
		fmt.Fprintf(out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Sent %d bytes.\n", len(payload))
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `Commands:
  connect, c           Connect to the endpoint
  disconnect, d        Disconnect and disable automatic reconnect
  send, s <text>       Send a text payload as a binary frame
  sendhex, sx <hex>    Send a hex-encoded binary frame
  status, st           Show the connection state
  help, ?              Show this help
  quit, exit, q        Exit`)
}
