// Homeworks Proxy - stdio bridge to remote tool servers
//
// Tool hosts such as desktop assistants launch local servers as
// subprocesses speaking JSON-RPC over stdio. This proxy bridges that
// stdio session to remote HTTP tool servers: either one server passed
// with -url, or a composite of named servers from a config file, where
// each server's tools appear under its name prefix
// ("lighting/set_output_level").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
	"github.com/nerrad567/homeworks-core/internal/mcp"
)

var version = "dev"

// proxyConfig is the subset of the config file the proxy reads.
type proxyConfig struct {
	Forward config.ForwardConfig `yaml:"forward"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("homeworks-proxy", flag.ContinueOnError)
	url := fs.String("url", "", "URL of one remote tool server, e.g. http://localhost:8060/api/v1/mcp")
	configPath := fs.String("config", "", "path to a config file with a forward section")
	timeout := fs.Int("timeout", 0, "per-request timeout in seconds (0 uses the default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// stdout carries the protocol; logs must go to stderr.
	log := logging.New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, version)

	timeoutDur := time.Duration(*timeout) * time.Second

	if *url != "" {
		log.Info("bridging stdio to remote server", "url", *url)
		f := mcp.NewForwarder("remote", *url, timeoutDur)
		return bridge(ctx, f, os.Stdin, os.Stdout, log)
	}

	if *configPath == "" {
		fs.Usage()
		return errors.New("either -url or -config is required")
	}

	cfg, err := loadProxyConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Forward.Servers) == 0 {
		return fmt.Errorf("config %s defines no forward servers", *configPath)
	}

	if timeoutDur <= 0 {
		timeoutDur = time.Duration(cfg.Forward.Timeout) * time.Second
	}

	forwarders := make([]*mcp.Forwarder, 0, len(cfg.Forward.Servers))
	names := make([]string, 0, len(cfg.Forward.Servers))
	for name, srv := range cfg.Forward.Servers {
		forwarders = append(forwarders, mcp.NewForwarder(name, srv.URL, timeoutDur))
		names = append(names, name)
	}
	log.Info("serving composite proxy", "servers", strings.Join(names, ","))

	// The composite proxy is a dispatcher with no local tools: it answers
	// initialize and ping itself, merges the downstream catalogues under
	// their prefixes, and routes calls by prefix.
	dispatcher := mcp.NewDispatcher(mcp.NewToolRegistry(), mcp.NewForwardTable(forwarders...), mcp.ServerInfo{
		Name:    "homeworks-proxy",
		Version: version,
	}, log)

	transport := mcp.NewStdioTransport(dispatcher, os.Stdin, os.Stdout, log)
	if err := transport.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bridge relays every request verbatim to one remote server. The remote
// handles initialize and tools itself; notifications are delivered but
// their responses, if any, are dropped.
func bridge(ctx context.Context, f *mcp.Forwarder, in io.Reader, out io.Writer, log *logging.Logger) error {
	reader := bufio.NewReader(in)
	writer := json.NewEncoder(out)

	for {
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr // Shutdown signal is a clean exit
		}

		line, err := reader.ReadString('\n')
		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return err
		}
		if strings.TrimSpace(line) == "" {
			if atEOF {
				return nil
			}
			continue
		}

		var req mcp.Request
		if uerr := json.Unmarshal([]byte(line), &req); uerr != nil {
			writeParseError(writer, log, uerr)
			if atEOF {
				return nil
			}
			continue
		}

		resp := f.Forward(ctx, &req)
		if !req.IsNotification() {
			if werr := writer.Encode(resp); werr != nil {
				log.Error("failed to write response", "error", werr)
			}
		}

		if atEOF {
			return nil
		}
	}
}

func writeParseError(writer *json.Encoder, log *logging.Logger, cause error) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    mcp.CodeParseError,
			"message": "parse error: " + cause.Error(),
		},
	}
	if err := writer.Encode(resp); err != nil {
		log.Error("failed to write parse error", "error", err)
	}
}

func loadProxyConfig(path string) (*proxyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg proxyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}
