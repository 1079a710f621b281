package main

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOMEWORKS_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HOMEWORKS_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("HOMEWORKS_CONFIG", "/etc/homeworks/config.yaml")
	if got := getConfigPath(); got != "/etc/homeworks/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestProcessorConfig_Conversion(t *testing.T) {
	got := processorConfig(config.ProcessorConfig{
		Host:              "10.0.0.5",
		Port:              23,
		Username:          "hwuser",
		CommandTimeout:    5,
		NoResponseWindow:  200,
		KeepaliveInterval: 60,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 250,
			MaxDelay:     60,
		},
	})

	if got.Host != "10.0.0.5" || got.Port != 23 {
		t.Errorf("address = %s:%d, want 10.0.0.5:23", got.Host, got.Port)
	}
	if got.CommandTimeout != 5*time.Second {
		t.Errorf("CommandTimeout = %v, want 5s", got.CommandTimeout)
	}
	if got.NoResponseWindow != 200*time.Millisecond {
		t.Errorf("NoResponseWindow = %v, want 200ms", got.NoResponseWindow)
	}
	if got.ReconnectInitialDelay != 250*time.Millisecond {
		t.Errorf("ReconnectInitialDelay = %v, want 250ms", got.ReconnectInitialDelay)
	}
	if got.ReconnectMaxDelay != 60*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 60s", got.ReconnectMaxDelay)
	}
}

func TestBuildForwardTable(t *testing.T) {
	if table := buildForwardTable(config.ForwardConfig{}); table != nil {
		t.Error("expected nil table for empty config")
	}

	table := buildForwardTable(config.ForwardConfig{
		Timeout: 10,
		Servers: map[string]config.ForwardServerConfig{
			"lighting": {URL: "http://localhost:8061/api/v1/mcp"},
		},
	})
	if table == nil || table.Empty() {
		t.Fatal("expected a populated table")
	}
	if _, rest, ok := table.Route("lighting/set_output_level"); !ok || rest != "set_output_level" {
		t.Errorf("Route = %q/%v, want set_output_level/true", rest, ok)
	}
}
