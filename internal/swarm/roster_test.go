package swarm

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoadRosterRegistersInFileOrder(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: dip-buyer
    role: accumulator
    symbol: BTC/USDT
    side: BUY
    confidence: 0.7
    size: 0.05
    buy_below: 40000
  - id: rsi-watcher
    type: momentum
    symbol: BTC/USDT
    size: 0.1
    period: 7
`)

	c := NewCoordinator(nil)
	n, err := LoadRoster(path, c)
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d agents, want 2", n)
	}

	agents := c.Agents()
	if agents[0].ID() != "dip-buyer" || agents[1].ID() != "rsi-watcher" {
		t.Errorf("order = %s, %s", agents[0].ID(), agents[1].ID())
	}
	if agents[1].Role() != "momentum" {
		t.Errorf("momentum role = %q", agents[1].Role())
	}
}

func TestLoadRosterRejectsUnknownType(t *testing.T) {
	path := writeRoster(t, `
agents:
  - id: mystery
    type: oracle
    symbol: BTC/USDT
`)
	if _, err := LoadRoster(path, NewCoordinator(nil)); err == nil {
		t.Fatalf("unknown agent type accepted")
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "absent.yaml"), NewCoordinator(nil)); err == nil {
		t.Fatalf("missing file accepted")
	}
}
