package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultFleetIsValid(t *testing.T) {
	f := DefaultFleet()
	if err := f.Validate(); err != nil {
		t.Fatalf("default fleet invalid: %v", err)
	}
	if len(f.Nodes) != 5 {
		t.Fatalf("expected 5 reference devices, got %d", len(f.Nodes))
	}
	for _, n := range f.Nodes {
		if n.Acceleration != 100 || n.W1 != 1 || n.W2 != 1 {
			t.Errorf("node %s did not inherit fleet defaults: %+v", n.Name, n)
		}
	}
}

func TestNodeConfigValidate(t *testing.T) {
	ok := NodeConfig{Name: "n", PC: 2, DrainRate: 0.4, SoC: 1, W1: 1, W2: 1, Acceleration: 10}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := ok
	bad.PC = 0
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "pc must be >= 1") {
		t.Errorf("expected pc error, got %v", err)
	}

	bad = ok
	bad.SoC = 1.5
	bad.W2 = -1
	err := bad.Validate()
	if err == nil || !strings.Contains(err.Error(), "soc") || !strings.Contains(err.Error(), "weights") {
		t.Errorf("expected both soc and weight errors, got %v", err)
	}
}

func TestManagerConfigValidate(t *testing.T) {
	c := DefaultManager()
	if err := c.Validate(); err != nil {
		t.Fatalf("default manager invalid: %v", err)
	}
	c.Policy = "sometimes"
	c.ICMax = 1
	if err := c.Validate(); err == nil {
		t.Error("expected error for bad policy and IC range")
	}
}

func TestLoadFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	data := `
w2: 0.5
acceleration: 50
nodes:
  - name: phone
    pc: 4
    drain_rate: 0.3
  - name: board
    pc: 2
    drain_rate: 0.2
    soc: 0.6
    w1: 3
manager:
  alpha: 2
  policy: exclude
  timeout: 3s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadFleet(path)
	if err != nil {
		t.Fatalf("LoadFleet failed: %v", err)
	}
	phone, board := f.Nodes[0], f.Nodes[1]
	if phone.SoC != 1 || phone.W1 != 1 || phone.W2 != 0.5 || phone.Acceleration != 50 {
		t.Errorf("phone defaults not applied: %+v", phone)
	}
	if board.SoC != 0.6 || board.W1 != 3 {
		t.Errorf("board overrides lost: %+v", board)
	}
	if f.Manager.Alpha != 2 || f.Manager.Beta != 1 || f.Manager.Policy != "exclude" || f.Manager.Timeout != 3*time.Second {
		t.Errorf("unexpected manager config %+v", f.Manager)
	}
}

func TestLoadFleetRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	os.WriteFile(path, []byte("nodes:\n  - {name: a, pc: 1}\n  - {name: a, pc: 1}\n"), 0o644)
	if _, err := LoadFleet(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}
