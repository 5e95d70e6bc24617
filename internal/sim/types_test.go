package sim

import (
	"testing"

	"github.com/san-kum/wbqp/internal/wbc"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dt <= 0 {
		t.Error("DefaultConfig has invalid Dt")
	}
	if cfg.Cycles <= 0 {
		t.Error("DefaultConfig has invalid Cycles")
	}
	if cfg.Duration() != cfg.Dt*float64(cfg.Cycles) {
		t.Errorf("unexpected duration %f", cfg.Duration())
	}
}

func TestStepOK(t *testing.T) {
	if !(Step{Status: wbc.StatusSuccess}).OK() {
		t.Error("expected success step to be OK")
	}
	if (Step{Status: wbc.StatusNoSolution}).OK() {
		t.Error("expected failed step not to be OK")
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "test error"}
	expected := "step 150 (t=1.5000): test error"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}
