package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/sim"
	"github.com/san-kum/wbqp/internal/wbc"
)

func testResult() *sim.Result {
	return &sim.Result{
		Steps: []sim.Step{
			{
				Cycle:          0,
				Time:           0,
				Status:         wbc.StatusSuccess,
				SolveTime:      1500 * time.Microsecond,
				COM:            r3.Vec{Z: 0.9},
				COMAcc:         r3.Vec{X: 0.1},
				ContactForce:   r3.Vec{Z: 392.4},
				WrenchResidual: 1e-9,
				Cost:           0.25,
				Torque:         []float64{1, 2, 3, 4, 5, 6},
			},
			{
				Cycle:  1,
				Time:   0.002,
				Status: wbc.StatusNoSolution,
				COM:    r3.Vec{Z: 0.9},
			},
		},
		Metrics:  map[string]float64{"success_rate": 0.5},
		Failures: 1,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Run.Seed = 7
	runID, err := st.Save(cfg, testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if meta.Scenario != "double_support" {
		t.Errorf("expected scenario 'double_support', got '%s'", meta.Scenario)
	}
	if meta.Seed != 7 {
		t.Errorf("expected seed 7, got %d", meta.Seed)
	}
	if meta.Failures != 1 || meta.Cycles != 2 {
		t.Errorf("expected 2 cycles with 1 failure, got %d/%d", meta.Cycles, meta.Failures)
	}
	if meta.Metrics["success_rate"] != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", meta.Metrics["success_rate"])
	}

	records, err := st.LoadCycles(runID)
	if err != nil {
		t.Fatalf("load cycles failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.Status != "success" || first.SolveMs != 1.5 || first.Force[2] != 392.4 {
		t.Errorf("unexpected first record %+v", first)
	}
	if len(first.Torque) != 6 || first.Torque[5] != 6 {
		t.Errorf("expected 6 torques, got %v", first.Torque)
	}
	if records[1].Status != "no_solution" || len(records[1].Torque) != 0 {
		t.Errorf("unexpected failed record %+v", records[1])
	}

	loaded, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if *loaded != *cfg {
		t.Error("expected stored config to round trip")
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for i := 0; i < 2; i++ {
		if _, err := st.Save(config.DefaultConfig(), testResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	runID, err := st.Save(config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	for _, name := range []string{"metadata.json", "config.yaml", "cycles.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(config.DefaultConfig(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var buf bytes.Buffer
	if err := st.WriteJSON(runID, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if data.Metadata.ID != runID || len(data.Cycles) != 2 {
		t.Errorf("unexpected export %+v", data.Metadata)
	}

	path := filepath.Join(t.TempDir(), "run.json")
	if err := st.ExportJSON(runID, path); err != nil {
		t.Fatalf("export to file failed: %v", err)
	}
}

func TestSeries(t *testing.T) {
	records := Records(testResult())
	tests := []struct {
		name  string
		first float64
	}{
		{"com_z", 0.9},
		{"acc_x", 0.1},
		{"force_z", 392.4},
		{"cost", 0.25},
		{"tau2", 3},
	}
	for _, tt := range tests {
		s, err := Series(records, tt.name)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(s) != 2 || s[0] != tt.first {
			t.Errorf("%s: expected first value %g, got %v", tt.name, tt.first, s)
		}
	}
	if _, err := Series(records, "energy"); err == nil {
		t.Error("expected error for unknown series")
	}
}

func TestParseRowRejectsShortRows(t *testing.T) {
	if _, err := parseRow([]string{"0", "0.1"}); err == nil {
		t.Error("expected error for short row")
	}
}
