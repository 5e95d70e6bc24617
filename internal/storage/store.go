// Package storage persists closed-loop runs as a directory per run holding
// metadata.json, config.yaml and cycles.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/wbqp/internal/config"
	"github.com/san-kum/wbqp/internal/sim"
)

const (
	metadataFile = "metadata.json"
	configFile   = "config.yaml"
	cyclesFile   = "cycles.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Dt         float64            `json:"dt"`
	Cycles     int                `json:"cycles"`
	Integrator string             `json:"integrator"`
	Regulator  string             `json:"regulator"`
	Solver     string             `json:"solver"`
	Failures   int                `json:"failures"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Duration is the simulated span of the run.
func (m RunMetadata) Duration() float64 { return m.Dt * float64(m.Cycles) }

func (s *Store) Save(cfg *config.Config, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Run.Scenario, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Scenario:   cfg.Run.Scenario,
		Timestamp:  now,
		Seed:       cfg.Run.Seed,
		Dt:         cfg.Run.Dt,
		Cycles:     len(result.Steps),
		Integrator: cfg.Run.Integrator,
		Regulator:  cfg.Run.Regulator,
		Solver:     cfg.Controller.Solver,
		Failures:   result.Failures,
		Metrics:    result.Metrics,
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", errors.Wrap(err, "write metadata")
	}
	if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
		return "", errors.Wrap(err, "write config")
	}
	if err := writeCycles(filepath.Join(runDir, cyclesFile), Records(result)); err != nil {
		return "", errors.Wrap(err, "write cycles")
	}
	return runID, nil
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCycles(path string, records []CycleRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	numTorque := 0
	for _, r := range records {
		if len(r.Torque) > numTorque {
			numTorque = len(r.Torque)
		}
	}
	if err := w.Write(header(numTorque)); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r.row(numTorque)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "parse metadata of %s", runID)
	}
	return &meta, nil
}

// LoadConfig returns the configuration the run was made with.
func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadCycles(runID string) ([]CycleRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, cyclesFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return []CycleRecord{}, nil
	}

	records := make([]CycleRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", cyclesFile, i+2)
		}
		records = append(records, rec)
	}
	return records, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
