package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Metadata RunMetadata   `json:"metadata"`
	Cycles   []CycleRecord `json:"cycles"`
}

// ExportJSON writes the run as a single JSON document to path.
func (s *Store) ExportJSON(runID, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.WriteJSON(runID, file)
}

func (s *Store) ExportJSONStdout(runID string) error {
	return s.WriteJSON(runID, os.Stdout)
}

func (s *Store) WriteJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	cycles, err := s.LoadCycles(runID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportData{Metadata: *meta, Cycles: cycles})
}
