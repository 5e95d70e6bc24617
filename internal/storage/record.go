package storage

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/san-kum/wbqp/internal/sim"
)

// CycleRecord is the persisted form of a sim.Step.
type CycleRecord struct {
	Cycle    int        `json:"cycle"`
	Time     float64    `json:"time"`
	Status   string     `json:"status"`
	SolveMs  float64    `json:"solve_ms"`
	COM      [3]float64 `json:"com"`
	COMAcc   [3]float64 `json:"com_acc"`
	Force    [3]float64 `json:"contact_force"`
	Residual float64    `json:"wrench_residual"`
	Cost     float64    `json:"cost"`
	Torque   []float64  `json:"torque"`
}

func Records(result *sim.Result) []CycleRecord {
	records := make([]CycleRecord, len(result.Steps))
	for i, s := range result.Steps {
		records[i] = CycleRecord{
			Cycle:    s.Cycle,
			Time:     s.Time,
			Status:   s.Status.String(),
			SolveMs:  float64(s.SolveTime.Microseconds()) / 1000,
			COM:      [3]float64{s.COM.X, s.COM.Y, s.COM.Z},
			COMAcc:   [3]float64{s.COMAcc.X, s.COMAcc.Y, s.COMAcc.Z},
			Force:    [3]float64{s.ContactForce.X, s.ContactForce.Y, s.ContactForce.Z},
			Residual: s.WrenchResidual,
			Cost:     s.Cost,
			Torque:   append([]float64(nil), s.Torque...),
		}
	}
	return records
}

var fixedColumns = []string{
	"cycle", "time", "status", "solve_ms",
	"com_x", "com_y", "com_z",
	"acc_x", "acc_y", "acc_z",
	"force_x", "force_y", "force_z",
	"wrench_residual", "cost",
}

func header(numTorque int) []string {
	h := append([]string(nil), fixedColumns...)
	for i := 0; i < numTorque; i++ {
		h = append(h, fmt.Sprintf("tau%d", i))
	}
	return h
}

func (r CycleRecord) row(numTorque int) []string {
	row := []string{strconv.Itoa(r.Cycle), formatFloat(r.Time), r.Status, formatFloat(r.SolveMs)}
	for _, v := range [][3]float64{r.COM, r.COMAcc, r.Force} {
		row = append(row, formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	row = append(row, formatFloat(r.Residual), formatFloat(r.Cost))
	for i := 0; i < numTorque; i++ {
		if i < len(r.Torque) {
			row = append(row, formatFloat(r.Torque[i]))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func parseRow(row []string) (CycleRecord, error) {
	if len(row) < len(fixedColumns) {
		return CycleRecord{}, errors.Errorf("expected at least %d columns, got %d", len(fixedColumns), len(row))
	}
	var rec CycleRecord
	var err error
	if rec.Cycle, err = strconv.Atoi(row[0]); err != nil {
		return rec, err
	}
	rec.Status = row[2]

	vals := make([]float64, 0, len(row))
	for i, field := range row {
		if i == 0 || i == 2 {
			continue
		}
		if field == "" {
			break
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return rec, errors.Wrapf(err, "column %s", columnName(i))
		}
		vals = append(vals, v)
	}
	if len(vals) < len(fixedColumns)-2 {
		return rec, errors.New("missing values")
	}
	rec.Time, rec.SolveMs = vals[0], vals[1]
	copy(rec.COM[:], vals[2:5])
	copy(rec.COMAcc[:], vals[5:8])
	copy(rec.Force[:], vals[8:11])
	rec.Residual, rec.Cost = vals[11], vals[12]
	if len(vals) > 13 {
		rec.Torque = vals[13:]
	}
	return rec, nil
}

func columnName(i int) string {
	if i < len(fixedColumns) {
		return fixedColumns[i]
	}
	return fmt.Sprintf("tau%d", i-len(fixedColumns))
}

// Series extracts one named column, for plotting.
func Series(records []CycleRecord, name string) ([]float64, error) {
	var get func(r CycleRecord) float64
	switch name {
	case "com_x", "com_y", "com_z":
		k := int(name[4] - 'x')
		get = func(r CycleRecord) float64 { return r.COM[k] }
	case "acc_x", "acc_y", "acc_z":
		k := int(name[4] - 'x')
		get = func(r CycleRecord) float64 { return r.COMAcc[k] }
	case "force_x", "force_y", "force_z":
		k := int(name[6] - 'x')
		get = func(r CycleRecord) float64 { return r.Force[k] }
	case "solve_ms":
		get = func(r CycleRecord) float64 { return r.SolveMs }
	case "wrench_residual":
		get = func(r CycleRecord) float64 { return r.Residual }
	case "cost":
		get = func(r CycleRecord) float64 { return r.Cost }
	default:
		var k int
		if _, err := fmt.Sscanf(name, "tau%d", &k); err != nil || k < 0 {
			return nil, errors.Errorf("unknown series: %s", name)
		}
		get = func(r CycleRecord) float64 {
			if k < len(r.Torque) {
				return r.Torque[k]
			}
			return 0
		}
	}

	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = get(r)
	}
	return out, nil
}
