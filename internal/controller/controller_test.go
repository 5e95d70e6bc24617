package controller

import (
	"math"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil solver")
	}
	cfg := DefaultConfig()
	cfg.BasisUpperBound = 0
	if _, err := New(qp.Unavailable{}, cfg, nil); err == nil {
		t.Error("expected error for zero basis bound")
	}
	c, err := New(qp.Unavailable{}, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.TopologyVersion() != 0 {
		t.Errorf("expected no topology before the first cycle, got %d", c.TopologyVersion())
	}
}

func TestTopologyReuse(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	var out wbc.QPOutput

	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}
	first := c.Handles()
	firstOut := out.Clone()

	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}
	if !reflect.DeepEqual(first, c.Handles()) {
		t.Error("expected identical handles for an unchanged topology")
	}
	if c.TopologyVersion() != 1 {
		t.Errorf("expected topology version 1, got %d", c.TopologyVersion())
	}
	for i := range out.Vd {
		if math.Abs(out.Vd[i]-firstOut.Vd[i]) > 1e-12 {
			t.Errorf("vd[%d]: expected %g, got %g", i, firstOut.Vd[i], out.Vd[i])
		}
	}

	single := stanceInput(b, model.BodyLeftFoot)
	c.Control(b, single, &out)
	if c.TopologyVersion() != 2 {
		t.Errorf("expected rebuild on contact change, got version %d", c.TopologyVersion())
	}
	if c.Rebuilds() != 2 {
		t.Errorf("expected 2 rebuilds, got %d", c.Rebuilds())
	}
	if len(c.Handles().Contacts) != 1 {
		t.Errorf("expected 1 contact handle, got %d", len(c.Handles().Contacts))
	}
}

func TestTopologyShapeChange(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	in.BodyAccelerations = []wbc.DesiredBodyAcceleration{
		{Name: "torso", Body: model.BodyTorso, Acceleration: make([]float64, 6), Weight: 1},
	}
	var out wbc.QPOutput
	c.Control(b, in, &out)

	in.BodyAccelerations[0].Acceleration = make([]float64, 3)
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}
	if c.TopologyVersion() != 2 {
		t.Errorf("expected rebuild on task dimension change, got version %d", c.TopologyVersion())
	}
	if len(out.BodyAccelerations[0].Acceleration) != 3 {
		t.Errorf("expected 3D body acceleration, got %d", len(out.BodyAccelerations[0].Acceleration))
	}
}

func TestDeclarationOrder(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	in.BodyAccelerations = []wbc.DesiredBodyAcceleration{
		{Name: "pelvis", Body: model.BodyTorso, Acceleration: make([]float64, 6), Weight: 1},
	}
	var out wbc.QPOutput
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}

	var eqs, ineqs, costs []string
	for _, e := range c.Program().Equalities() {
		eqs = append(eqs, e.Name())
	}
	for _, e := range c.Program().Inequalities() {
		ineqs = append(ineqs, e.Name())
	}
	for _, e := range out.Costs {
		costs = append(costs, e.Name)
	}

	tests := []struct {
		got, want []string
	}{
		{eqs, []string{"dynamics eq", "left_foot contact eq", "right_foot contact eq"}},
		{ineqs, []string{"contact force basis ineq", "torque limit ineq"}},
		{costs, []string{"com cost", "pelvis cost", "vd reg cost", "basis reg cost"}},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("expected %v, got %v", tt.want, tt.got)
		}
	}
}

func TestTorqueAffineMap(t *testing.T) {
	b := newRobot()
	// base translating, feet at rest
	b.SetVelocity([]float64{0, 0, 0, 0.1, 0.05, -0.2, -0.1, -0.05, 0.2, -0.1, -0.05, 0.2})
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	var out wbc.QPOutput
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}

	// Exact for the solution.
	x := c.LastSolution().X
	var tau mat.VecDense
	tau.MulVec(c.ws.torqueLinear, mat.NewVecDense(len(x), x))
	tau.AddVec(&tau, c.ws.torqueConstant)
	for i, v := range out.JointTorque {
		if v != tau.AtVec(i) {
			t.Errorf("tau[%d]: expected %v, got %v", i, tau.AtVec(i), v)
		}
	}

	// And equal to M_l·vd + h_l − (Jᵀ·B·beta)_l for an arbitrary x.
	n := len(x)
	arb := make([]float64, n)
	for i := range arb {
		arb[i] = math.Sin(float64(i) + 0.5)
	}
	xv := mat.NewVecDense(n, arb)
	var got mat.VecDense
	got.MulVec(c.ws.torqueLinear, xv)
	got.AddVec(&got, c.ws.torqueConstant)

	nv := b.NumVelocities()
	var want, jb mat.VecDense
	want.MulVec(b.MassMatrix(), xv.SliceVec(0, nv))
	want.AddVec(&want, b.BiasTerm())
	var forces mat.VecDense
	forces.MulVec(c.ws.basis, xv.SliceVec(nv, n))
	jb.MulVec(c.ws.jc.T(), &forces)
	want.SubVec(&want, &jb)
	for i := 0; i < got.Len(); i++ {
		if math.Abs(got.AtVec(i)-want.AtVec(model.NumFloatingBase+i)) > 1e-9 {
			t.Errorf("tau[%d]: expected %f, got %f", i, want.AtVec(model.NumFloatingBase+i), got.AtVec(i))
		}
	}
}

func TestInputRejection(t *testing.T) {
	b := newRobot()
	tests := []struct {
		name   string
		mutate func(in *wbc.QPInput)
	}{
		{"short vd target", func(in *wbc.QPInput) { in.DesiredVd = make([]float64, 11) }},
		{"negative weight", func(in *wbc.QPInput) { in.WCOM = -1 }},
		{"unknown body", func(in *wbc.QPInput) {
			in.BodyAccelerations = []wbc.DesiredBodyAcceleration{{Body: "tail", Acceleration: make([]float64, 6)}}
		}},
		{"nan target", func(in *wbc.QPInput) { in.DesiredVd[3] = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController()
			in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
			tt.mutate(in)
			out := wbc.QPOutput{Vd: []float64{42}}

			s, err := c.Control(b, in, &out)
			if s != wbc.StatusInputInvalid {
				t.Errorf("expected input_invalid, got %v", s)
			}
			if !errors.Is(err, wbc.ErrInputInvalid) {
				t.Errorf("expected ErrInputInvalid, got %v", err)
			}
			if c.TopologyVersion() != 0 || c.Program().NumVariables() != 0 {
				t.Error("expected no program to be built")
			}
			if len(out.Vd) != 1 || out.Vd[0] != 42 {
				t.Error("expected output untouched")
			}
			if c.Cycles() != 0 {
				t.Errorf("expected no cycle counted, got %d", c.Cycles())
			}
			var ce *wbc.CycleError
			if !errors.As(err, &ce) || ce.Cycle != 1 {
				t.Errorf("expected the rejection reported for cycle 1, got %v", err)
			}
		})
	}
}

func TestRejectedInputKeepsState(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	var out wbc.QPOutput
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}
	handles, last := c.Handles(), c.LastSolution()

	bad := stanceInput(b, model.BodyLeftFoot)
	bad.WCOM = -1
	if s, _ := c.Control(b, bad, &out); s != wbc.StatusInputInvalid {
		t.Fatalf("expected input_invalid, got %v", s)
	}
	if c.Cycles() != 1 || c.Rebuilds() != 1 {
		t.Errorf("expected 1 cycle and 1 rebuild, got %d and %d", c.Cycles(), c.Rebuilds())
	}
	if !reflect.DeepEqual(handles, c.Handles()) || !reflect.DeepEqual(last, c.LastSolution()) {
		t.Error("expected handles and last solution unchanged")
	}
}

func TestRecordNamesFollowInput(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	in.BodyAccelerations = []wbc.DesiredBodyAcceleration{
		{Name: "torso", Body: model.BodyTorso, Acceleration: make([]float64, 6), Weight: 1},
	}
	var out wbc.QPOutput
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}

	in.Contacts[0], in.Contacts[1] = in.Contacts[1], in.Contacts[0]
	in.BodyAccelerations[0].Name = "pelvis"
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success, got %v: %v", s, err)
	}
	if c.TopologyVersion() != 1 {
		t.Fatalf("expected the topology to be reused, got version %d", c.TopologyVersion())
	}

	var eqs []string
	for _, e := range c.Program().Equalities() {
		eqs = append(eqs, e.Name())
	}
	if want := []string{"dynamics eq", "right_foot contact eq", "left_foot contact eq"}; !reflect.DeepEqual(eqs, want) {
		t.Errorf("expected %v, got %v", want, eqs)
	}
	if out.Costs[1].Name != "pelvis cost" {
		t.Errorf("expected pelvis cost, got %s", out.Costs[1].Name)
	}
	if out.ResolvedContacts[0].Name != model.BodyRightFoot {
		t.Errorf("expected right foot first, got %s", out.ResolvedContacts[0].Name)
	}
}

// failingJacobian is a provider whose point Jacobian reports an unknown body.
type failingJacobian struct {
	*model.Biped
}

func (f failingJacobian) PointJacobian(body string, points []r3.Vec) (*mat.Dense, error) {
	return nil, errors.Wrap(model.ErrUnknownBody, body)
}

func TestProviderErrorKeepsCause(t *testing.T) {
	b := newRobot()
	c := newController()
	out := wbc.QPOutput{Vd: []float64{42}}
	s, err := c.Control(failingJacobian{b}, stanceInput(b, model.BodyLeftFoot), &out)
	if s != wbc.StatusInconsistent {
		t.Fatalf("expected inconsistent, got %v", s)
	}
	if !errors.Is(err, model.ErrUnknownBody) {
		t.Errorf("expected the provider error in the chain, got %v", err)
	}
	if !errors.Is(err, wbc.ErrInconsistent) {
		t.Errorf("expected ErrInconsistent, got %v", err)
	}
	if len(out.Vd) != 1 || out.Vd[0] != 42 {
		t.Error("expected output untouched")
	}
}

func TestNilArguments(t *testing.T) {
	c := newController()
	if s, _ := c.Control(newRobot(), nil, &wbc.QPOutput{}); s != wbc.StatusInputInvalid {
		t.Errorf("expected input_invalid for nil input, got %v", s)
	}
	if s, _ := c.Control(nil, wbc.NewQPInput(12), &wbc.QPOutput{}); s != wbc.StatusInputInvalid {
		t.Errorf("expected input_invalid for nil robot, got %v", s)
	}
}

func TestCycleErrorCarriesStatus(t *testing.T) {
	b := newRobot()
	c, _ := New(qp.Unavailable{}, DefaultConfig(), nil)
	_, err := c.Control(b, stanceInput(b, model.BodyLeftFoot), &wbc.QPOutput{})

	var ce *wbc.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CycleError, got %T", err)
	}
	if ce.Cycle != 1 || ce.Status != wbc.StatusSolverUnavailable {
		t.Errorf("expected cycle 1 solver_unavailable, got %d %v", ce.Cycle, ce.Status)
	}
	if wbc.StatusOf(err) != wbc.StatusSolverUnavailable {
		t.Errorf("expected status from error, got %v", wbc.StatusOf(err))
	}
}

func TestFlightPhase(t *testing.T) {
	b := newRobot()
	c := newController()
	in := stanceInput(b)
	var out wbc.QPOutput
	if s, err := c.Control(b, in, &out); s != wbc.StatusSuccess {
		t.Fatalf("expected success without contacts, got %v: %v", s, err)
	}
	if math.Abs(out.COMAcc.Z+b.Params().Gravity) > 1e-6 {
		t.Errorf("expected free fall, got com acc %v", out.COMAcc)
	}
}

func BenchmarkControlDoubleSupport(bm *testing.B) {
	b := newRobot()
	c := newController()
	in := stanceInput(b, model.BodyLeftFoot, model.BodyRightFoot)
	var out wbc.QPOutput
	bm.ResetTimer()
	for i := 0; i < bm.N; i++ {
		c.Control(b, in, &out)
	}
}
