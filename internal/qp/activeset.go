package qp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ActiveSetOptions tune the dense backend.
type ActiveSetOptions struct {
	// MaxIterations bounds the NNLS iterations. Zero selects 3·(rows+10).
	MaxIterations int
	// Tolerance is the relative tolerance for rank decisions. Its square
	// root marks the inequality rows treated as active after the LDP step.
	Tolerance float64
	// FeasibilityTolerance is the relative constraint violation a returned
	// solution may have. Zero selects the default.
	FeasibilityTolerance float64
	// Damping is added to the Hessian diagonal.
	Damping float64
}

func DefaultActiveSetOptions() ActiveSetOptions {
	return ActiveSetOptions{
		Tolerance:            1e-9,
		FeasibilityTolerance: 1e-8,
		Damping:              1e-10,
	}
}

// ActiveSet solves dense convex QPs. Equalities are eliminated through an
// SVD null-space basis, the remaining problem is reduced to least-distance
// programming with a Cholesky factor of the reduced Hessian, and the LDP is
// solved by nonnegative least squares. The LDP point is then polished: the
// rows it leaves active are pinned as equalities and the equality problem is
// solved again, so active bounds hold to rounding.
type ActiveSet struct {
	opts ActiveSetOptions
}

func NewActiveSet(opts ActiveSetOptions) *ActiveSet {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultActiveSetOptions().Tolerance
	}
	if opts.FeasibilityTolerance <= 0 {
		opts.FeasibilityTolerance = DefaultActiveSetOptions().FeasibilityTolerance
	}
	if opts.Damping < 0 {
		opts.Damping = 0
	}
	return &ActiveSet{opts: opts}
}

func (s *ActiveSet) Name() string              { return BackendActiveSet }
func (s *ActiveSet) Available() bool           { return true }
func (s *ActiveSet) Options() ActiveSetOptions { return s.opts }

// dense is the assembled program: min ½xᵀHx + gᵀx, Aeq·x = beq, G·x ≥ h.
type dense struct {
	n   int
	h   *mat.SymDense
	g   *mat.VecDense
	aeq *mat.Dense
	beq *mat.VecDense
	gin *mat.Dense
	hin *mat.VecDense
}

func (s *ActiveSet) Solve(p *Program) Solution {
	n := p.NumVariables()
	if n == 0 {
		return Solution{Status: NoSolution, Err: ErrNoVariables}
	}
	d := s.assemble(p)

	// Particular solution and null space of the equalities.
	xp := mat.NewVecDense(n, nil)
	var z *mat.Dense
	if d.aeq == nil {
		z = identity(n)
	} else {
		var err error
		xp, z, err = s.eliminate(d.aeq, d.beq)
		if err != nil {
			return Solution{Status: NoSolution, Err: err}
		}
	}

	x := mat.NewVecDense(n, nil)
	x.CopyVec(xp)
	iters := 0
	if z != nil {
		y, it, err := s.reduced(d, xp, z)
		iters = it
		if err != nil {
			return Solution{Status: NoSolution, Iterations: iters, Err: err}
		}
		x.MulVec(z, y)
		x.AddVec(x, xp)
	}
	if d.gin != nil {
		x = s.polish(d, x)
	}

	if err := s.feasible(d, x); err != nil {
		return Solution{Status: NoSolution, Iterations: iters, Err: err}
	}
	out := make([]float64, n)
	copy(out, x.RawVector().Data)
	return Solution{Status: SolutionFound, X: out, Iterations: iters}
}

func (s *ActiveSet) assemble(p *Program) dense {
	n := p.NumVariables()
	hm := mat.NewDense(n, n, nil)
	g := mat.NewVecDense(n, nil)
	for _, c := range p.Costs() {
		w := c.width()
		for i := 0; i < w; i++ {
			gi := c.index(i)
			g.SetVec(gi, g.AtVec(gi)+c.B.AtVec(i))
			for j := 0; j < w; j++ {
				gj := c.index(j)
				hm.Set(gi, gj, hm.At(gi, gj)+c.Q.At(i, j))
			}
		}
	}
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			h.SetSym(i, j, 0.5*(hm.At(i, j)+hm.At(j, i)))
		}
		h.SetSym(i, i, h.At(i, i)+s.opts.Damping)
	}

	d := dense{n: n, h: h, g: g}

	var erows [][]float64
	var evals []float64
	for _, e := range p.Equalities() {
		if e.width() == 0 {
			continue
		}
		for i := 0; i < e.Rows(); i++ {
			r := make([]float64, n)
			for j := 0; j < e.width(); j++ {
				r[e.index(j)] = e.A.At(i, j)
			}
			erows = append(erows, r)
			evals = append(evals, e.B.AtVec(i))
		}
	}

	// Two-sided rows split into one-sided G·x ≥ h rows. Rows with equal
	// bounds become equalities.
	var grows [][]float64
	var hvals []float64
	for _, in := range p.Inequalities() {
		if in.width() == 0 {
			continue
		}
		for i := 0; i < in.Rows(); i++ {
			lo, hi := in.Lower.AtVec(i), in.Upper.AtVec(i)
			if lo == hi {
				erows = append(erows, s.row(in, i, 1, n))
				evals = append(evals, lo)
				continue
			}
			if !math.IsInf(lo, -1) {
				grows = append(grows, s.row(in, i, 1, n))
				hvals = append(hvals, lo)
			}
			if !math.IsInf(hi, 1) {
				grows = append(grows, s.row(in, i, -1, n))
				hvals = append(hvals, -hi)
			}
		}
	}
	if len(erows) > 0 {
		d.aeq = stack(erows, n)
		d.beq = mat.NewVecDense(len(evals), evals)
	}
	if len(grows) > 0 {
		d.gin = stack(grows, n)
		d.hin = mat.NewVecDense(len(hvals), hvals)
	}
	return d
}

func (s *ActiveSet) row(in *LinearInequality, i int, sign float64, n int) []float64 {
	r := make([]float64, n)
	for j := 0; j < in.width(); j++ {
		r[in.index(j)] = sign * in.A.At(i, j)
	}
	return r
}

// eliminate returns x_p with Aeq·x_p = beq (least norm) and a basis Z of
// the null space of Aeq. Z is nil when the equalities fix x completely.
func (s *ActiveSet) eliminate(aeq *mat.Dense, beq *mat.VecDense) (*mat.VecDense, *mat.Dense, error) {
	me, n := aeq.Dims()
	var svd mat.SVD
	if !svd.Factorize(aeq, mat.SVDFull) {
		return nil, nil, errors.Wrap(ErrInconsistent, "svd of equality matrix did not converge")
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := s.opts.Tolerance * float64(max(me, n))
	if len(sv) > 0 {
		tol *= math.Max(sv[0], 1)
	}
	rank := 0
	for _, x := range sv {
		if x > tol {
			rank++
		}
	}

	xp := mat.NewVecDense(n, nil)
	for k := 0; k < rank; k++ {
		coef := mat.Dot(u.ColView(k), beq) / sv[k]
		xp.AddScaledVec(xp, coef, v.ColView(k))
	}

	var r mat.VecDense
	r.MulVec(aeq, xp)
	r.SubVec(&r, beq)
	scale := 1 + mat.Norm(beq, math.Inf(1))
	if mat.Norm(&r, math.Inf(1)) > math.Sqrt(s.opts.Tolerance)*scale {
		return nil, nil, errors.Wrapf(ErrInconsistent, "residual %g", mat.Norm(&r, math.Inf(1)))
	}

	if rank == n {
		return xp, nil, nil
	}
	z := mat.NewDense(n, n-rank, nil)
	z.Copy(v.Slice(0, n, rank, n))
	return xp, z, nil
}

// reduced solves the QP over y where x = x_p + Z·y.
func (s *ActiveSet) reduced(d dense, xp *mat.VecDense, z *mat.Dense) (*mat.VecDense, int, error) {
	_, k := z.Dims()

	// Hr = ZᵀHZ, gr = Zᵀ(H·x_p + g).
	var hz mat.Dense
	hz.Mul(d.h, z)
	var hrd mat.Dense
	hrd.Mul(z.T(), &hz)
	hr := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			hr.SetSym(i, j, 0.5*(hrd.At(i, j)+hrd.At(j, i)))
		}
	}
	var hx mat.VecDense
	hx.MulVec(d.h, xp)
	hx.AddVec(&hx, d.g)
	gr := mat.NewVecDense(k, nil)
	gr.MulVec(z.T(), &hx)

	var chol mat.Cholesky
	if !chol.Factorize(hr) {
		return nil, 0, ErrNotConvex
	}
	y0 := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(y0, gr); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, 0, errors.Wrap(err, "reduced newton step")
		}
	}
	y0.ScaleVec(-1, y0)

	if d.gin == nil {
		return y0, 0, nil
	}

	// Gy·y ≥ hy with Gy = G·Z, hy = h − G·x_p.
	var gy mat.Dense
	gy.Mul(d.gin, z)
	var gx mat.VecDense
	gx.MulVec(d.gin, xp)
	hy := mat.NewVecDense(d.hin.Len(), nil)
	hy.SubVec(d.hin, &gx)

	// With Hr = RᵀR and w = R(y − y0) the problem is min ½‖w‖² s.t.
	// Gy·R⁻¹·w ≥ hy − Gy·y0.
	var r mat.TriDense
	chol.UTo(&r)
	var rinv mat.TriDense
	if err := rinv.InverseTri(&r); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, 0, errors.Wrap(err, "cholesky factor inverse")
		}
	}
	var ghat mat.Dense
	ghat.Mul(&gy, &rinv)
	var gy0 mat.VecDense
	gy0.MulVec(&gy, y0)
	hhat := mat.NewVecDense(hy.Len(), nil)
	hhat.SubVec(hy, &gy0)

	w, iters, err := s.ldp(&ghat, hhat)
	if err != nil {
		return nil, iters, err
	}
	y := mat.NewVecDense(k, nil)
	y.MulVec(&rinv, w)
	y.AddVec(y, y0)
	return y, iters, nil
}

// ldp solves min ‖w‖ subject to G·w ≥ h through the dual NNLS problem
// min ‖E·u − f‖, u ≥ 0, with E = [Gᵀ; hᵀ] and f = e_{k+1}.
func (s *ActiveSet) ldp(g *mat.Dense, h *mat.VecDense) (*mat.VecDense, int, error) {
	mi, k := g.Dims()
	w := mat.NewVecDense(k, nil)

	// Already satisfied at the unconstrained optimum.
	if floats.Max(h.RawVector().Data) <= 0 {
		return w, 0, nil
	}

	e := mat.NewDense(k+1, mi, nil)
	e.Slice(0, k, 0, mi).(*mat.Dense).Copy(g.T())
	e.SetRow(k, h.RawVector().Data)
	f := mat.NewVecDense(k+1, nil)
	f.SetVec(k, 1)

	maxIter := s.opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 3 * (mi + 10)
	}
	_, resid, iters, err := nnls(e, f, maxIter)
	if err != nil {
		return nil, iters, err
	}

	// resid = f − E·u, so the last entry is 1 − hᵀu.
	fac := resid.AtVec(k)
	if mat.Norm(resid, 2) <= 0 || fac < eps {
		return nil, iters, ErrInfeasible
	}
	for i := 0; i < k; i++ {
		w.SetVec(i, -resid.AtVec(i)/fac)
	}
	return w, iters, nil
}

// polish re-solves the program with the inequality rows that are active or
// violated at x held as equalities. Rows the new point violates are pinned
// too, so the pinned set only grows. x is returned unchanged when nothing is
// active or the pinned system cannot be solved.
func (s *ActiveSet) polish(d dense, x *mat.VecDense) *mat.VecDense {
	mi := d.hin.Len()
	near := math.Sqrt(s.opts.Tolerance)
	pinned := make([]bool, mi)
	var gx mat.VecDense
	gx.MulVec(d.gin, x)
	active := false
	for i := 0; i < mi; i++ {
		h := d.hin.AtVec(i)
		if gx.AtVec(i)-h <= near*(1+math.Abs(h)) {
			pinned[i], active = true, true
		}
	}
	if !active {
		return x
	}

	for round := 0; round <= mi; round++ {
		xq, ok := s.solvePinned(d, pinned)
		if !ok {
			return x
		}
		gx.MulVec(d.gin, xq)
		grew := false
		for i := 0; i < mi; i++ {
			h := d.hin.AtVec(i)
			if !pinned[i] && gx.AtVec(i) < h-s.opts.FeasibilityTolerance*(1+math.Abs(h)) {
				pinned[i], grew = true, true
			}
		}
		if !grew {
			if s.feasible(d, xq) != nil {
				return x
			}
			return xq
		}
	}
	return x
}

// solvePinned minimizes the cost subject to the equalities and the pinned
// inequality rows held at their bound.
func (s *ActiveSet) solvePinned(d dense, pinned []bool) (*mat.VecDense, bool) {
	var rows [][]float64
	var vals []float64
	if d.aeq != nil {
		me, _ := d.aeq.Dims()
		for i := 0; i < me; i++ {
			rows = append(rows, mat.Row(nil, i, d.aeq))
			vals = append(vals, d.beq.AtVec(i))
		}
	}
	for i, p := range pinned {
		if p {
			rows = append(rows, mat.Row(nil, i, d.gin))
			vals = append(vals, d.hin.AtVec(i))
		}
	}
	eq := dense{n: d.n, h: d.h, g: d.g, aeq: stack(rows, d.n), beq: mat.NewVecDense(len(vals), vals)}

	xp, z, err := s.eliminate(eq.aeq, eq.beq)
	if err != nil {
		return nil, false
	}
	x := mat.NewVecDense(d.n, nil)
	x.CopyVec(xp)
	if z != nil {
		y, _, err := s.reduced(eq, xp, z)
		if err != nil {
			return nil, false
		}
		x.MulVec(z, y)
		x.AddVec(x, xp)
	}
	return x, true
}

// feasible checks the original constraints at x.
func (s *ActiveSet) feasible(d dense, x *mat.VecDense) error {
	tol := s.opts.FeasibilityTolerance
	if d.aeq != nil {
		var r mat.VecDense
		r.MulVec(d.aeq, x)
		r.SubVec(&r, d.beq)
		if v := mat.Norm(&r, math.Inf(1)); v > tol*(1+mat.Norm(d.beq, math.Inf(1))) {
			return errors.Wrapf(ErrInconsistent, "equality residual %g", v)
		}
	}
	if d.gin != nil {
		var gx mat.VecDense
		gx.MulVec(d.gin, x)
		for i := 0; i < gx.Len(); i++ {
			hi := d.hin.AtVec(i)
			if gx.AtVec(i) < hi-tol*(1+math.Abs(hi)) {
				return errors.Wrapf(ErrInfeasible, "inequality row %d violated by %g", i, hi-gx.AtVec(i))
			}
		}
	}
	for _, v := range x.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("qp: non-finite solution")
		}
	}
	return nil
}

func stack(rows [][]float64, n int) *mat.Dense {
	m := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
