// Package qp holds the quadratic program the controller formulates each
// cycle and the solver backends that solve it.
//
// A [Program] is a registry of decision-variable blocks plus linear
// equality, linear inequality and quadratic cost records. Records bind one or
// more variable blocks; their matrices act on the concatenation of those
// blocks. Records are addressed by integer handles that stay valid until
// [Program.Reset].
package qp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrBadHandle    = errors.New("qp: invalid handle")
	ErrShape        = errors.New("qp: record shape mismatch")
	ErrNoVariables  = errors.New("qp: program has no variables")
	ErrNotConvex    = errors.New("qp: reduced hessian is not positive definite")
	ErrIterations   = errors.New("qp: iteration limit reached")
	ErrInconsistent = errors.New("qp: equality constraints are inconsistent")
	ErrInfeasible   = errors.New("qp: inequality constraints are incompatible")
	ErrUnavailable  = errors.New("qp: solver unavailable")
)

// Variables is a contiguous block of decision variables.
type Variables struct {
	Name  string
	Start int
	Len   int
}

// Handle identifies a record within its kind.
type Handle int

type binding struct {
	Description string
	Vars        []Variables
}

func (b binding) width() int {
	n := 0
	for _, v := range b.Vars {
		n += v.Len
	}
	return n
}

// gather copies the bound entries of x into dst.
func (b binding) gather(dst *mat.VecDense, x []float64) {
	k := 0
	for _, v := range b.Vars {
		for i := 0; i < v.Len; i++ {
			dst.SetVec(k, x[v.Start+i])
			k++
		}
	}
}

// index maps a local column to its global variable index.
func (b binding) index(local int) int {
	for _, v := range b.Vars {
		if local < v.Len {
			return v.Start + local
		}
		local -= v.Len
	}
	return -1
}

// LinearEquality is A·x = B over the bound variables.
type LinearEquality struct {
	binding
	A *mat.Dense
	B *mat.VecDense
}

// LinearInequality is Lower ≤ A·x ≤ Upper. Infinite bounds are ignored.
type LinearInequality struct {
	binding
	A     *mat.Dense
	Lower *mat.VecDense
	Upper *mat.VecDense
}

// QuadraticCost is ½xᵀQx + Bᵀx + C over the bound variables.
type QuadraticCost struct {
	binding
	Q *mat.Dense
	B *mat.VecDense
	C float64
}

// Program is a convex quadratic program under construction.
type Program struct {
	vars   []Variables
	numVar int

	eqs   []*LinearEquality
	ineqs []*LinearInequality
	costs []*QuadraticCost
}

func NewProgram() *Program { return &Program{} }

// Reset drops all variables and records. Handles issued before are invalid.
func (p *Program) Reset() {
	p.vars = p.vars[:0]
	p.numVar = 0
	p.eqs = p.eqs[:0]
	p.ineqs = p.ineqs[:0]
	p.costs = p.costs[:0]
}

func (p *Program) AddVariables(name string, n int) Variables {
	v := Variables{Name: name, Start: p.numVar, Len: n}
	p.vars = append(p.vars, v)
	p.numVar += n
	return v
}

func (p *Program) NumVariables() int                 { return p.numVar }
func (p *Program) Variables() []Variables            { return p.vars }
func (p *Program) NumEqualities() int                { return len(p.eqs) }
func (p *Program) NumInequalities() int              { return len(p.ineqs) }
func (p *Program) NumCosts() int                     { return len(p.costs) }
func (p *Program) Equalities() []*LinearEquality     { return p.eqs }
func (p *Program) Inequalities() []*LinearInequality { return p.ineqs }
func (p *Program) Costs() []*QuadraticCost           { return p.costs }

// AddLinearEquality registers a zeroed equality with the given number of
// rows. The caller fills A and B through [Program.Equality].
func (p *Program) AddLinearEquality(desc string, rows int, vars ...Variables) Handle {
	b := binding{Description: desc, Vars: vars}
	p.eqs = append(p.eqs, &LinearEquality{
		binding: b,
		A:       newDense(rows, b.width()),
		B:       newVec(rows),
	})
	return Handle(len(p.eqs) - 1)
}

// AddLinearInequality registers a zeroed inequality with unbounded limits.
func (p *Program) AddLinearInequality(desc string, rows int, vars ...Variables) Handle {
	b := binding{Description: desc, Vars: vars}
	lo, hi := newVec(rows), newVec(rows)
	for i := 0; i < rows; i++ {
		lo.SetVec(i, math.Inf(-1))
		hi.SetVec(i, math.Inf(1))
	}
	p.ineqs = append(p.ineqs, &LinearInequality{
		binding: b,
		A:       newDense(rows, b.width()),
		Lower:   lo,
		Upper:   hi,
	})
	return Handle(len(p.ineqs) - 1)
}

// AddBoundingBox registers lower ≤ x ≤ upper on the bound variables.
func (p *Program) AddBoundingBox(desc string, lower, upper float64, vars ...Variables) Handle {
	h := p.AddLinearInequality(desc, binding{Vars: vars}.width(), vars...)
	in := p.ineqs[h]
	n := in.width()
	for i := 0; i < n; i++ {
		in.A.Set(i, i, 1)
		in.Lower.SetVec(i, lower)
		in.Upper.SetVec(i, upper)
	}
	return h
}

// AddQuadraticCost registers a zeroed cost.
func (p *Program) AddQuadraticCost(desc string, vars ...Variables) Handle {
	b := binding{Description: desc, Vars: vars}
	n := b.width()
	p.costs = append(p.costs, &QuadraticCost{
		binding: b,
		Q:       newDense(n, n),
		B:       newVec(n),
	})
	return Handle(len(p.costs) - 1)
}

func (p *Program) Equality(h Handle) (*LinearEquality, error) {
	if h < 0 || int(h) >= len(p.eqs) {
		return nil, errors.Wrapf(ErrBadHandle, "equality %d", h)
	}
	return p.eqs[h], nil
}

func (p *Program) Inequality(h Handle) (*LinearInequality, error) {
	if h < 0 || int(h) >= len(p.ineqs) {
		return nil, errors.Wrapf(ErrBadHandle, "inequality %d", h)
	}
	return p.ineqs[h], nil
}

func (p *Program) Cost(h Handle) (*QuadraticCost, error) {
	if h < 0 || int(h) >= len(p.costs) {
		return nil, errors.Wrapf(ErrBadHandle, "cost %d", h)
	}
	return p.costs[h], nil
}

func (e *LinearEquality) Rows() int { return e.B.Len() }

func (e *LinearEquality) empty() bool { return e.width() == 0 || e.Rows() == 0 }

func (in *LinearInequality) Rows() int { return in.Lower.Len() }

func (in *LinearInequality) empty() bool { return in.width() == 0 || in.Rows() == 0 }

// Residual returns A·x − B for the global solution x.
func (e *LinearEquality) Residual(x []float64) *mat.VecDense {
	if e.empty() {
		r := newVec(e.Rows())
		if e.Rows() > 0 {
			r.ScaleVec(-1, e.B)
		}
		return r
	}
	local := newVec(e.width())
	e.gather(local, x)
	r := newVec(e.Rows())
	r.MulVec(e.A, local)
	r.SubVec(r, e.B)
	return r
}

// Value returns A·x for the global solution x.
func (in *LinearInequality) Value(x []float64) *mat.VecDense {
	if in.empty() {
		return newVec(in.Lower.Len())
	}
	local := newVec(in.width())
	in.gather(local, x)
	r := newVec(in.Rows())
	r.MulVec(in.A, local)
	return r
}

// Value returns ½xᵀQx + Bᵀx + C for the global solution x.
func (c *QuadraticCost) Value(x []float64) float64 {
	if c.width() == 0 {
		return c.C
	}
	local := newVec(c.width())
	c.gather(local, x)
	return 0.5*mat.Inner(local, c.Q, local) + mat.Dot(c.B, local) + c.C
}

// Name returns the record description used in diagnostics.
func (b binding) Name() string { return b.Description }

func newDense(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, nil)
}

func newVec(n int) *mat.VecDense {
	if n == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(n, nil)
}
