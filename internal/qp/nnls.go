package qp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const eps = 2.220446049250313e-16

// nnls solves min ‖E·u − f‖ subject to u ≥ 0 with the Lawson–Hanson active
// set method. It returns u, the residual f − E·u and the number of inner
// iterations.
func nnls(e *mat.Dense, f *mat.VecDense, maxIter int) (*mat.VecDense, *mat.VecDense, int, error) {
	m, n := e.Dims()
	u := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(m, nil)
	w := mat.NewVecDense(n, nil)
	passive := make([]bool, n)
	excluded := make([]bool, n)
	tol := 10 * eps * mat.Norm(e, 1) * float64(max(m, n))

	gradient := func() {
		resid.MulVec(e, u)
		resid.SubVec(f, resid)
		w.MulVec(e.T(), resid)
	}

	gradient()
	iter := 0
	for {
		t, best := -1, tol
		npassive := 0
		for j := 0; j < n; j++ {
			if passive[j] {
				npassive++
				continue
			}
			if !excluded[j] && w.AtVec(j) > best {
				t, best = j, w.AtVec(j)
			}
		}
		if t < 0 || npassive >= m {
			break
		}
		passive[t] = true

		first := true
		for {
			iter++
			if iter > maxIter {
				gradient()
				return u, resid, iter, errors.Wrapf(ErrIterations, "nnls after %d iterations", maxIter)
			}
			s, err := passiveSolve(e, f, passive)
			if err != nil {
				return u, resid, iter, err
			}
			// A column whose unconstrained coefficient is not positive on
			// entry cannot improve the fit; skip it until u changes.
			if first && s.AtVec(t) <= 0 {
				passive[t] = false
				excluded[t] = true
				break
			}
			first = false

			alpha := math.Inf(1)
			for j := 0; j < n; j++ {
				if passive[j] && s.AtVec(j) <= 0 {
					if a := u.AtVec(j) / (u.AtVec(j) - s.AtVec(j)); a < alpha {
						alpha = a
					}
				}
			}
			if math.IsInf(alpha, 1) {
				u.CopyVec(s)
				for j := range excluded {
					excluded[j] = false
				}
				break
			}
			for j := 0; j < n; j++ {
				if !passive[j] {
					continue
				}
				uj := u.AtVec(j) + alpha*(s.AtVec(j)-u.AtVec(j))
				if uj <= tol {
					uj = 0
					passive[j] = false
				}
				u.SetVec(j, uj)
			}
		}
		gradient()
	}
	gradient()
	return u, resid, iter, nil
}

// passiveSolve returns the unconstrained least-squares solution over the
// passive columns, zero elsewhere.
func passiveSolve(e *mat.Dense, f *mat.VecDense, passive []bool) (*mat.VecDense, error) {
	m, n := e.Dims()
	cols := make([]int, 0, n)
	for j, p := range passive {
		if p {
			cols = append(cols, j)
		}
	}
	s := mat.NewVecDense(n, nil)
	if len(cols) == 0 {
		return s, nil
	}
	ep := mat.NewDense(m, len(cols), nil)
	for k, j := range cols {
		for i := 0; i < m; i++ {
			ep.Set(i, k, e.At(i, j))
		}
	}
	var qr mat.QR
	qr.Factorize(ep)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, f); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, errors.Wrap(err, "nnls passive solve")
		}
	}
	for k, j := range cols {
		v := sol.AtVec(k)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrap(ErrInfeasible, "nnls passive set is singular")
		}
		s.SetVec(j, v)
	}
	return s, nil
}
