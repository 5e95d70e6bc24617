package wbc

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultNormal is the contact normal of flat ground.
var DefaultNormal = r3.Vec{Z: 1}

// PoseSource resolves the world pose of a body frame.
type PoseSource interface {
	BodyPose(body string) (r3.Vec, r3.Rotation, error)
}

// ContactInformation describes one body in contact with the environment.
//
// Each contact point carries NumBasisPerPoint friction cone edges; the
// non-negative coefficients of those edges are decision variables of the QP.
type ContactInformation struct {
	Name             string
	Body             string
	ContactPoints    []r3.Vec // body frame
	NumBasisPerPoint int
	Mu               float64
	Normal           r3.Vec // world frame
	ReferenceOffset  r3.Vec // body frame
}

// NewContactInformation returns a contact with flat-ground normal.
func NewContactInformation(name, body string, points []r3.Vec, basisPerPoint int, mu float64) ContactInformation {
	pts := make([]r3.Vec, len(points))
	copy(pts, points)
	return ContactInformation{
		Name:             name,
		Body:             body,
		ContactPoints:    pts,
		NumBasisPerPoint: basisPerPoint,
		Mu:               mu,
		Normal:           DefaultNormal,
	}
}

func (c ContactInformation) NumContactPoints() int { return len(c.ContactPoints) }
func (c ContactInformation) ForceDim() int         { return 3 * len(c.ContactPoints) }
func (c ContactInformation) NumBasis() int         { return len(c.ContactPoints) * c.NumBasisPerPoint }

func (c ContactInformation) Validate() error {
	switch {
	case c.Body == "":
		return errors.Wrap(ErrInputInvalid, "contact body is empty")
	case len(c.ContactPoints) == 0:
		return errors.Wrapf(ErrInputInvalid, "contact %s has no points", c.Name)
	case c.NumBasisPerPoint < 1:
		return errors.Wrapf(ErrInputInvalid, "contact %s: basis per point must be >= 1, got %d", c.Name, c.NumBasisPerPoint)
	case c.Mu < 0 || math.IsNaN(c.Mu) || math.IsInf(c.Mu, 0):
		return errors.Wrapf(ErrInputInvalid, "contact %s: friction coefficient %f", c.Name, c.Mu)
	case r3.Norm(c.Normal) == 0 || !finiteVec(c.Normal):
		return errors.Wrapf(ErrInputInvalid, "contact %s: degenerate normal", c.Name)
	}
	for i, p := range c.ContactPoints {
		if !finiteVec(p) {
			return errors.Wrapf(ErrInputInvalid, "contact %s: point %d is not finite", c.Name, i)
		}
	}
	return nil
}

// BasisMatrix maps basis coefficients to stacked 3D point forces.
// Column k of point i is normalize(n + mu*(cos(a)*t1 + sin(a)*t2)) with a = 2*pi*k/NumBasisPerPoint.
func (c ContactInformation) BasisMatrix() *mat.Dense {
	b := mat.NewDense(c.ForceDim(), c.NumBasis(), nil)
	c.BasisMatrixTo(b)
	return b
}

// BasisMatrixTo writes the basis matrix into dst, which must be ForceDim x NumBasis.
func (c ContactInformation) BasisMatrixTo(dst *mat.Dense) {
	n := r3.Unit(c.Normal)
	t1, t2 := tangents(n)
	nb := c.NumBasisPerPoint
	for i := range c.ContactPoints {
		for k := 0; k < nb; k++ {
			a := 2 * math.Pi * float64(k) / float64(nb)
			edge := r3.Add(n, r3.Scale(c.Mu, r3.Add(r3.Scale(math.Cos(a), t1), r3.Scale(math.Sin(a), t2))))
			edge = r3.Unit(edge)
			col := i*nb + k
			dst.Set(3*i, col, edge.X)
			dst.Set(3*i+1, col, edge.Y)
			dst.Set(3*i+2, col, edge.Z)
		}
	}
}

// ContactPointsAndReferencePoint returns the contact points and the wrench
// reference point in the world frame.
func (c ContactInformation) ContactPointsAndReferencePoint(src PoseSource) ([]r3.Vec, r3.Vec, error) {
	pos, rot, err := src.BodyPose(c.Body)
	if err != nil {
		return nil, r3.Vec{}, err
	}
	pts := make([]r3.Vec, len(c.ContactPoints))
	for i, p := range c.ContactPoints {
		pts[i] = r3.Add(pos, rot.Rotate(p))
	}
	return pts, r3.Add(pos, rot.Rotate(c.ReferenceOffset)), nil
}

// WrenchMatrix maps stacked point forces to the equivalent [torque; force]
// wrench about ref.
func WrenchMatrix(points []r3.Vec, ref r3.Vec) *mat.Dense {
	w := mat.NewDense(6, 3*len(points), nil)
	for i, p := range points {
		d := r3.Sub(p, ref)
		skew := Skew(d)
		for r := 0; r < 3; r++ {
			for col := 0; col < 3; col++ {
				w.Set(r, 3*i+col, skew[r][col])
			}
			w.Set(3+r, 3*i+r, 1)
		}
	}
	return w
}

// Skew returns the cross-product matrix of v, so that Skew(v)*u = v x u.
func Skew(v r3.Vec) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

func tangents(n r3.Vec) (r3.Vec, r3.Vec) {
	ref := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	t1 := r3.Unit(r3.Cross(n, ref))
	return t1, r3.Cross(n, t1)
}

func finiteVec(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func (c ContactInformation) String() string {
	return fmt.Sprintf("%s(%s, %d pts x %d basis, mu=%.2f)", c.Name, c.Body, len(c.ContactPoints), c.NumBasisPerPoint, c.Mu)
}
