package viz

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/wbc"
)

// View selects the plane the robot is drawn in.
type View int

const (
	SideView  View = iota // x right, z up
	FrontView             // y right, z up
)

func (v View) String() string {
	if v == FrontView {
		return "front"
	}
	return "side"
}

// axes returns the horizontal coordinate and the foot half extent shown in the view.
func (v View) axes(p model.BipedParams) (func(r3.Vec) float64, float64) {
	if v == FrontView {
		return func(x r3.Vec) float64 { return x.Y }, p.FootHalfWidth
	}
	return func(x r3.Vec) float64 { return x.X }, p.FootHalfLen
}

const (
	torsoHalfWidth  = 0.12
	torsoHalfHeight = 0.2
	// forceScale is meters of arrow per newton of body weight.
	forceScale = 0.4
)

// Scene is a snapshot of what the monitor draws.
type Scene struct {
	COM    r3.Vec
	Target r3.Vec
	Hips   [2]r3.Vec
	Feet   [2]r3.Vec
	Forces []ForceArrow
	Weight float64
	Params model.BipedParams
}

// ForceArrow is a resolved contact wrench drawn at its reference point.
type ForceArrow struct {
	Origin r3.Vec
	Force  r3.Vec
}

// Capture reads the robot pose and, when out is non-nil, the resolved
// contact forces of the last successful cycle.
func Capture(b *model.Biped, out *wbc.QPOutput, target r3.Vec) (Scene, error) {
	p := b.Params()
	s := Scene{
		COM:    b.COM(),
		Target: target,
		Weight: b.Mass() * p.Gravity,
		Params: p,
	}
	_, rot, err := b.BodyPose(model.BodyTorso)
	if err != nil {
		return s, errors.Wrap(err, "torso pose")
	}
	for i, body := range []string{model.BodyLeftFoot, model.BodyRightFoot} {
		side := 1.0
		if i == 1 {
			side = -1
		}
		s.Hips[i] = r3.Add(s.COM, rot.Rotate(r3.Vec{Y: side * p.HipOffset}))
		s.Feet[i], _, err = b.BodyPose(body)
		if err != nil {
			return s, errors.Wrapf(err, "%s pose", body)
		}
	}
	if out != nil {
		for _, rc := range out.ResolvedContacts {
			s.Forces = append(s.Forces, ForceArrow{Origin: rc.ReferencePoint, Force: rc.Force()})
		}
	}
	return s, nil
}

// Ground is the height of the lowest foot.
func (s Scene) Ground() float64 { return math.Min(s.Feet[0].Z, s.Feet[1].Z) }

// Render draws the scene into c. The view is centered on the target
// horizontally and on the middle of the legs vertically.
func Render(c *Canvas, s Scene, view View) Viewport {
	c.Clear()
	horiz, footHalf := view.axes(s.Params)
	ground := s.Ground()

	height := s.Params.StandHeight + 2*torsoHalfHeight
	vp := NewViewport(c, float64(c.Height*4)/(1.4*height))
	vp.CenterU = horiz(s.Target)
	vp.CenterV = ground + height/2

	_, gy := vp.Project(vp.CenterU, ground)
	c.DrawLine(0, gy+1, vp.W-1, gy+1)

	x0, y0 := vp.Project(horiz(s.COM)-torsoHalfWidth, s.COM.Z-torsoHalfHeight)
	x1, y1 := vp.Project(horiz(s.COM)+torsoHalfWidth, s.COM.Z+torsoHalfHeight)
	c.DrawRect(x0, y0, x1, y1)

	for i := range s.Feet {
		hx, hy := vp.Project(horiz(s.Hips[i]), s.Hips[i].Z)
		fx, fy := vp.Project(horiz(s.Feet[i]), s.Feet[i].Z)
		c.DrawLine(hx, hy, fx, fy)
		lx, _ := vp.Project(horiz(s.Feet[i])-footHalf, s.Feet[i].Z)
		rx, _ := vp.Project(horiz(s.Feet[i])+footHalf, s.Feet[i].Z)
		c.DrawLine(lx, fy, rx, fy)
	}

	for _, f := range s.Forces {
		drawArrow(c, vp, horiz, f, s.Weight)
	}

	tx, ty := vp.Project(horiz(s.Target), s.Target.Z)
	c.DrawLine(tx-2, ty, tx+2, ty)
	c.DrawLine(tx, ty-2, tx, ty+2)
	return vp
}

func drawArrow(c *Canvas, vp Viewport, horiz func(r3.Vec) float64, f ForceArrow, weight float64) {
	if weight <= 0 {
		return
	}
	tip := r3.Add(f.Origin, r3.Scale(forceScale/weight, f.Force))
	ox, oy := vp.Project(horiz(f.Origin), f.Origin.Z)
	tx, ty := vp.Project(horiz(tip), tip.Z)
	c.DrawLine(ox, oy, tx, ty)

	dx, dy := float64(tx-ox), float64(ty-oy)
	n := math.Hypot(dx, dy)
	if n < 3 {
		return
	}
	dx, dy = dx/n, dy/n
	for _, sgn := range []float64{1, -1} {
		hx := float64(tx) - 3*dx + sgn*2*dy
		hy := float64(ty) - 3*dy - sgn*2*dx
		c.DrawLine(tx, ty, int(math.Round(hx)), int(math.Round(hy)))
	}
}
