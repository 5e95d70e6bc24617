package controller

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

const eps = 1e-6

// expectConsistent checks every declared record and the wrench balance on
// the last solution.
func expectConsistent(c *Controller, b *model.Biped, out *wbc.QPOutput) {
	x := c.LastSolution().X
	for _, eq := range c.Program().Equalities() {
		r := eq.Residual(x)
		if eq.Rows() > 0 {
			Expect(mat.Norm(r, math.Inf(1))).To(BeNumerically("<", eps*(1+mat.Norm(eq.B, math.Inf(1)))), eq.Name())
		}
	}
	for _, in := range c.Program().Inequalities() {
		v := in.Value(x)
		for i := 0; i < in.Rows(); i++ {
			Expect(v.AtVec(i)).To(BeNumerically(">=", in.Lower.AtVec(i)-eps*(1+math.Abs(in.Lower.AtVec(i)))), in.Name())
			Expect(v.AtVec(i)).To(BeNumerically("<=", in.Upper.AtVec(i)+eps*(1+math.Abs(in.Upper.AtVec(i)))), in.Name())
		}
	}

	net := r3.Scale(b.Mass(), b.Gravity())
	var moment r3.Vec
	for _, rc := range out.ResolvedContacts {
		net = r3.Add(net, rc.Force())
		moment = r3.Add(moment, rc.Torque())
		moment = r3.Add(moment, r3.Cross(r3.Sub(rc.ReferencePoint, b.COM()), rc.Force()))
	}
	var rate mat.VecDense
	rate.MulVec(b.CentroidalMomentumMatrix(), mat.NewVecDense(len(out.Vd), out.Vd))
	rate.AddVec(&rate, b.CentroidalMomentumMatrixDotTimesV())
	tol := 1e-4 * b.Mass() * r3.Norm(b.Gravity())
	Expect(moment.X).To(BeNumerically("~", rate.AtVec(0), tol))
	Expect(moment.Y).To(BeNumerically("~", rate.AtVec(1), tol))
	Expect(moment.Z).To(BeNumerically("~", rate.AtVec(2), tol))
	Expect(net.X).To(BeNumerically("~", rate.AtVec(3), tol))
	Expect(net.Y).To(BeNumerically("~", rate.AtVec(4), tol))
	Expect(net.Z).To(BeNumerically("~", rate.AtVec(5), tol))
}

func expectWithinEffort(b *model.Biped, out *wbc.QPOutput) {
	for i, a := range b.Actuators() {
		Expect(out.JointTorque[i]).To(BeNumerically(">=", a.EffortMin-eps*(1+math.Abs(a.EffortMin))), a.Name)
		Expect(out.JointTorque[i]).To(BeNumerically("<=", a.EffortMax+eps*(1+math.Abs(a.EffortMax))), a.Name)
	}
}

var _ = Describe("Controller", func() {
	var (
		robot *model.Biped
		ctrl  *Controller
		out   wbc.QPOutput
	)

	BeforeEach(func() {
		robot = newRobot()
		ctrl = newController()
		out = wbc.QPOutput{}
	})

	Context("static double support with zero desired accelerations", func() {
		var status wbc.Status

		BeforeEach(func() {
			var err error
			status, err = ctrl.Control(robot, stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot), &out)
			Expect(err).NotTo(HaveOccurred())
		})

		It("succeeds with vd close to zero", func() {
			Expect(status).To(Equal(wbc.StatusSuccess))
			Expect(out.Vd).To(HaveLen(robot.NumVelocities()))
			for _, v := range out.Vd {
				Expect(v).To(BeNumerically("~", 0, 1e-3))
			}
		})

		It("carries the robot weight on the contacts", func() {
			weight := robot.Mass() * robot.Params().Gravity
			f := sumForces(&out)
			Expect(f.Z).To(BeNumerically("~", weight, 1e-2*weight))
			Expect(f.X).To(BeNumerically("~", 0, 1e-2))
			Expect(f.Y).To(BeNumerically("~", 0, 1e-2))
		})

		It("shares the load evenly between symmetric feet", func() {
			Expect(out.ResolvedContacts).To(HaveLen(2))
			l, r := out.ResolvedContacts[0].Force(), out.ResolvedContacts[1].Force()
			Expect(l.Z).To(BeNumerically("~", r.Z, 1e-3*math.Abs(l.Z)))
		})

		It("keeps actuators inside their limits", func() {
			expectWithinEffort(robot, &out)
		})

		It("satisfies every constraint and the wrench balance", func() {
			expectConsistent(ctrl, robot, &out)
		})

		It("reports the cost breakdown in declaration order", func() {
			Expect(out.Costs).To(HaveLen(4))
			Expect(out.Costs[0].Name).To(Equal("com cost"))
			Expect(out.TotalCost()).To(BeNumerically(">=", 0))
		})
	})

	Context("single contact with a commanded horizontal CoM acceleration", func() {
		const ax = 0.5

		It("produces the horizontal force that accelerates the mass", func() {
			in := stanceInput(robot, model.BodyLeftFoot)
			in.DesiredCOMAcc = r3.Vec{X: ax}
			status, err := ctrl.Control(robot, in, &out)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(wbc.StatusSuccess))

			Expect(out.ResolvedContacts).To(HaveLen(1))
			f := out.ResolvedContacts[0].Force()
			Expect(f.X).To(BeNumerically("~", robot.Mass()*out.COMAcc.X, 1e-4*robot.Mass()))
			Expect(out.COMAcc.X).To(BeNumerically("~", ax, 0.05*ax))
			expectWithinEffort(robot, &out)
			expectConsistent(ctrl, robot, &out)
		})
	})

	Context("single stance with the CoM over the foot", func() {
		BeforeEach(func() {
			Expect(robot.PlaceStance(model.BodyLeftFoot, 0.1)).To(Succeed())
		})

		It("holds the robot with vertical forces", func() {
			status, err := ctrl.Control(robot, stanceInput(robot, model.BodyLeftFoot), &out)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(wbc.StatusSuccess))
			f := sumForces(&out)
			weight := robot.Mass() * robot.Params().Gravity
			Expect(f.Z).To(BeNumerically("~", weight, 1e-2*weight))
			Expect(out.COMAcc.Y).To(BeNumerically("~", 0, 1e-3))
			expectConsistent(ctrl, robot, &out)
		})

		// The request needs a centre of pressure outside the sole, so the
		// optimum loads one edge and leaves every basis coefficient of the
		// other two corners at its bound.
		It("succeeds with the centre of pressure on an edge", func() {
			in := stanceInput(robot, model.BodyLeftFoot)
			in.DesiredCOMAcc = r3.Vec{Y: 3}
			status, err := ctrl.Control(robot, in, &out)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(wbc.StatusSuccess))

			Expect(out.COMAcc.Y).To(BeNumerically(">", 0.3))
			Expect(out.COMAcc.Y).To(BeNumerically("<", 1))
			rc := out.ResolvedContacts[0]
			for _, k := range []int{0, 2} {
				Expect(r3.Norm(rc.PointForces[k])).To(BeNumerically("<", 1e-6), "corner %d", k)
			}
			for _, b := range rc.Basis {
				Expect(b).To(BeNumerically(">=", -1e-9))
			}
			expectConsistent(ctrl, robot, &out)
		})
	})

	Context("tracking a body motion while moving", func() {
		It("stays consistent", func() {
			Expect(robot.SetVelocity([]float64{0, 0, 0, 0.1, 0.05, -0.2, -0.1, -0.05, 0.2, -0.1, -0.05, 0.2})).To(Succeed())
			in := stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot)
			in.DesiredCOMAcc = r3.Vec{X: 0.3, Z: 0.2}
			in.BodyAccelerations = []wbc.DesiredBodyAcceleration{
				{Name: "torso", Body: model.BodyTorso, Acceleration: []float64{0, 0, 0}, Weight: 10},
			}
			status, err := ctrl.Control(robot, in, &out)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(wbc.StatusSuccess))
			Expect(out.BodyAccelerations).To(HaveLen(1))
			expectConsistent(ctrl, robot, &out)
		})
	})

	Context("when the solver is unavailable", func() {
		It("reports solver_unavailable and leaves the previous output", func() {
			in := stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot)
			Expect(ctrl.Control(robot, in, &out)).To(Equal(wbc.StatusSuccess))
			previous := out.Clone()

			offline, err := New(qp.Unavailable{}, DefaultConfig(), nil)
			Expect(err).NotTo(HaveOccurred())
			status, err := offline.Control(robot, in, &out)
			Expect(status).To(Equal(wbc.StatusSolverUnavailable))
			Expect(err).To(MatchError(wbc.ErrSolverUnavailable))
			Expect(&out).To(Equal(previous))
		})
	})

	Context("with torque limits the stance cannot meet", func() {
		It("reports no_solution and leaves the output untouched", func() {
			robot.SetEffortLimits(200, 300)
			out.Vd = []float64{7}
			status, err := ctrl.Control(robot, stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot), &out)
			Expect(status).To(Equal(wbc.StatusNoSolution))
			Expect(err).To(MatchError(wbc.ErrNoSolution))
			Expect(out.Vd).To(Equal([]float64{7}))
		})
	})

	Context("with zero effort limits", func() {
		It("returns only bound-satisfying solutions", func() {
			robot.SetEffortLimits(0, 0)
			status, _ := ctrl.Control(robot, stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot), &out)
			Expect(status).To(BeElementOf(wbc.StatusSuccess, wbc.StatusNoSolution))
			if status == wbc.StatusSuccess {
				expectWithinEffort(robot, &out)
				// the unpowered legs cannot hold the torso up
				Expect(out.COMAcc.Z).To(BeNumerically("<", -robot.Params().Gravity/2))
			}
		})
	})

	Context("determinism", func() {
		It("gives the same output from two controllers", func() {
			in := stanceInput(robot, model.BodyLeftFoot, model.BodyRightFoot)
			in.DesiredCOMAcc = r3.Vec{Y: 0.2}
			var other wbc.QPOutput
			Expect(ctrl.Control(robot, in, &out)).To(Equal(wbc.StatusSuccess))
			Expect(newController().Control(robot, in, &other)).To(Equal(wbc.StatusSuccess))
			for i := range out.Vd {
				Expect(other.Vd[i]).To(BeNumerically("~", out.Vd[i], 1e-9))
			}
		})
	})
})
