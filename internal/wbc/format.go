package wbc

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/spatial/r3"
)

const rule = "==============================================="

// WriteInput dumps a QPInput in a human readable layout.
func WriteInput(w io.Writer, in *QPInput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "QPInput:")
	fmt.Fprintf(tw, "desired_comdd:\t%s\n", vec(in.DesiredCOMAcc))
	for _, b := range in.BodyAccelerations {
		fmt.Fprintf(tw, "%s_d:\t%s\n", b.Name, floats(b.Acceleration))
	}
	fmt.Fprintf(tw, "desired_vd:\t%s\n", floats(in.DesiredVd))
	fmt.Fprintf(tw, "w_com:\t%g\n", in.WCOM)
	for _, b := range in.BodyAccelerations {
		fmt.Fprintf(tw, "w_%s:\t%g\n", b.Name, b.Weight)
	}
	fmt.Fprintf(tw, "w_vd:\t%g\n", in.WVd)
	fmt.Fprintf(tw, "w_basis_reg:\t%g\n", in.WBasisReg)
	for _, c := range in.Contacts {
		fmt.Fprintf(tw, "contact:\t%s\n", c)
	}
	return tw.Flush()
}

// WriteOutput dumps a QPOutput in a human readable layout.
func WriteOutput(w io.Writer, out *QPOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "QPOutput:")
	fmt.Fprintln(tw, "accelerations:")
	for i, v := range out.Vd {
		fmt.Fprintf(tw, "%s:\t%.6g\n", coordName(out.CoordNames, i), v)
	}
	fmt.Fprintf(tw, "com acc:\t%s\n", vec(out.COMAcc))
	for _, b := range out.BodyAccelerations {
		fmt.Fprintf(tw, "%s acc:\t%s\n", b.Name, floats(b.Acceleration))
	}
	fmt.Fprintln(tw, rule)
	for _, rc := range out.ResolvedContacts {
		fmt.Fprintf(tw, "%s wrench:\t%s\n", rc.Name, floats(rc.EquivalentWrench[:]))
		fmt.Fprintln(tw, "point forces:")
		for _, f := range rc.PointForces {
			fmt.Fprintf(tw, "\t%s\n", vec(f))
		}
	}
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "torque:")
	base := len(out.Vd) - len(out.JointTorque)
	for i, tau := range out.JointTorque {
		fmt.Fprintf(tw, "%s:\t%.6g\n", coordName(out.CoordNames, base+i), tau)
	}
	fmt.Fprintln(tw, rule)
	fmt.Fprintln(tw, "costs:")
	for _, c := range out.Costs {
		fmt.Fprintf(tw, "%s:\t%.6g\n", c.Name, c.Value)
	}
	return tw.Flush()
}

func coordName(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("v%d", i)
}

func vec(v r3.Vec) string {
	return fmt.Sprintf("%.6g %.6g %.6g", v.X, v.Y, v.Z)
}

func floats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.6g", x)
	}
	return strings.Join(parts, " ")
}
