package controller

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/wbqp/internal/model"
	"github.com/san-kum/wbqp/internal/qp"
	"github.com/san-kum/wbqp/internal/wbc"
)

const basisPerPoint = 4

func newRobot() *model.Biped {
	return model.NewBiped(model.DefaultBipedParams())
}

func footContact(b *model.Biped, body string) wbc.ContactInformation {
	return wbc.NewContactInformation(body, body, b.FootCorners(), basisPerPoint, 1)
}

// stanceInput is a zero-acceleration request with the given feet in contact.
func stanceInput(b *model.Biped, feet ...string) *wbc.QPInput {
	in := wbc.NewQPInput(b.NumVelocities())
	in.WCOM = 1e3
	in.WVd = 1e-3
	in.WBasisReg = 1e-5
	for _, f := range feet {
		in.Contacts = append(in.Contacts, footContact(b, f))
	}
	return in
}

func newController() *Controller {
	c, err := New(qp.NewActiveSet(qp.DefaultActiveSetOptions()), DefaultConfig(), nil)
	if err != nil {
		panic(err)
	}
	return c
}

func sumForces(out *wbc.QPOutput) r3.Vec {
	var f r3.Vec
	for _, rc := range out.ResolvedContacts {
		f = r3.Add(f, rc.Force())
	}
	return f
}
