package components

import "gonum.org/v1/gonum/num/quat"

// AdhesionLink joins two sibling cells by cell ID, so slot reuse cannot alias a link.
type AdhesionLink struct {
	A, B   uint32 // cell IDs, A is the child_flag=0 sibling
	Parent uint32
}

// AdhesionSpring holds the constraint state of a link.
type AdhesionSpring struct {
	Params     AdhesionParams
	RestLength float64
	RestTwist  quat.Number // qB * conj(qA) at formation
}
