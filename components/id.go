package components

import "fmt"

// UniqueID is a lineage-encoded identifier packed as [parent:32][cell:31][child:1].
type UniqueID uint64

const (
	// NoCellID is never issued; it marks an empty or retired identifier.
	NoCellID uint32 = 0
	// MaxCellID is the largest cell ID representable in 31 bits.
	MaxCellID uint32 = 1<<31 - 1

	cellIDMask    = 0x7FFFFFFF
	childFlagMask = 0x1
)

// PackID combines the three fields with no range checks; out-of-range bits are masked off.
func PackID(parent, cell uint32, childFlag uint8) UniqueID {
	return UniqueID(uint64(parent)<<32 |
		uint64(cell&cellIDMask)<<1 |
		uint64(childFlag&childFlagMask))
}

// NewUniqueID packs the fields, reporting false if cell exceeds 31 bits or childFlag exceeds 1.
func NewUniqueID(parent, cell uint32, childFlag uint8) (UniqueID, bool) {
	if cell > MaxCellID || childFlag > 1 {
		return 0, false
	}
	return PackID(parent, cell, childFlag), true
}

// Parent returns the cell ID of the cell whose division produced this one.
func (id UniqueID) Parent() uint32 { return uint32(id >> 32) }

// Cell returns the 31-bit cell ID.
func (id UniqueID) Cell() uint32 { return uint32(id>>1) & cellIDMask }

// ChildFlag returns 0 for the A daughter and 1 for the B daughter.
func (id UniqueID) ChildFlag() uint8 { return uint8(id & childFlagMask) }

// String formats the ID as parent.cell.flag.
func (id UniqueID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Parent(), id.Cell(), id.ChildFlag())
}
