package memory

import "github.com/embedrt/gcbind"

const (
	// MinPageSize is the smallest number of slots a page is created with.
	MinPageSize = 64

	// MaxFrameSlots bounds a single frame. Requests beyond it signal a
	// capacity error instead of attempting unbounded growth.
	MaxFrameSlots = 1 << 20
)

// slot is one root cell: null or a raw reference to a foreign-heap object,
// plus the generation stamp of the last write. Slot addresses are stable for
// the lifetime of their page; pages never reallocate while any slot is
// borrowed by a live frame.
type slot struct {
	raw gcbind.Raw
	gen uint64
}

// page is a contiguous block of slots. Slots below used belong to live
// frames; everything at or above used is dead and must never be scanned.
type page struct {
	slots []slot
	used  int
}

func newPage(minCapacity int) *page {
	n := minCapacity
	if n < MinPageSize {
		n = MinPageSize
	}
	return &page{slots: make([]slot, n)}
}

func (p *page) capacity() int { return len(p.slots) }

func (p *page) free() int { return len(p.slots) - p.used }

// release zeroes the slots in [from, used) and rewinds the cursor. Zeroing
// keeps recycled slots from ever being trusted by a later frame or scan.
func (p *page) release(from int) {
	for i := from; i < p.used; i++ {
		p.slots[i] = slot{}
	}
	p.used = from
}
