package gcbind

// Raw is an opaque reference to an object on the foreign heap. It carries no
// protection: the collector is free to reclaim the referent unless the
// reference is held in a live root slot (see the memory package) or in a
// global root table. RawNull is the foreign null reference.
type Raw uint64

// RawNull is the null foreign reference.
const RawNull Raw = 0

// IsNull reports whether r is the null reference.
func (r Raw) IsNull() bool { return r == RawNull }

// GCMode selects how thorough a requested collection cycle is.
type GCMode int

const (
	// GCAuto lets the collector decide whether a cycle is worthwhile.
	GCAuto GCMode = iota
	// GCFull forces a full cycle over the entire heap.
	GCFull
	// GCIncremental requests a partial cycle.
	GCIncremental
)

func (m GCMode) String() string {
	switch m {
	case GCAuto:
		return "auto"
	case GCFull:
		return "full"
	case GCIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Tag classifies the result of a call that crossed the native boundary.
type Tag uint8

const (
	// TagOk means the call returned normally.
	TagOk Tag = iota
	// TagException means the foreign side raised an exception. The exception
	// has been converted to an ordinary error value.
	TagException
	// TagPanic means the host side panicked. The panic was caught at the
	// boundary instead of unwinding into foreign stack frames, which the
	// host runtime cannot safely traverse.
	TagPanic
)

func (t Tag) String() string {
	switch t {
	case TagOk:
		return "ok"
	case TagException:
		return "exception"
	case TagPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// RootScanner enumerates live root slots for the collector. Implementations
// are registered with the runtime; during a collection cycle the collector
// calls ScanRoots on every registered scanner and treats each reported
// reference as reachable.
//
// ScanRoots is only invoked while every mutator thread is parked at a
// safepoint, so implementations do not need their own locking against
// mutator writes.
type RootScanner interface {
	ScanRoots(mark func(Raw))
}
