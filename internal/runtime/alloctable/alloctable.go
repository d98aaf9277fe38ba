// Package alloctable implements Runtime.AllocTable: an open-addressed,
// tombstone-preserving hash table mapping a live allocation's address to
// its bookkeeping metadata (spec.md §3, §4.7).
//
// The design descends from original_source's ct_runtime_alloc.cpp, whose
// C table is a single fixed-size array probed with an xor-shift hash.
// spec.md upgrades that to a growable table (initial 2^16 entries, max
// 2^20) so a long-running process doesn't hit "table full" once its live
// allocation count exceeds 65536 — the fixed table in original_source
// would silently start refusing inserts at that point, which spec.md's
// testable property 8.4 (table growth) explicitly forbids. This package
// implements the upgraded, growable behavior.
package alloctable

import "sync/atomic"

// AllocKind tags which allocator family produced an entry, driving the
// dispatch at free/sweep time (spec.md §9 "dynamic dispatch").
type AllocKind uint8

const (
	MallocLike AllocKind = iota
	NewLike
	NewArrayLike
	MmapLike
	SbrkLike
)

func (k AllocKind) String() string {
	switch k {
	case MallocLike:
		return "malloc"
	case NewLike:
		return "new"
	case NewArrayLike:
		return "new[]"
	case MmapLike:
		return "mmap"
	case SbrkLike:
		return "sbrk"
	default:
		return "unknown"
	}
}

// State is an AllocEntry's lifecycle state (spec.md §3).
type State uint8

const (
	Empty State = iota
	Used
	Tomb
	Freed
	Autofreed
)

// Entry is one AllocTable record (spec.md §3 AllocEntry).
type Entry struct {
	Ptr      uintptr
	RealSize uint64
	ReqSize  uint64
	Site     string
	Kind     AllocKind
	State    State
	Mark     bool
}

// isTombstone reports whether an entry's state permits probing through it
// while still yielding a value on lookup — Freed and Autofreed entries
// serve double duty as tombstones, per spec.md §3.
func (e *Entry) isTombstone() bool {
	return e.State == Freed || e.State == Autofreed || e.State == Tomb
}

const (
	initialBits = 16
	maxBits     = 20
)

// Table is Runtime.AllocTable: a growable open-addressed hash guarded by
// a single spinlock, per spec.md §4.7 and §5.
type Table struct {
	lock    atomic.Bool
	entries []Entry
	bits    uint
	live    int
}

// New creates a table at the spec-mandated initial capacity (2^16).
func New() *Table {
	return &Table{
		entries: make([]Entry, 1<<initialBits),
		bits:    initialBits,
	}
}

func (t *Table) acquire() {
	for !t.lock.CompareAndSwap(false, true) {
		// spin; critical sections are bounded-probe + O(1) per spec.md §5
	}
}

func (t *Table) release() { t.lock.Store(false) }

// hash reproduces ct_hash_ptr's two-xor-shift scramble, masked to the
// table's current capacity.
func hash(ptr uintptr, mask uintptr) uintptr {
	v := ptr
	v ^= v >> 4
	v ^= v >> 9
	return v & mask
}

// Insert records a new live allocation. It returns false only when the
// table is already at maxBits capacity and holds no reusable slot
// (spec.md §4.7: "Insert returns false only if the table is at max_bits
// and fully used").
func (t *Table) Insert(ptr uintptr, reqSize, realSize uint64, site string, kind AllocKind) bool {
	t.acquire()
	defer t.release()
	return t.insertLocked(ptr, reqSize, realSize, site, kind)
}

func (t *Table) insertLocked(ptr uintptr, reqSize, realSize uint64, site string, kind AllocKind) bool {
	if t.tryInsertLocked(ptr, reqSize, realSize, site, kind) {
		return true
	}
	for t.bits < maxBits {
		t.growLocked()
		if t.tryInsertLocked(ptr, reqSize, realSize, site, kind) {
			return true
		}
	}
	return false
}

// tryInsertLocked attempts one full probe of the current table, without
// growing. Caller holds the lock.
func (t *Table) tryInsertLocked(ptr uintptr, reqSize, realSize uint64, site string, kind AllocKind) bool {
	mask := uintptr(len(t.entries) - 1)
	idx := hash(ptr, mask)
	tomb := -1

	for i := 0; i < len(t.entries); i++ {
		pos := int((idx + uintptr(i)) & mask)
		e := &t.entries[pos]

		switch {
		case e.State == Used:
			if e.Ptr == ptr {
				e.RealSize, e.ReqSize, e.Site, e.Kind = realSize, reqSize, site, kind
				return true
			}
		case e.isTombstone():
			if tomb == -1 {
				tomb = pos
			}
		case e.State == Empty:
			target := pos
			if tomb != -1 {
				target = tomb
			}
			t.entries[target] = Entry{Ptr: ptr, RealSize: realSize, ReqSize: reqSize, Site: site, Kind: kind, State: Used}
			t.live++
			return true
		}
	}

	if tomb != -1 {
		t.entries[tomb] = Entry{Ptr: ptr, RealSize: realSize, ReqSize: reqSize, Site: site, Kind: kind, State: Used}
		t.live++
		return true
	}
	return false
}

// growLocked doubles the table, rehashing every Used, Freed, Autofreed,
// or Tomb entry so tombstone diagnostics survive the resize (spec.md
// §4.7: "tombstones preserved during rehash"). Caller holds the lock.
func (t *Table) growLocked() {
	old := t.entries
	t.bits++
	t.entries = make([]Entry, 1<<t.bits)
	mask := uintptr(len(t.entries) - 1)

	for _, e := range old {
		if e.State == Empty {
			continue
		}
		idx := hash(e.Ptr, mask)
		for i := 0; i < len(t.entries); i++ {
			pos := int((idx + uintptr(i)) & mask)
			if t.entries[pos].State == Empty {
				t.entries[pos] = e
				break
			}
		}
	}
}

// Remove transitions a Used entry to Freed. It returns +1 on a first
// successful free, -1 if the pointer was already Freed (double-free),
// or 0 if the pointer is unknown to the table, per spec.md §4.7.
func (t *Table) Remove(ptr uintptr) (result int, entry Entry) {
	t.acquire()
	defer t.release()
	return t.removeLocked(ptr, Freed)
}

// RemoveAutofree transitions a Used entry to Autofreed instead of Freed,
// used by the GC sweep and by compiler-inserted autofree calls.
func (t *Table) RemoveAutofree(ptr uintptr) (result int, entry Entry) {
	t.acquire()
	defer t.release()
	return t.removeLocked(ptr, Autofreed)
}

func (t *Table) removeLocked(ptr uintptr, into State) (int, Entry) {
	mask := uintptr(len(t.entries) - 1)
	idx := hash(ptr, mask)

	for i := 0; i < len(t.entries); i++ {
		pos := int((idx + uintptr(i)) & mask)
		e := &t.entries[pos]

		if e.State == Empty {
			return 0, Entry{}
		}
		if e.State == Used && e.Ptr == ptr {
			snap := *e
			e.State = into
			if t.live > 0 {
				t.live--
			}
			return 1, snap
		}
		if (e.State == Freed || e.State == Autofreed) && e.Ptr == ptr {
			return -1, *e
		}
	}
	return 0, Entry{}
}

// Lookup retrieves metadata for ptr regardless of whether it is Used or
// already a tombstone, so bounds-check diagnostics can still report the
// original allocation site of a freed pointer.
func (t *Table) Lookup(ptr uintptr) (Entry, bool) {
	t.acquire()
	defer t.release()

	mask := uintptr(len(t.entries) - 1)
	idx := hash(ptr, mask)
	for i := 0; i < len(t.entries); i++ {
		pos := int((idx + uintptr(i)) & mask)
		e := &t.entries[pos]
		if e.State == Empty {
			return Entry{}, false
		}
		if (e.State == Used || e.State == Freed || e.State == Autofreed) && e.Ptr == ptr {
			return *e, true
		}
	}
	return Entry{}, false
}

// LookupContaining does a linear scan for the live or freed entry whose
// [Ptr, Ptr+RealSize) range contains addr. spec.md §4.7 restricts this to
// shadow_aggressive mode precisely because it is O(N).
func (t *Table) LookupContaining(addr uintptr) (Entry, bool) {
	t.acquire()
	defer t.release()

	for i := range t.entries {
		e := &t.entries[i]
		if e.State != Used && e.State != Freed && e.State != Autofreed {
			continue
		}
		if e.Ptr == 0 || e.RealSize == 0 {
			continue
		}
		if addr >= e.Ptr && (addr-e.Ptr) < uintptr(e.RealSize) {
			return *e, true
		}
	}
	return Entry{}, false
}

// LiveCount returns the number of Used entries, per spec.md §8's leak
// accounting invariant.
func (t *Table) LiveCount() int {
	t.acquire()
	defer t.release()
	return t.live
}

// LeakReport lists up to maxLines Used entries for the process-exit leak
// report (spec.md §4.7, §8). truncated is true when more than maxLines
// entries exist.
func (t *Table) LeakReport(maxLines int) (entries []Entry, truncated bool) {
	t.acquire()
	defer t.release()

	for i := range t.entries {
		e := &t.entries[i]
		if e.State != Used {
			continue
		}
		if len(entries) >= maxLines {
			truncated = true
			break
		}
		entries = append(entries, *e)
	}
	return entries, truncated
}

// ClearMarks resets every Used entry's mark bit to false; used at the
// start of a GC mark phase (spec.md §4.10).
func (t *Table) ClearMarks() {
	t.acquire()
	defer t.release()
	for i := range t.entries {
		if t.entries[i].State == Used {
			t.entries[i].Mark = false
		}
	}
}

// Mark sets the mark bit for a Used entry at ptr, returning true if the
// pointer was found live. Used by the GC's root scan.
func (t *Table) Mark(ptr uintptr) bool {
	t.acquire()
	defer t.release()

	mask := uintptr(len(t.entries) - 1)
	idx := hash(ptr, mask)
	for i := 0; i < len(t.entries); i++ {
		pos := int((idx + uintptr(i)) & mask)
		e := &t.entries[pos]
		if e.State == Empty {
			return false
		}
		if e.State == Used && e.Ptr == ptr {
			e.Mark = true
			return true
		}
	}
	return false
}

// MarkContaining marks the live entry containing addr, for
// scan_interior mode (spec.md §4.10).
func (t *Table) MarkContaining(addr uintptr) bool {
	t.acquire()
	defer t.release()
	for i := range t.entries {
		e := &t.entries[i]
		if e.State != Used || e.Ptr == 0 || e.RealSize == 0 {
			continue
		}
		if addr >= e.Ptr && (addr-e.Ptr) < uintptr(e.RealSize) {
			e.Mark = true
			return true
		}
	}
	return false
}

// Sweep atomically transitions every unmarked Used entry to Autofreed
// and returns the swept entries so the caller can free them after
// releasing the lock, per spec.md §4.10's "Sweep" step.
func (t *Table) Sweep() []Entry {
	t.acquire()
	defer t.release()

	var swept []Entry
	for i := range t.entries {
		e := &t.entries[i]
		if e.State == Used && !e.Mark {
			swept = append(swept, *e)
			e.State = Autofreed
			if t.live > 0 {
				t.live--
			}
		}
	}
	return swept
}
