package ecs

import "sync/atomic"

const exclusiveBorrow = -1

// borrowTable tracks which component columns live query passes are using.
// Each counter is positive for shared borrows, exclusiveBorrow for a writer, 0 when free.
// Everything is a CAS on the counters: when the scheduler has already separated
// conflicting systems every acquire succeeds on the first try.
type borrowTable struct {
	counts [MaskWidth]atomic.Int32
	passes atomic.Int32
}

// acquire takes shared borrows on reads and exclusive borrows on writes.
// On conflict nothing stays acquired and the offending bit and error kind are returned.
func (b *borrowTable) acquire(reads, writes Mask) (int, error) {
	reads &^= writes

	var taken Mask
	for offset := range writes.Offsets() {
		if kind := b.lockExclusive(offset); kind != nil {
			b.release(reads&taken, writes&taken)
			return offset, kind
		}
		taken |= Bit(offset)
	}
	for offset := range reads.Offsets() {
		if kind := b.lockShared(offset); kind != nil {
			b.release(reads&taken, writes&taken)
			return offset, kind
		}
		taken |= Bit(offset)
	}

	b.passes.Add(1)
	return -1, nil
}

func (b *borrowTable) lockExclusive(offset int) error {
	counter := &b.counts[offset]
	if counter.CompareAndSwap(0, exclusiveBorrow) {
		return nil
	}
	if counter.Load() == exclusiveBorrow {
		return ErrMultipleMutableAccess
	}
	return ErrMutableAccessWhilstView
}

func (b *borrowTable) lockShared(offset int) error {
	counter := &b.counts[offset]
	for {
		current := counter.Load()
		if current == exclusiveBorrow {
			return ErrMutableAccessWhilstView
		}
		if counter.CompareAndSwap(current, current+1) {
			return nil
		}
	}
}

func (b *borrowTable) release(reads, writes Mask) {
	reads &^= writes
	for offset := range writes.Offsets() {
		b.counts[offset].Store(0)
	}
	for offset := range reads.Offsets() {
		b.counts[offset].Add(-1)
	}
}

// end releases a pass acquired with acquire.
func (b *borrowTable) end(reads, writes Mask) {
	b.release(reads, writes)
	b.passes.Add(-1)
}

// active reports whether any pass is live.
func (b *borrowTable) active() bool {
	return b.passes.Load() > 0
}
