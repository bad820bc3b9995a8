package server

import "sync"

// History is a ring buffer of encoded FrameMutations, kept so that a viewer
// which reconnects shortly after dropping can catch up without a snapshot.
type History struct {
	mu       sync.RWMutex
	frames   [][]byte
	seqs     []uint64
	head     int // Next write position
	count    int
	capacity int
}

// NewHistory creates a history holding up to capacity frames.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 128
	}
	return &History{
		frames:   make([][]byte, capacity),
		seqs:     make([]uint64, capacity),
		capacity: capacity,
	}
}

// Add stores the frame of batch seq. Sequences must be added in order.
// The frame is not copied and must not be modified afterwards.
func (h *History) Add(seq uint64, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frames[h.head] = frame
	h.seqs[h.head] = seq
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

// Range returns the frames of batches (after, to], oldest first, or false
// if any of them has been evicted. An empty range is always available.
func (h *History) Range(after, to uint64) ([][]byte, bool) {
	if after >= to {
		return nil, after == to
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return nil, false
	}
	oldest := (h.head - h.count + h.capacity) % h.capacity
	newest := (h.head - 1 + h.capacity) % h.capacity
	if after+1 < h.seqs[oldest] || to > h.seqs[newest] {
		return nil, false
	}

	// Sequences are contiguous, so offsets index the ring directly.
	out := make([][]byte, 0, to-after)
	start := int(after + 1 - h.seqs[oldest])
	for i := start; i < start+int(to-after); i++ {
		out = append(out, h.frames[(oldest+i)%h.capacity])
	}
	return out, true
}

// Len returns the number of stored frames.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
