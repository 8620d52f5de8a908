package tower

import (
	"sync"

	"github.com/banshee-data/celltower/internal/cellular"
)

// completion is called once when the scan it is bound to finishes or fails
// on the worker goroutine, or when CancelScan or shutdown withdraws it.
type completion func(cellular.TowerInfo, error)

// requestSlot holds at most one completion, identified by the id of the
// measure command it was submitted with. Every clear is a compare-and-clear
// on that id, so a late finish can never fire a newer request.
type requestSlot struct {
	mu     sync.Mutex
	lastID uint64
	id     uint64 // 0 when empty
	fn     completion
}

// bind runs admit with the slot locked and, if admit succeeds, stores fn
// under a fresh id. admit must not block.
func (r *requestSlot) bind(fn completion, admit func(id uint64) bool) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id != 0 {
		return 0, false
	}
	r.lastID++
	id := r.lastID
	if !admit(id) {
		return 0, false
	}
	r.id, r.fn = id, fn
	return id, true
}

// take clears the slot if it still holds id and returns the completion.
func (r *requestSlot) take(id uint64) completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == 0 || r.id != id {
		return nil
	}
	fn := r.fn
	r.id, r.fn = 0, nil
	return fn
}

// takeAny clears the slot whatever it holds.
func (r *requestSlot) takeAny() completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn := r.fn
	r.id, r.fn = 0, nil
	return fn
}

func (r *requestSlot) bound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id != 0
}
