package quota

import "sync"

// Usage accumulates the units one job run reserved, per credential. Worker
// goroutines record reservations concurrently; the run loop reads the totals
// once the workers are done to finalize the job and its per-credential
// accounting rows.
type Usage struct {
	mu            sync.Mutex
	perCredential map[string]int64
}

// NewUsage returns an empty accumulator.
func NewUsage() *Usage {
	return &Usage{perCredential: make(map[string]int64)}
}

// Record adds a reservation's cost to its credential's tally. A nil
// reservation is ignored so callers can record unconditionally on the
// success path.
func (u *Usage) Record(res *Reservation) {
	if res == nil {
		return
	}
	u.mu.Lock()
	u.perCredential[res.CredentialID] += res.Cost
	u.mu.Unlock()
}

// Total returns the units reserved across all credentials.
func (u *Usage) Total() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	var total int64
	for _, units := range u.perCredential {
		total += units
	}
	return total
}

// PerCredential returns a copy of the per-credential tallies.
func (u *Usage) PerCredential() map[string]int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]int64, len(u.perCredential))
	for id, units := range u.perCredential {
		out[id] = units
	}
	return out
}
