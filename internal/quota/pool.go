// Package quota manages the shared budget of YouTube Data API units across
// a pool of API credentials. Every API call reserves its unit cost from the
// pool before it is issued; the pool hands out the credential that should
// pay for it.
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// resetInterval is how long a credential's spent units count against it.
// Each credential keeps its own reset clock, anchored to pool start, so
// credentials added at different times never need a synchronized boundary.
const resetInterval = 24 * time.Hour

// Credential describes one API key's identity and daily unit cap.
// The key material itself never enters the pool; callers map the
// credential ID back to a configured key when issuing the call.
type Credential struct {
	ID       string
	DailyCap int64
}

// Reservation is the handle returned by a successful Reserve. The caller
// must issue the API call with the named credential; the units are spent
// whether or not the call succeeds, because the platform charges on
// issuance.
type Reservation struct {
	CredentialID string
	Cost         int64
	Remaining    int64
}

// ErrExhausted reports that no credential can cover the requested cost.
// NextReset tells callers when budget becomes available again so they can
// decide between waiting and aborting the run.
type ErrExhausted struct {
	Cost      int64
	NextReset time.Time
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("quota exhausted: no credential can cover %d units, next reset at %s",
		e.Cost, e.NextReset.Format(time.RFC3339))
}

// IsExhausted reports whether err signals pool-wide quota exhaustion.
func IsExhausted(err error) bool {
	var target *ErrExhausted
	return errors.As(err, &target)
}

// CredentialStatus is a point-in-time view of one credential's budget,
// used for job summaries and metrics.
type CredentialStatus struct {
	ID        string
	Used      int64
	Remaining int64
	ResetAt   time.Time
}

type credential struct {
	id       string
	dailyCap int64
	used     int64
	resetAt  time.Time
}

func (c *credential) remaining() int64 {
	return c.dailyCap - c.used
}

// maybeReset zeroes the counter once the credential's reset time has
// passed. The reset time advances in whole intervals to keep each
// credential's clock aligned with its own start, even across idle days.
func (c *credential) maybeReset(now time.Time) {
	for !now.Before(c.resetAt) {
		c.used = 0
		c.resetAt = c.resetAt.Add(resetInterval)
	}
}

// Pool tracks unit budgets for a set of credentials. All counter mutation
// happens under one mutex, so concurrent reservations can never over-spend
// a credential.
type Pool struct {
	mu    sync.Mutex
	creds []*credential
	log   *zap.Logger
	now   func() time.Time
}

// NewPool builds a pool over the configured credentials. Each credential
// starts with a full budget and a reset clock one interval from now.
func NewPool(credentials []Credential, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		log: log,
		now: time.Now,
	}
	start := p.now()
	for _, c := range credentials {
		p.creds = append(p.creds, &credential{
			id:       c.ID,
			dailyCap: c.DailyCap,
			resetAt:  start.Add(resetInterval),
		})
	}

	return p
}

// Reserve atomically spends cost units against the credential with the
// most remaining budget that can cover it, spreading load across keys.
// It never blocks; when no credential fits it returns ErrExhausted with
// the earliest upcoming reset.
func (p *Pool) Reserve(cost int64, jobID uuid.UUID) (*Reservation, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("quota: reserve cost must be positive, got %d", cost)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	var best *credential
	for _, c := range p.creds {
		c.maybeReset(now)
		if c.remaining() < cost {
			continue
		}
		if best == nil || c.remaining() > best.remaining() {
			best = c
		}
	}

	if best == nil {
		err := &ErrExhausted{Cost: cost, NextReset: p.nextResetLocked()}
		p.log.Warn("Quota exhausted across all credentials",
			zap.String("jobId", jobID.String()),
			zap.Int64("cost", cost),
			zap.Time("nextReset", err.NextReset),
		)
		return nil, err
	}

	best.used += cost
	res := &Reservation{
		CredentialID: best.id,
		Cost:         cost,
		Remaining:    best.remaining(),
	}

	p.log.Info("Reserved quota units",
		zap.String("jobId", jobID.String()),
		zap.String("credentialId", res.CredentialID),
		zap.Int64("cost", cost),
		zap.Int64("remaining", res.Remaining),
	)

	return res, nil
}

// MarkExhausted drains a credential's budget until its next reset. Used
// when the platform rejects a call with a quota error even though local
// accounting still showed headroom.
func (p *Pool) MarkExhausted(credentialID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.creds {
		if c.id != credentialID {
			continue
		}
		c.maybeReset(p.now())
		c.used = c.dailyCap
		p.log.Warn("Credential reported exhausted upstream",
			zap.String("credentialId", credentialID),
			zap.Time("resetAt", c.resetAt),
		)
		return
	}
}

// Snapshot returns the current budget state of every credential, applying
// any pending resets first.
func (p *Pool) Snapshot() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	statuses := make([]CredentialStatus, 0, len(p.creds))
	for _, c := range p.creds {
		c.maybeReset(now)
		statuses = append(statuses, CredentialStatus{
			ID:        c.id,
			Used:      c.used,
			Remaining: c.remaining(),
			ResetAt:   c.resetAt,
		})
	}

	return statuses
}

// nextResetLocked returns the earliest reset time across credentials.
// Callers must hold p.mu.
func (p *Pool) nextResetLocked() time.Time {
	var next time.Time
	for _, c := range p.creds {
		if next.IsZero() || c.resetAt.Before(next) {
			next = c.resetAt
		}
	}
	return next
}
