package changer

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"github.com/storagedaemon/autochangerd/internal/cerr"
	"github.com/storagedaemon/autochangerd/internal/plugin"
)

// Lock is the per-Changer writer-exclusive lock. It uses go-deadlock
// rather than sync.Mutex: the forbidden-recursive-acquisition
// invariant is exactly what deadlock detection surfaces during
// development and testing, where a plain sync.Mutex would just hang.
type Lock struct {
	mu      deadlock.Mutex
	changer *Changer
}

func newLock(c *Changer) *Lock {
	return &Lock{changer: c}
}

// Held is a capability token proving the owning Changer's lock is
// held. Its fields are unexported, so outside this package the only
// Held a caller can write itself is the zero value, which names no
// Changer; a token bound to a Changer comes only from Acquire. The
// type does not reject a zero Held passed where a token is expected.
type Held struct {
	changer *Changer
}

// Acquire takes the Changer's write lock and emits the ChangerLock
// plugin event. A plugin veto releases the lock and returns a
// CodeVeto error; the lock itself acquiring is not expected to fail
// in-process (no OS-level lock here), so no CodeLock path exists on
// this side — the process-fatal lock failure case is the deadlock
// detector's report, which with go-deadlock's default options exits
// the process.
func (c *Changer) Acquire(jobName string) (Held, error) {
	c.lock.mu.Lock()
	if err := c.plugin.Emit(plugin.ChangerLock, plugin.Context{ChangerName: c.Name, JobName: jobName}); err != nil {
		c.lock.mu.Unlock()
		return Held{}, cerr.Veto(fmt.Sprintf("plugin vetoed ChangerLock on changer %q: %v", c.Name, err))
	}
	return Held{changer: c}, nil
}

// Release emits the ChangerUnlock plugin event and drops the write
// lock. Once called, the Held token must not be used again.
func (h Held) Release(jobName string) {
	c := h.changer
	_ = c.plugin.Emit(plugin.ChangerUnlock, plugin.Context{ChangerName: c.Name, JobName: jobName})
	c.lock.mu.Unlock()
}

// WithLock acquires the Changer's lock (unless the caller already
// holds one, in which case pass it via held) and runs fn, releasing
// afterward only if this call did the acquiring. This is the
// type-safe analogue of a boolean lock_held parameter.
func (c *Changer) WithLock(jobName string, held *Held, fn func(h Held) error) error {
	if held != nil {
		return fn(*held)
	}
	h, err := c.Acquire(jobName)
	if err != nil {
		return err
	}
	defer h.Release(jobName)
	return fn(h)
}
