package lock

import "sync"

// RwLock is the reader-writer primitive used at Passive run level only --
// the kernel map's region tree and VFS node metadata both
// take the write side briefly to splice a tree node. It is a thin wrapper
// over sync.RWMutex; the wrapper exists so call sites read "lock.RwLock"
// next to SpinLock/TicketLock instead of mixing package sync and package
// lock types at a glance.
type RwLock struct {
	mu sync.RWMutex
}

func (r *RwLock) RLock()   { r.mu.RLock() }
func (r *RwLock) RUnlock() { r.mu.RUnlock() }
func (r *RwLock) Lock()    { r.mu.Lock() }
func (r *RwLock) Unlock()  { r.mu.Unlock() }
