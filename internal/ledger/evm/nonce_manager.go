package evm

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type PendingNoncer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager allocates nonces for one account across the short-lived connections of a Dialer.
// The backend is passed per call because every proof call dials its own connection.
//
// The next nonce never moves below a nonce that is still allocated. A released nonce below the
// top is kept and handed out again before new ones, so later transactions are not stuck behind a
// gap.
type NonceManager struct {
	addr common.Address

	mu   sync.Mutex
	next uint64
	have bool
	free []uint64 // released nonces below next, ascending
}

func NewNonceManager(addr common.Address) *NonceManager {
	return &NonceManager{addr: addr}
}

// Next returns the lowest released nonce, or the next unused one.
func (m *NonceManager) Next(ctx context.Context, backend PendingNoncer) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.have {
		n, err := backend.PendingNonceAt(ctx, m.addr)
		if err != nil {
			return 0, err
		}
		m.next = n
		m.have = true
	}

	if len(m.free) > 0 {
		n := m.free[0]
		m.free = m.free[1:]
		return n, nil
	}
	n := m.next
	m.next++
	return n, nil
}

// Release hands back nonce n, which was allocated by Next and never broadcast.
func (m *NonceManager) Release(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.have || n >= m.next {
		return
	}
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i] >= n })
	if i < len(m.free) && m.free[i] == n {
		return
	}
	m.free = append(m.free, 0)
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = n

	// Shrink the top while it is entirely released.
	for len(m.free) > 0 && m.free[len(m.free)-1] == m.next-1 {
		m.free = m.free[:len(m.free)-1]
		m.next--
	}
}

// Sync reads the backend's pending nonce. It raises next when the backend is ahead and drops
// released nonces the backend has already consumed, but never decreases next.
func (m *NonceManager) Sync(ctx context.Context, backend PendingNoncer) (uint64, error) {
	n, err := backend.PendingNonceAt(ctx, m.addr)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.have || n > m.next {
		m.next = n
		m.have = true
	}
	i := sort.Search(len(m.free), func(i int) bool { return m.free[i] >= n })
	m.free = m.free[i:]
	return n, nil
}
