package bridge

import (
	"sync"

	"github.com/go-i2p/go-void/lib/packet"
)

// StoredReceipt is a verified delivery receipt.
type StoredReceipt struct {
	Delivery *packet.Delivery
	Receipt  *packet.Receipt
}

// DefaultMaxReceipts bounds the receipt store of a long-running bridge.
const DefaultMaxReceipts = 4096

// ReceiptStore keeps the most recent verified receipts in arrival order.
// Once full, the oldest receipt is dropped for each new one.
type ReceiptStore struct {
	mu   sync.Mutex
	max  int
	list []StoredReceipt
}

func (s *ReceiptStore) add(r StoredReceipt) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.max
	if limit <= 0 {
		limit = DefaultMaxReceipts
	}
	if len(s.list) >= limit {
		n := copy(s.list, s.list[len(s.list)-limit+1:])
		clear(s.list[n:])
		s.list = s.list[:n]
	}
	s.list = append(s.list, r)
	return len(s.list)
}

// All returns a snapshot of the stored receipts.
func (s *ReceiptStore) All() []StoredReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredReceipt, len(s.list))
	copy(out, s.list)
	return out
}

// Len returns the number of stored receipts.
func (s *ReceiptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}
