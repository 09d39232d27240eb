// Package memory is an in-process rent roll for local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rentdesk/internal/rentroll"
)

type Store struct {
	mu   sync.Mutex
	rows []rentroll.Row
	refs map[string]string
}

var _ rentroll.Writer = (*Store)(nil)

func New() *Store {
	return &Store{refs: make(map[string]string)}
}

// AppendPayment stores the row and returns a synthetic row reference.
func (s *Store) AppendPayment(_ context.Context, row rentroll.Row) (string, error) {
	if row.Date.IsZero() {
		return "", errors.New("rent roll row has no date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := row.PaymentID.String()
	if ref, ok := s.refs[key]; ok {
		return ref, nil
	}
	s.rows = append(s.rows, row)
	ref := fmt.Sprintf("mem:%d", len(s.rows))
	s.refs[key] = ref
	return ref, nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []rentroll.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rentroll.Row(nil), s.rows...)
}
