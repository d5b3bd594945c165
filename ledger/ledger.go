// Package ledger tracks the user's prepaid balance. Every generation and
// tool invocation debits it; the balance never goes below zero and a zero
// balance never blocks a turn.
package ledger

import (
	"sync"
	"time"
)

// Entry records a single debit or top-up.
type Entry struct {
	Ts     int64   `json:"ts"`
	Amount float64 `json:"amount"` // negative for debits
	Reason string  `json:"reason"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	balance float64
	history []Entry
	onTouch func(balance float64, history []Entry)
}

func New(balance float64) *Ledger {
	return &Ledger{balance: balance}
}

// OnTouch registers a hook invoked after every balance change with a snapshot
// of the new state. Used to schedule persistence.
func (l *Ledger) OnTouch(fn func(balance float64, history []Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTouch = fn
}

// Balance returns the current balance.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Debit subtracts amount from the balance, flooring at zero. Zero and
// negative amounts are ignored.
func (l *Ledger) Debit(amount float64, reason string) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.balance -= amount
	if l.balance < 0 {
		l.balance = 0
	}
	l.history = append(l.history, Entry{Ts: time.Now().Unix(), Amount: -amount, Reason: reason})
	l.notifyLocked()
	l.mu.Unlock()
}

// Credit adds amount to the balance. Zero and negative amounts are ignored.
func (l *Ledger) Credit(amount float64, reason string) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.balance += amount
	l.history = append(l.history, Entry{Ts: time.Now().Unix(), Amount: amount, Reason: reason})
	l.notifyLocked()
	l.mu.Unlock()
}

// SetBalance overwrites the balance, used when hydrating from storage.
func (l *Ledger) SetBalance(balance float64, history []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if balance < 0 {
		balance = 0
	}
	l.balance = balance
	l.history = append([]Entry(nil), history...)
}

// History returns a copy of the transaction log, oldest first.
func (l *Ledger) History() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.history...)
}

func (l *Ledger) notifyLocked() {
	if l.onTouch == nil {
		return
	}
	balance := l.balance
	history := append([]Entry(nil), l.history...)
	go l.onTouch(balance, history)
}
