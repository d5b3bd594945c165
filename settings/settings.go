// Package settings holds the durable user-scoped configuration document:
// provider credentials, feature toggles, learned preferences and the prepaid
// balance. The whole document is persisted as one JSON blob.
package settings

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/parleyhq/parley/ledger"
)

// Credentials are user-supplied API keys for paid capabilities. A non-empty
// key means the flat fee for that capability is waived; a text-model key
// makes plain generation free.
type Credentials struct {
	Search    string `json:"search,omitempty"`
	Image     string `json:"image,omitempty"`
	Audio     string `json:"audio,omitempty"`
	TextModel string `json:"textModel,omitempty"`
}

// Settings is the full user configuration document.
type Settings struct {
	SystemInstruction string         `json:"systemInstruction,omitempty"`
	MemoryEnabled     bool           `json:"memoryEnabled"`
	Preferences       []string       `json:"preferences,omitempty"`
	Credentials       Credentials    `json:"credentials"`
	Balance           float64        `json:"balance"`
	LedgerHistory     []ledger.Entry `json:"ledgerHistory,omitempty"`
}

// DefaultBalance is granted to a fresh installation.
const DefaultBalance = 5.0

func Default() *Settings {
	return &Settings{
		MemoryEnabled: true,
		Balance:       DefaultBalance,
	}
}

// Storage is the persistence surface the repository needs.
type Storage interface {
	GetSettings(ctx context.Context) ([]byte, error)
	PutSettings(ctx context.Context, data []byte) error
}

// Repository caches the settings document in memory and writes through to
// storage on every mutation.
type Repository struct {
	mu       sync.RWMutex
	storage  Storage
	settings *Settings
}

func NewRepository(storage Storage) *Repository {
	return &Repository{storage: storage, settings: Default()}
}

// Load hydrates the cache from storage. A missing document leaves defaults
// in place.
func (r *Repository) Load(ctx context.Context) error {
	data, err := r.storage.GetSettings(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load settings")
	}
	if len(data) == 0 {
		return nil
	}
	s := Default()
	if err := json.Unmarshal(data, s); err != nil {
		return errors.Wrap(err, "failed to unmarshal settings")
	}
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the current settings.
func (r *Repository) Get() *Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := *r.settings
	cp.Preferences = append([]string(nil), r.settings.Preferences...)
	cp.LedgerHistory = append([]ledger.Entry(nil), r.settings.LedgerHistory...)
	return &cp
}

// Update applies fn to the settings under lock and persists the result.
func (r *Repository) Update(ctx context.Context, fn func(*Settings)) error {
	r.mu.Lock()
	fn(r.settings)
	data, err := json.Marshal(r.settings)
	r.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}
	if err := r.storage.PutSettings(ctx, data); err != nil {
		return errors.Wrap(err, "failed to persist settings")
	}
	return nil
}

// AddPreference appends a durable preference note, skipping duplicates.
func (r *Repository) AddPreference(ctx context.Context, note string) error {
	return r.Update(ctx, func(s *Settings) {
		for _, p := range s.Preferences {
			if p == note {
				return
			}
		}
		s.Preferences = append(s.Preferences, note)
	})
}
