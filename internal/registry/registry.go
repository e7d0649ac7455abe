// Package registry keeps the persistent list of installed voice packages.
//
// The whole collection lives in a single key-value slot as one JSON array.
// Every mutation reloads the document, applies the change and writes the
// document back while holding the registry lock, so concurrent callers never
// lose each other's updates. Nothing is cached between calls: a failed write
// leaves the stored document, which is the only copy, untouched.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/core"
)

// DocumentKey is the slot that holds the serialised registry.
const DocumentKey = "lang_db_json"

// CorruptSuffix is appended to the document key to name the slot that keeps
// the last unreadable document before a mutation replaces it.
const CorruptSuffix = ".corrupt"

var (
	// ErrRegistryCorrupt marks a persisted document that could not be parsed.
	ErrRegistryCorrupt = errors.New("registry document is corrupt")
	// ErrPersistence wraps failures of the backing key-value store.
	ErrPersistence = errors.New("registry persistence failure")
	// ErrInvalidTuning is returned for out-of-range speaker, speed or volume values.
	ErrInvalidTuning = errors.New("invalid tuning parameters")
	// ErrInvalidRecord is returned when a record has no language key.
	ErrInvalidRecord = errors.New("invalid package record")
)

// Registry is the injectable collection of installed package records keyed by language.
type Registry struct {
	mu    sync.Mutex
	store core.KeyValueStore
	key   string
	log   *logger.Logger
}

// New returns a registry persisted in store under DocumentKey.
func New(store core.KeyValueStore, log *logger.Logger) *Registry {
	return &Registry{store: store, key: DocumentKey, log: log}
}

// List returns all records in insertion order.
func (r *Registry) List(ctx context.Context) ([]core.PackageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.load(ctx)
}

// Get returns the record for language, if any.
func (r *Registry) Get(ctx context.Context, language string) (core.PackageRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return core.PackageRecord{}, false, err
	}

	idx := indexOf(records, language)
	if idx < 0 {
		return core.PackageRecord{}, false, nil
	}

	return records[idx], true, nil
}

// Add appends rec unless a record with the same language already exists, in
// which case the existing record is kept unchanged and added is false.
func (r *Registry) Add(ctx context.Context, rec core.PackageRecord) (bool, error) {
	if rec.Language == "" {
		return false, fmt.Errorf("%w: empty language", ErrInvalidRecord)
	}

	if rec.FolderName == "" {
		rec.FolderName = core.FolderName(rec.Language, rec.Region)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadForUpdate(ctx)
	if err != nil {
		return false, err
	}

	if indexOf(records, rec.Language) >= 0 {
		return false, nil
	}

	err = r.save(ctx, append(records, rec))
	if err != nil {
		return false, err
	}

	r.log.Info("Registered voice %s (%s_%s, %s)", rec.DisplayName, rec.Language, rec.Region, rec.Kind)

	return true, nil
}

// UpdateTuning replaces the speaker, speed and volume of the record for
// language. It reports false when no such record exists.
func (r *Registry) UpdateTuning(
	ctx context.Context,
	language string,
	speakerIndex int,
	speed, volume float64,
) (bool, error) {
	if speakerIndex < 0 || !validMultiplier(speed) || !validMultiplier(volume) {
		return false, fmt.Errorf("%w: speaker=%d speed=%g volume=%g", ErrInvalidTuning, speakerIndex, speed, volume)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadForUpdate(ctx)
	if err != nil {
		return false, err
	}

	idx := indexOf(records, language)
	if idx < 0 {
		return false, nil
	}

	records[idx].SpeakerIndex = speakerIndex
	records[idx].Speed = speed
	records[idx].Volume = volume

	err = r.save(ctx, records)
	if err != nil {
		return false, err
	}

	return true, nil
}

// Remove deletes the record for language and reports whether one existed.
// The package directory on disk is left alone.
func (r *Registry) Remove(ctx context.Context, language string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadForUpdate(ctx)
	if err != nil {
		return false, err
	}

	idx := indexOf(records, language)
	if idx < 0 {
		return false, nil
	}

	err = r.save(ctx, slices.Delete(records, idx, idx+1))
	if err != nil {
		return false, err
	}

	r.log.Info("Removed voice record for language %s", language)

	return true, nil
}

func indexOf(records []core.PackageRecord, language string) int {
	return slices.IndexFunc(records, func(rec core.PackageRecord) bool {
		return rec.Language == language
	})
}

func validMultiplier(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// load must be called with r.mu held. A corrupt document is logged and read as empty.
func (r *Registry) load(ctx context.Context) ([]core.PackageRecord, error) {
	records, _, err := r.read(ctx)

	return records, err
}

// loadForUpdate must be called with r.mu held. Before a corrupt document can be
// overwritten its bytes are copied to the key with CorruptSuffix; if that copy
// fails the mutation is refused.
func (r *Registry) loadForUpdate(ctx context.Context) ([]core.PackageRecord, error) {
	records, corrupt, err := r.read(ctx)
	if err != nil || corrupt == nil {
		return records, err
	}

	backupKey := r.key + CorruptSuffix

	err = r.store.Put(ctx, backupKey, corrupt)
	if err != nil {
		return nil, fmt.Errorf("%w: keep unreadable document as %s: %w", ErrPersistence, backupKey, err)
	}

	r.log.Warn("Saved unreadable registry document as %q before replacing it", backupKey)

	return records, nil
}

// read returns the decoded records, or the raw bytes when they could not be decoded.
func (r *Registry) read(ctx context.Context) ([]core.PackageRecord, []byte, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return nil, nil, nil
		}

		return nil, nil, fmt.Errorf("%w: load: %w", ErrPersistence, err)
	}

	records, err := Decode(data)
	if err != nil {
		r.log.Warn("Ignoring unreadable registry document %q: %v", r.key, err)

		return nil, data, nil
	}

	return records, nil, nil
}

// save must be called with r.mu held.
func (r *Registry) save(ctx context.Context, records []core.PackageRecord) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}

	err = r.store.Put(ctx, r.key, data)
	if err != nil {
		return fmt.Errorf("%w: save: %w", ErrPersistence, err)
	}

	return nil
}
