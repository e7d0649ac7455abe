// Package registry_test tests the installed voice registry.
package registry_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockPut = errors.New("mock put error")

// memoryStore is an in-memory KeyValueStore whose writes can be made to fail.
type memoryStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	failPuts  bool
	putCalled int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.data[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}

	return append([]byte(nil), data...), nil
}

func (m *memoryStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.putCalled++

	if m.failPuts {
		return errMockPut
	}

	m.data[key] = append([]byte(nil), data...)

	return nil
}

func newTestRegistry(t *testing.T) (*registry.Registry, *memoryStore) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "registry-test.log")
	require.NoError(t, err)

	store := newMemoryStore()

	return registry.New(store, testLogger), store
}

func record(lang, region, name string) core.PackageRecord {
	return core.PackageRecord{
		DisplayName:  name,
		Language:     lang,
		Region:       region,
		SpeakerIndex: 0,
		Speed:        1.0,
		Volume:       1.0,
		Kind:         core.KindPiper,
		FolderName:   lang + region,
	}
}

func TestRegistry_EmptyList(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)

	records, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegistry_AddIsIdempotentFirstWins(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	added, err := reg.Add(ctx, record("en", "US", "en_US-amy-medium"))
	require.NoError(t, err)
	assert.True(t, added)

	second := record("en", "GB", "en_GB-alan-low")
	second.Kind = core.KindCoqui

	added, err = reg.Add(ctx, second)
	require.NoError(t, err)
	assert.False(t, added)

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "en_US-amy-medium", records[0].DisplayName)
	assert.Equal(t, "US", records[0].Region)
	assert.Equal(t, core.KindPiper, records[0].Kind)
}

func TestRegistry_ListKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, lang := range []string{"fr", "de", "en", "ab"} {
		_, err := reg.Add(ctx, record(lang, "XX", lang))
		require.NoError(t, err)
	}

	records, err := reg.List(ctx)
	require.NoError(t, err)

	langs := make([]string, 0, len(records))
	for _, rec := range records {
		langs = append(langs, rec.Language)
	}

	assert.Equal(t, []string{"fr", "de", "en", "ab"}, langs)
}

func TestRegistry_AddFillsFolderName(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	rec := record("de", "DE", "thorsten")
	rec.FolderName = ""

	_, err := reg.Add(context.Background(), rec)
	require.NoError(t, err)

	got, ok, err := reg.Get(context.Background(), "de")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "deDE", got.FolderName)
}

func TestRegistry_AddRejectsEmptyLanguage(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)

	_, err := reg.Add(context.Background(), record("", "US", "x"))
	require.ErrorIs(t, err, registry.ErrInvalidRecord)
}

func TestRegistry_UpdateTuning(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, record("fr", "FR", "pierre"))
	require.NoError(t, err)

	updated, err := reg.UpdateTuning(ctx, "fr", 3, 1.5, 0.8)
	require.NoError(t, err)
	assert.True(t, updated)

	got, ok, err := reg.Get(ctx, "fr")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.SpeakerIndex)
	assert.InEpsilon(t, 1.5, got.Speed, 0.0001)
	assert.InEpsilon(t, 0.8, got.Volume, 0.0001)
	assert.Equal(t, "pierre", got.DisplayName)

	updated, err = reg.UpdateTuning(ctx, "xx", 1, 1, 1)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestRegistry_UpdateTuningValidates(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)

	for _, tc := range []struct {
		speaker       int
		speed, volume float64
	}{
		{-1, 1, 1},
		{0, 0, 1},
		{0, 1, -0.5},
		{0, math.NaN(), 1},
		{0, 1, math.NaN()},
		{0, math.Inf(1), 1},
		{0, 1, math.Inf(-1)},
	} {
		_, err := reg.UpdateTuning(context.Background(), "en", tc.speaker, tc.speed, tc.volume)
		require.ErrorIs(t, err, registry.ErrInvalidTuning)
	}
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, record("en", "US", "amy"))
	require.NoError(t, err)
	_, err = reg.Add(ctx, record("de", "DE", "thorsten"))
	require.NoError(t, err)

	removed, err := reg.Remove(ctx, "en")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reg.Remove(ctx, "en")
	require.NoError(t, err)
	assert.False(t, removed)

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "de", records[0].Language)
}

func TestRegistry_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	reg, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Add(ctx, record("en", "US", "amy"))
	require.NoError(t, err)

	store.failPuts = true

	_, err = reg.Add(ctx, record("de", "DE", "thorsten"))
	require.ErrorIs(t, err, registry.ErrPersistence)

	_, err = reg.Remove(ctx, "en")
	require.ErrorIs(t, err, registry.ErrPersistence)

	_, err = reg.UpdateTuning(ctx, "en", 2, 2, 2)
	require.ErrorIs(t, err, registry.ErrPersistence)

	store.failPuts = false

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "en", records[0].Language)
	assert.Equal(t, 0, records[0].SpeakerIndex)
}

func TestRegistry_CorruptDocumentReadsAsEmpty(t *testing.T) {
	t.Parallel()

	reg, store := newTestRegistry(t)
	ctx := context.Background()

	store.data[registry.DocumentKey] = []byte("{not json")

	records, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	added, err := reg.Add(ctx, record("en", "US", "amy"))
	require.NoError(t, err)
	assert.True(t, added)

	records, err = reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, "{not json", string(store.data[registry.DocumentKey+registry.CorruptSuffix]))
}

func TestRegistry_CorruptDocumentIsNotOverwrittenWithoutBackup(t *testing.T) {
	t.Parallel()

	reg, store := newTestRegistry(t)
	ctx := context.Background()

	store.data[registry.DocumentKey] = []byte("{not json")
	store.failPuts = true

	_, err := reg.Add(ctx, record("en", "US", "amy"))
	require.ErrorIs(t, err, registry.ErrPersistence)
	assert.Equal(t, "{not json", string(store.data[registry.DocumentKey]))
}

func TestRegistry_WrongTypedFieldKeepsOtherRecords(t *testing.T) {
	t.Parallel()

	reg, store := newTestRegistry(t)
	ctx := context.Background()

	store.data[registry.DocumentKey] = []byte(`[{"lang":"de","speakerId":"2"},{"lang":"fr","speed":true}]`)

	records, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].SpeakerIndex)

	added, err := reg.Add(ctx, record("it", "IT", "paola"))
	require.NoError(t, err)
	assert.True(t, added)

	records, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "de", records[0].Language)
	assert.Equal(t, "fr", records[1].Language)
	assert.Equal(t, "it", records[2].Language)
	assert.NotContains(t, store.data, registry.DocumentKey+registry.CorruptSuffix)
}

func TestRegistry_ConcurrentAddsKeepEveryRecord(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	const workers = 16

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			lang := fmt.Sprintf("l%02d", i)
			_, err := reg.Add(ctx, record(lang, "XX", lang))
			assert.NoError(t, err)

			// Contend on the same key as well.
			_, err = reg.Add(ctx, record("shared", "XX", lang))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	records, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, workers+1)
}
