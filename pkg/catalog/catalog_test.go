package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weebdomains/pkg/models"
	"weebdomains/pkg/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

// fakeSource serves a fixed registry snapshot. listHook, when set, runs
// before the name list is returned and may block.
type fakeSource struct {
	mu       sync.Mutex
	names    []string
	records  map[string]string
	owners   map[string]string
	failOn   string
	listHook func()
	calls    atomic.Int32
}

func (f *fakeSource) snapshot() ([]string, map[string]string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), f.records, f.owners
}

func (f *fakeSource) ListAllNames(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	names, _, _ := f.snapshot()
	if f.listHook != nil {
		f.listHook()
	}
	return names, nil
}

func (f *fakeSource) GetRecord(ctx context.Context, name string) (string, error) {
	f.calls.Add(1)
	if name == f.failOn {
		return "", errors.New("header not found")
	}
	_, records, _ := f.snapshot()
	return records[name], nil
}

func (f *fakeSource) GetOwner(ctx context.Context, name string) (string, error) {
	f.calls.Add(1)
	_, _, owners := f.snapshot()
	return owners[name], nil
}

type gateFunc func(ctx context.Context) error

func (g gateFunc) Require(ctx context.Context) error { return g(ctx) }

func openGate() Gate {
	return gateFunc(func(context.Context) error { return nil })
}

func fixedAccount(a string) func() string {
	return func() string { return a }
}

func newSource() *fakeSource {
	return &fakeSource{
		names:   []string{"neko", "kawaii", "senpai"},
		records: map[string]string{"neko": "https://example.com/cat.gif", "senpai": "notice me"},
		owners:  map[string]string{"neko": account, "kawaii": "0x0000000000000000000000000000000000000001", "senpai": account},
	}
}

func TestRefresh_BuildsCatalog(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 2)

	var sunk []models.ListedName
	r.SetSink(func(entries []models.ListedName) { sunk = entries })

	entries, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, want := range []string{"neko", "kawaii", "senpai"} {
		assert.Equal(t, i, entries[i].Position)
		assert.Equal(t, want, entries[i].Name)
		assert.NotEmpty(t, entries[i].ID)
	}
	assert.Equal(t, "https://example.com/cat.gif", entries[0].Record)
	assert.Empty(t, entries[1].Record)
	assert.True(t, entries[2].IsOwnedBy(account))
	assert.Equal(t, entries, r.Entries())
	assert.Equal(t, entries, sunk)
	assert.Equal(t, int32(7), src.calls.Load())
}

func TestRefresh_Preconditions(t *testing.T) {
	src := newSource()

	r := NewReader(src, openGate(), fixedAccount(""), 0)
	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoAccount)

	wrong := gateFunc(func(context.Context) error { return network.ErrWrongNetwork })
	r = NewReader(src, wrong, fixedAccount(account), 0)
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, network.ErrWrongNetwork)

	assert.Zero(t, src.calls.Load())
	assert.Empty(t, r.Entries())
}

func TestRefresh_StaleOnError(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	before, err := r.Refresh(context.Background())
	require.NoError(t, err)

	src.mu.Lock()
	src.names = append(src.names, "baka")
	src.mu.Unlock()
	src.failOn = "senpai"

	_, err = r.Refresh(context.Background())
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Equal(t, "record", refreshErr.Stage)
	assert.Equal(t, "senpai", refreshErr.Name)

	assert.Equal(t, before, r.Entries())
}

func TestRefresh_IDsStableAcrossRefreshes(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	first, err := r.Refresh(context.Background())
	require.NoError(t, err)

	// A new name at the front shifts every position.
	src.mu.Lock()
	src.names = append([]string{"baka"}, src.names...)
	src.mu.Unlock()

	second, err := r.Refresh(context.Background())
	require.NoError(t, err)

	byName := func(entries []models.ListedName) map[string]models.ListedName {
		out := make(map[string]models.ListedName)
		for _, e := range entries {
			out[e.Name] = e
		}
		return out
	}
	a, b := byName(first), byName(second)
	for _, name := range []string{"neko", "kawaii", "senpai"} {
		assert.Equal(t, a[name].ID, b[name].ID, name)
		assert.Equal(t, a[name].Position+1, b[name].Position, name)
	}
	assert.NotEmpty(t, b["baka"].ID)
	assert.NotEqual(t, b["baka"].ID, b["neko"].ID)
}

func TestRefresh_LaterRefreshWins(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	src.listHook = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}

	var wg sync.WaitGroup
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, slowErr = r.Refresh(context.Background())
	}()
	<-entered

	// The slow refresh already holds the old name list; the registry moves on.
	src.mu.Lock()
	src.names = []string{"baka"}
	src.mu.Unlock()

	fast, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, fast, 1)

	close(release)
	wg.Wait()

	assert.ErrorIs(t, slowErr, ErrStale)
	got := r.Entries()
	require.Len(t, got, 1)
	assert.Equal(t, "baka", got[0].Name)
}

func TestRefresh_SinkSeesLaterRefreshLast(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var delivered [][]models.ListedName
	r.SetSink(func(entries []models.ListedName) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
		mu.Lock()
		delivered = append(delivered, entries)
		mu.Unlock()
	})

	slow := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		slow <- err
	}()
	<-entered

	src.mu.Lock()
	src.names = []string{"baka"}
	src.mu.Unlock()

	fast := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		fast <- err
	}()
	// 7 calls for the first refresh, 3 for the second.
	require.Eventually(t, func() bool { return src.calls.Load() == 10 }, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-slow)
	require.NoError(t, <-fast)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 2)
	last := delivered[len(delivered)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "baka", last[0].Name)
	assert.Equal(t, last[0].Name, r.Entries()[0].Name)
}

func TestReset_WaitsForDelivery(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32
	r.SetSink(func([]models.ListedName) {
		if delivered.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	go func() { _, _ = r.Refresh(context.Background()) }()
	<-entered

	reset := make(chan struct{})
	go func() {
		r.Reset()
		close(reset)
	}()
	select {
	case <-reset:
		t.Fatal("Reset returned while a delivery was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-reset
	assert.Empty(t, r.Entries())
	assert.EqualValues(t, 1, delivered.Load())
}

func TestReset_InvalidatesInFlight(t *testing.T) {
	src := newSource()
	r := NewReader(src, openGate(), fixedAccount(account), 0)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	ids := r.Entries()

	entered := make(chan struct{})
	release := make(chan struct{})
	src.listHook = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		done <- err
	}()
	<-entered
	r.Reset()
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Empty(t, r.Entries())

	src.listHook = nil
	again, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[0].ID, again[0].ID)
}
