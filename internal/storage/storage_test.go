package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "powerwatch/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{"memory": NewMemory()}
	for _, driver := range []string{"sqlite", "file"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, driver, "powerwatch.db")}, logx.Nop())
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestSubscriptions(t *testing.T) {
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 20}))
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 10, ThreadID: 7}))
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "dacha", ChatID: 10}))
			// Re-subscribing is idempotent.
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 20}))

			subs, err := st.ListSubscriptions(ctx, "home")
			require.NoError(t, err)
			require.Len(t, subs, 2)
			assert.Equal(t, int64(10), subs[0].ChatID)
			assert.Equal(t, 7, subs[0].ThreadID)
			assert.False(t, subs[0].CreatedAt.IsZero())

			require.NoError(t, st.RemoveSubscription(ctx, "home", 10))
			assert.ErrorIs(t, st.RemoveSubscription(ctx, "home", 10), ErrNotFound)

			subs, err = st.ListSubscriptions(ctx, "home")
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, int64(20), subs[0].ChatID)

			subs, err = st.ListSubscriptions(ctx, "nowhere")
			require.NoError(t, err)
			assert.Empty(t, subs)
		})
	}
}

func TestStates(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.SaveState(ctx, LocationState{LocationID: "home", Available: true, At: at}))
			require.NoError(t, st.SaveState(ctx, LocationState{LocationID: "dacha", Available: true, At: at}))
			require.NoError(t, st.SaveState(ctx, LocationState{LocationID: "home", Available: false, At: at.Add(time.Minute)}))

			got, err := st.LoadStates(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "dacha", got[0].LocationID)
			assert.Equal(t, "home", got[1].LocationID)
			assert.False(t, got[1].Available)
			assert.True(t, got[1].At.Equal(at.Add(time.Minute)))
		})
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	for _, driver := range []string{"sqlite", "file"} {
		t.Run(driver, func(t *testing.T) {
			cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "state.db")}

			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 1}))
			require.NoError(t, st.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 2}))
			require.NoError(t, st.RemoveSubscription(ctx, "home", 1))
			require.NoError(t, st.SaveState(ctx, LocationState{LocationID: "home", Available: true, At: time.UnixMilli(1000)}))
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			subs, err := st.ListSubscriptions(ctx, "home")
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, int64(2), subs[0].ChatID)

			states, err := st.LoadStates(ctx)
			require.NoError(t, err)
			require.Len(t, states, 1)
			assert.True(t, states[0].Available)
		})
	}
}

func TestFileJournalReplayWithoutCompaction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	fs := st.(*fileStore)
	require.NoError(t, fs.AddSubscription(ctx, Subscription{LocationID: "home", ChatID: 5}))
	// Simulate a crash: close the journal without compacting.
	require.NoError(t, fs.journal.Close())

	st2, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	subs, err := st2.ListSubscriptions(ctx, "home")
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err, "path required")
}
