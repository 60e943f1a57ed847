package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorekeep/lorekeep-go/pkg/storage"
	"github.com/lorekeep/lorekeep-go/pkg/storage/sqlite"
)

func newStore(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "lorekeep.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func record(id int64, agentID string, ts time.Time) *storage.Record {
	return &storage.Record{
		ID:         id,
		AgentID:    agentID,
		ShortForm:  "short",
		FullForm:   "Player said: hello. mara replied: well met",
		EventType:  "conversation",
		Importance: 5,
		Emotion:    "neutral",
		Tags:       []string{"greeting"},
		Timestamp:  ts,
	}
}

func TestInsertAndLoadRoundTrip(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	rec := record(1, "mara", ts)
	rec.SlotType = "player_name"
	require.NoError(t, c.Insert(ctx, rec))

	got, err := c.LoadAgent(ctx, "mara")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "mara", got[0].AgentID)
	assert.Equal(t, "short", got[0].ShortForm)
	assert.Equal(t, "conversation", got[0].EventType)
	assert.Equal(t, 5, got[0].Importance)
	assert.Equal(t, []string{"greeting"}, got[0].Tags)
	assert.Equal(t, "player_name", got[0].SlotType)
	assert.False(t, got[0].Superseded)
	assert.True(t, got[0].Timestamp.Equal(ts))
}

func TestLoadAgentOrdersByTimestamp(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	require.NoError(t, c.Insert(ctx, record(2, "mara", base.Add(time.Hour))))
	require.NoError(t, c.Insert(ctx, record(1, "mara", base)))
	require.NoError(t, c.Insert(ctx, record(3, "mara", base.Add(2*time.Hour))))

	got, err := c.LoadAgent(ctx, "mara")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
	assert.Equal(t, int64(3), got[2].ID)
}

func TestLoadAgentIsolatesAgents(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	require.NoError(t, c.Insert(ctx, record(1, "mara", ts)))
	require.NoError(t, c.Insert(ctx, record(2, "gregor", ts)))

	got, err := c.LoadAgent(ctx, "gregor")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gregor", got[0].AgentID)
}

func TestMarkSuperseded(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, record(1, "mara", time.Now().UTC())))
	require.NoError(t, c.MarkSuperseded(ctx, "mara", 1))

	got, err := c.LoadAgent(ctx, "mara")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Superseded)

	// Missing and already-marked records are no-ops.
	assert.NoError(t, c.MarkSuperseded(ctx, "mara", 1))
	assert.NoError(t, c.MarkSuperseded(ctx, "mara", 999))
}

func TestDeleteAgent(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	require.NoError(t, c.Insert(ctx, record(1, "mara", ts)))
	require.NoError(t, c.Insert(ctx, record(2, "gregor", ts)))
	require.NoError(t, c.DeleteAgent(ctx, "mara"))

	got, err := c.LoadAgent(ctx, "mara")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.LoadAgent(ctx, "gregor")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEmptyTagsSurviveRoundTrip(t *testing.T) {
	c := newStore(t)
	ctx := context.Background()

	rec := record(1, "mara", time.Now().UTC())
	rec.Tags = nil
	rec.Emotion = ""
	require.NoError(t, c.Insert(ctx, rec))

	got, err := c.LoadAgent(ctx, "mara")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Tags)
	assert.Empty(t, got[0].Emotion)
}
