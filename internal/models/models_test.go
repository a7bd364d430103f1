package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMilestoneValueWire(t *testing.T) {
	assert.Equal(t, float64(1), BoolValue(true).Wire())
	assert.Equal(t, float64(0), BoolValue(false).Wire())
	assert.Equal(t, 42.5, PercentValue(42.5).Wire())
}

func TestMilestoneValueValidate(t *testing.T) {
	assert.NoError(t, BoolValue(true).Validate())
	assert.NoError(t, PercentValue(0).Validate())
	assert.NoError(t, PercentValue(100).Validate())
	assert.Error(t, PercentValue(-1).Validate())
	assert.Error(t, PercentValue(100.01).Validate())
}

func TestMilestoneValueJSON(t *testing.T) {
	data, err := json.Marshal(BoolValue(true))
	require.NoError(t, err)
	assert.Equal(t, "true", string(data))

	data, err = json.Marshal(PercentValue(75))
	require.NoError(t, err)
	assert.Equal(t, "75", string(data))

	var v MilestoneValue
	require.NoError(t, json.Unmarshal([]byte("false"), &v))
	assert.True(t, v.IsBool())
	assert.False(t, v.Bool())

	require.NoError(t, json.Unmarshal([]byte("33.3"), &v))
	assert.False(t, v.IsBool())
	assert.Equal(t, 33.3, v.Percent())

	assert.Error(t, json.Unmarshal([]byte(`"done"`), &v))
}

func TestQueueSnapshotClone(t *testing.T) {
	ts := int64(1700000000000)
	snap := NewQueueSnapshot()
	snap.LastSyncAttempt = &ts
	snap.Updates = append(snap.Updates, QueuedUpdate{ID: "a", ComponentID: "c1", MilestoneName: "erected"})

	clone := snap.Clone()
	clone.Updates[0].ID = "b"
	*clone.LastSyncAttempt = 0

	assert.Equal(t, "a", snap.Updates[0].ID)
	assert.Equal(t, ts, *snap.LastSyncAttempt)
}
