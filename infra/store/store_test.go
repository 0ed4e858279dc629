package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvweerd/battery-controller/core/logger"
	"github.com/bvweerd/battery-controller/core/model"
)

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStore(path, logger.NopLogger{})
	require.NoError(t, err)
	_, ok := s.LastSoC()
	assert.False(t, ok)

	require.NoError(t, s.SaveSoC(4200))
	sched := &model.Schedule{
		CycleID:      "abc",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		StepDuration: 15 * time.Minute,
		StartSoCWh:   4200,
		Points:       []model.SchedulePoint{{PowerW: 2000, Mode: model.ModeCharging, SoCWh: 4674}},
	}
	require.NoError(t, s.SaveSchedule(sched))

	reopened, err := NewFileStore(path, logger.NopLogger{})
	require.NoError(t, err)
	soc, ok := reopened.LastSoC()
	require.True(t, ok)
	assert.Equal(t, 4200.0, soc)
	got, ok := reopened.LoadSchedule()
	require.True(t, ok)
	assert.Equal(t, sched.CycleID, got.CycleID)
	assert.Equal(t, sched.Points, got.Points)
}

func TestCorruptStateFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path, logger.NopLogger{})
	require.NoError(t, err)
	_, ok := s.LastSoC()
	assert.False(t, ok)
	_, ok = s.LoadSchedule()
	assert.False(t, ok)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "state.json"), logger.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, s.SaveSoC(1000))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}
