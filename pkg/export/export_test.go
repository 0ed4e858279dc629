package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvweerd/battery-controller/core/model"
)

func sampleSchedule() *model.Schedule {
	return &model.Schedule{
		CycleID:      "abc",
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		StepDuration: 15 * time.Minute,
		StartSoCWh:   5000,
		Points: []model.SchedulePoint{
			{PowerW: 2000, Mode: model.ModeCharging, SoCWh: 5474.3, ProfitLossEUR: -0.02, BuyPriceEUR: 0.05},
			{PowerW: 0, Mode: model.ModeIdle, SoCWh: 5474.3, BuyPriceEUR: 0.25},
		},
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleSchedule()))

	var got model.Schedule
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "abc", got.CycleID)
	assert.Len(t, got.Points, 2)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSchedule()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"time", "power_w", "mode", "soc_wh", "profit_loss_eur", "buy_price_eur"}, rows[0])
	assert.Equal(t, "2026-03-01T12:00:00Z", rows[1][0])
	assert.Equal(t, "2000", rows[1][1])
	assert.Equal(t, "charging", rows[1][2])
	assert.Equal(t, "2026-03-01T12:15:00Z", rows[2][0])
	assert.Equal(t, "idle", rows[2][2])
}
