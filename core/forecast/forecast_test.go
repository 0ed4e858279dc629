package forecast

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvweerd/battery-controller/core/model"
)

func TestResampleRefines(t *testing.T) {
	out, err := Resample([]float64{0.20, 0.30}, time.Hour, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.20, 0.20, 0.20, 0.20, 0.30, 0.30, 0.30, 0.30}, out)
}

func TestResampleCoarsens(t *testing.T) {
	out, err := Resample([]float64{100, 200, 300, 400}, 15*time.Minute, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []float64{250}, out)
}

func TestResampleRejectsUnevenCadences(t *testing.T) {
	_, err := Resample([]float64{1}, time.Hour, 25*time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestPadTo(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 2, 2}, PadTo([]float64{1, 2}, 4))
	assert.Equal(t, []float64{1, 2}, PadTo([]float64{1, 2, 3}, 2))
	assert.Equal(t, []float64{0, 0}, PadTo(nil, 2))
}

func TestDocumentForecastAppliesFeedInFallback(t *testing.T) {
	fallback := 0.07
	doc := Document{
		StepMinutes:       15,
		BuyPriceEUR:       []float64{0.20, 0.25, 0.30},
		FeedInPriceEUR:    []float64{0.09},
		FeedInFallbackEUR: &fallback,
	}
	f, err := doc.Forecast()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.09, 0.07, 0.07}, f.FeedInPriceEUR)
	assert.Equal(t, 15*time.Minute, f.StepDuration)
	assert.Equal(t, []float64{0, 0, 0}, f.ConsumptionW)
}

func TestDocumentForecastMissingFeedInWithoutFallback(t *testing.T) {
	doc := Document{
		StepMinutes: 15,
		BuyPriceEUR: []float64{0.20, 0.25},
	}
	_, err := doc.Forecast()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrMissingInput)
}

func TestDecodeYAML(t *testing.T) {
	in := `
step_minutes: 60
buy_price_eur: [0.22, 0.18]
feed_in_fallback_eur: 0.07
consumption_w: [400]
pv:
  - coupling: dc
    power_w: [1200, 800]
  - power_w: [300, 300]
`
	f, err := Decode(strings.NewReader(in), "yaml")
	require.NoError(t, err)
	require.Len(t, f.PV, 2)
	assert.Equal(t, model.DCCoupled, f.PV[0].Coupling)
	assert.Equal(t, model.ACCoupled, f.PV[1].Coupling)
	assert.Equal(t, []float64{400, 400}, f.ConsumptionW)
	assert.Equal(t, []float64{0.07, 0.07}, f.FeedInPriceEUR)
}

func TestDecodeRejectsUnknownCoupling(t *testing.T) {
	in := `{"step_minutes": 15, "buy_price_eur": [0.2], "feed_in_fallback_eur": 0.07, "pv": [{"coupling": "hybrid", "power_w": [1]}]}`
	_, err := Decode(strings.NewReader(in), "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := Decode(strings.NewReader("x"), "toml")
	require.Error(t, err)
}

func TestToStepRefinesEverySeries(t *testing.T) {
	f := model.HorizonForecast{
		StepDuration:   time.Hour,
		BuyPriceEUR:    []float64{0.20, 0.30},
		FeedInPriceEUR: []float64{0.07, 0.08},
		ConsumptionW:   []float64{400, 600},
		PV: []model.PVArray{
			{Coupling: model.DCCoupled, PowerW: []float64{1000, 2000}},
		},
	}
	out, err := ToStep(f, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, out.StepDuration)
	assert.Equal(t, []float64{0.20, 0.20, 0.30, 0.30}, out.BuyPriceEUR)
	assert.Equal(t, []float64{400, 400, 600, 600}, out.ConsumptionW)
	require.Len(t, out.PV, 1)
	assert.Equal(t, model.DCCoupled, out.PV[0].Coupling)
	assert.Equal(t, []float64{1000, 1000, 2000, 2000}, out.PV[0].PowerW)
}

func TestToStepRejectsUnevenCadence(t *testing.T) {
	f := model.HorizonForecast{
		StepDuration:   time.Hour,
		BuyPriceEUR:    []float64{0.20},
		FeedInPriceEUR: []float64{0.07},
	}
	_, err := ToStep(f, 25*time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfig)
}
