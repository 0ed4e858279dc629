// Package forecast assembles the optimizer's horizon inputs from files and
// external series, resampling and padding them to a common cadence.
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bvweerd/battery-controller/core/model"
)

// PVDocument is the on-disk form of one PV array forecast.
type PVDocument struct {
	// Coupling is "ac" or "dc"; AC-coupled when omitted.
	Coupling string    `json:"coupling" yaml:"coupling"`
	PowerW   []float64 `json:"power_w" yaml:"power_w"`
}

// Document is the on-disk form of a horizon forecast.
type Document struct {
	StepMinutes int       `json:"step_minutes" yaml:"step_minutes"`
	BuyPriceEUR []float64 `json:"buy_price_eur" yaml:"buy_price_eur"`
	// FeedInPriceEUR may be shorter than the horizon or absent, in which
	// case FeedInFallbackEUR must be set explicitly. There is no implicit
	// zero or buy-price default.
	FeedInPriceEUR    []float64    `json:"feed_in_price_eur" yaml:"feed_in_price_eur"`
	FeedInFallbackEUR *float64     `json:"feed_in_fallback_eur" yaml:"feed_in_fallback_eur"`
	PV                []PVDocument `json:"pv" yaml:"pv"`
	ConsumptionW      []float64    `json:"consumption_w" yaml:"consumption_w"`
}

// Forecast normalizes the document into an optimizer input: the buy price
// series fixes the horizon, the feed-in fallback fills price gaps, PV and
// consumption are padded to length.
func (d Document) Forecast() (model.HorizonForecast, error) {
	n := len(d.BuyPriceEUR)
	if n == 0 {
		return model.HorizonForecast{}, fmt.Errorf("%w: empty buy price series", model.ErrMissingInput)
	}
	if d.StepMinutes <= 0 {
		return model.HorizonForecast{}, fmt.Errorf("%w: step_minutes must be positive", model.ErrConfig)
	}

	feedIn := d.FeedInPriceEUR
	if len(feedIn) < n {
		if d.FeedInFallbackEUR == nil {
			return model.HorizonForecast{}, fmt.Errorf("%w: feed-in price series has %d of %d steps and no fallback is configured",
				model.ErrMissingInput, len(feedIn), n)
		}
		full := Fill(*d.FeedInFallbackEUR, n)
		copy(full, feedIn)
		feedIn = full
	}

	f := model.HorizonForecast{
		StepDuration:   time.Duration(d.StepMinutes) * time.Minute,
		BuyPriceEUR:    d.BuyPriceEUR,
		FeedInPriceEUR: feedIn[:n],
		ConsumptionW:   PadTo(d.ConsumptionW, n),
	}
	for i, arr := range d.PV {
		coupling, ok := model.ParseCoupling(arr.Coupling)
		if !ok {
			return model.HorizonForecast{}, fmt.Errorf("%w: pv array %d has unknown coupling %q", model.ErrConfig, i, arr.Coupling)
		}
		f.PV = append(f.PV, model.PVArray{Coupling: coupling, PowerW: PadTo(arr.PowerW, n)})
	}
	return f, f.Validate()
}

// FileSource reads the forecast document anew on every planning cycle, so
// an updated file takes effect at the next cycle without a restart.
type FileSource struct {
	Path string
	// Step, when set, resamples the document to this cadence. Price feeds
	// are commonly hourly while planning runs on quarter hours.
	Step time.Duration
}

// Forecast loads and normalizes the document.
func (s FileSource) Forecast(context.Context) (model.HorizonForecast, error) {
	f, err := LoadFile(s.Path)
	if err != nil {
		return model.HorizonForecast{}, err
	}
	if s.Step == 0 || s.Step == f.StepDuration {
		return f, nil
	}
	return ToStep(f, s.Step)
}

// ToStep resamples every series of the forecast to the given cadence.
func ToStep(f model.HorizonForecast, step time.Duration) (model.HorizonForecast, error) {
	out := model.HorizonForecast{StepDuration: step}
	var err error
	if out.BuyPriceEUR, err = Resample(f.BuyPriceEUR, f.StepDuration, step); err != nil {
		return model.HorizonForecast{}, err
	}
	if out.FeedInPriceEUR, err = Resample(f.FeedInPriceEUR, f.StepDuration, step); err != nil {
		return model.HorizonForecast{}, err
	}
	if out.ConsumptionW, err = Resample(f.ConsumptionW, f.StepDuration, step); err != nil {
		return model.HorizonForecast{}, err
	}
	for _, arr := range f.PV {
		powerW, err := Resample(arr.PowerW, f.StepDuration, step)
		if err != nil {
			return model.HorizonForecast{}, err
		}
		out.PV = append(out.PV, model.PVArray{Coupling: arr.Coupling, PowerW: powerW})
	}
	return out, out.Validate()
}

// LoadFile reads a forecast document from a JSON or YAML file.
func LoadFile(path string) (model.HorizonForecast, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.HorizonForecast{}, err
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(bytes.NewReader(b), ext)
}

// Decode reads a forecast document from r in the given format.
func Decode(r io.Reader, format string) (model.HorizonForecast, error) {
	var doc Document
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return model.HorizonForecast{}, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return model.HorizonForecast{}, err
		}
	default:
		return model.HorizonForecast{}, fmt.Errorf("unsupported forecast format: %s", format)
	}
	return doc.Forecast()
}
