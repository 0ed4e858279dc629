// Package export renders a schedule for external consumers.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/bvweerd/battery-controller/core/model"
)

// WriteJSON writes the schedule to w in JSON format.
func WriteJSON(w io.Writer, s *model.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV writes the schedule steps to w, one row per step.
func WriteCSV(w io.Writer, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "power_w", "mode", "soc_wh", "profit_loss_eur", "buy_price_eur"}); err != nil {
		return err
	}
	for i, p := range s.Points {
		at := s.CreatedAt.Add(time.Duration(i) * s.StepDuration)
		rec := []string{
			at.Format(time.RFC3339),
			strconv.FormatFloat(p.PowerW, 'f', -1, 64),
			p.Mode.String(),
			strconv.FormatFloat(p.SoCWh, 'f', 1, 64),
			strconv.FormatFloat(p.ProfitLossEUR, 'f', 4, 64),
			strconv.FormatFloat(p.BuyPriceEUR, 'f', 4, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
