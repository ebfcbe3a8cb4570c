package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"cryptoScreener/internal/domain"
)

var recordHeader = []string{
	"symbol", "price", "volume",
	"return_1d", "return_7d", "return_30d",
	"vwap_7", "vwap_7_dist", "vwap_30", "vwap_30_dist", "vwap_90", "vwap_90_dist", "vwap_365", "vwap_365_dist",
	"ema_fine", "ema_fine_dist", "ema_daily", "ema_daily_dist",
	"zscore", "oi_change_24h", "oi_change_7d",
	"updated_at",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatOptional renders an absent value as an empty cell.
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// WriteRecords writes the records as CSV, header first, in the given order.
func WriteRecords(w io.Writer, records []domain.InstrumentRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(recordHeader); err != nil {
		return err
	}
	for _, r := range records {
		writer.Write([]string{
			r.Symbol,
			formatFloat(r.Price),
			formatFloat(r.Volume),
			formatFloat(r.Return1d),
			formatFloat(r.Return7d),
			formatFloat(r.Return30d),
			formatFloat(r.VWAP7.Value), formatFloat(r.VWAP7.DistancePct),
			formatFloat(r.VWAP30.Value), formatFloat(r.VWAP30.DistancePct),
			formatFloat(r.VWAP90.Value), formatFloat(r.VWAP90.DistancePct),
			formatFloat(r.VWAP365.Value), formatFloat(r.VWAP365.DistancePct),
			formatFloat(r.EMAFine.Value), formatFloat(r.EMAFine.DistancePct),
			formatFloat(r.EMADaily.Value), formatFloat(r.EMADaily.DistancePct),
			formatOptional(r.ZScore),
			formatOptional(r.OIChange24h),
			formatOptional(r.OIChange7d),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteRecordsToCSV writes the records to filename, replacing any existing file.
func WriteRecordsToCSV(records []domain.InstrumentRecord, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteRecords(file, records); err != nil {
		return err
	}
	return file.Close()
}
