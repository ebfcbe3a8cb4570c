package utils

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoScreener/internal/domain"
)

func sampleRecords() []domain.InstrumentRecord {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []domain.InstrumentRecord{
		{
			Symbol:      "BTCUSDT",
			Price:       65000.5,
			Volume:      9e9,
			Return1d:    1.25,
			VWAP7:       domain.PriceDistance{Value: 64000, DistancePct: 1.5625},
			ZScore:      domain.Float(-0.5),
			OIChange24h: domain.Float(3),
			UpdatedAt:   at,
		},
		{Symbol: "ETHUSDT", Price: 3000, Volume: 4e9, UpdatedAt: at},
	}
}

func TestWriteRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, recordHeader, rows[0])

	btc := rows[1]
	require.Len(t, btc, len(recordHeader))
	assert.Equal(t, "BTCUSDT", btc[0])
	assert.Equal(t, "65000.5", btc[1])
	assert.Equal(t, "9000000000", btc[2])
	assert.Equal(t, "64000", btc[6])
	assert.Equal(t, "1.5625", btc[7])
	assert.Equal(t, "-0.5", btc[18])
	assert.Equal(t, "3", btc[19])
	assert.Equal(t, "", btc[20], "absent value is an empty cell")
	assert.Equal(t, "2024-05-01T12:00:00Z", btc[21])

	assert.Equal(t, "", rows[2][18])
}

func TestWriteRecordsToCSV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "snapshot.csv")
	require.NoError(t, WriteRecordsToCSV(sampleRecords(), filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ETHUSDT")

	assert.Error(t, WriteRecordsToCSV(nil, filepath.Join(t.TempDir(), "missing", "x.csv")))
}
