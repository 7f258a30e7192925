package recorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"krakenfeed/internal/models"
)

func sampleBatch() tradeBatch {
	ts := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	return makeBatch("PF_XBTUSD", []models.Trade{
		{Time: ts.Add(-time.Second), Side: models.SideBuy, Price: 100, Qty: 2},
		{Time: ts, Side: models.SideSell, Price: 101, Qty: 1},
	}, "test")
}

func TestMakeBatchUsesLastTradeTime(t *testing.T) {
	batch := sampleBatch()
	if batch.RecordCount != 2 {
		t.Fatalf("unexpected record count: %d", batch.RecordCount)
	}
	want := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	if !batch.Timestamp.Equal(want) {
		t.Fatalf("batch timestamp = %v, want %v", batch.Timestamp, want)
	}
}

func TestCreateParquetProducesData(t *testing.T) {
	data, err := createParquet(sampleBatch())
	if err != nil {
		t.Fatalf("createParquet failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("empty parquet output")
	}
	// Parquet files start and end with the PAR1 magic.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("output does not look like parquet")
	}
}

func TestWriteLocalParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.parquet")
	if err := writeLocalParquet(path, sampleBatch()); err != nil {
		t.Fatalf("writeLocalParquet failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read parquet file: %v", err)
	}
	if len(data) < 8 || string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Fatalf("file does not look like parquet")
	}
}

func TestFileNameAndKey(t *testing.T) {
	batch := sampleBatch()
	name := fileName(batch)
	if !strings.HasPrefix(name, "PF_XBTUSD_trades_2026080114_") || !strings.HasSuffix(name, ".parquet") {
		t.Fatalf("unexpected file name: %s", name)
	}
	key := s3Key(batch, name)
	if !strings.HasPrefix(key, "trades/instrument=PF_XBTUSD/date=2026-08-01/") {
		t.Fatalf("unexpected s3 key: %s", key)
	}
	if strings.Contains(key, "\\") {
		t.Fatalf("s3 key contains backslashes: %s", key)
	}
}
