package recorder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "krakenfeed/config"
	"krakenfeed/internal/models"
	"krakenfeed/logger"
)

type tradeParquetRecord struct {
	Instrument string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Side       string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price      float64 `parquet:"name=price, type=DOUBLE"`
	Qty        float64 `parquet:"name=qty, type=DOUBLE"`
	Notional   float64 `parquet:"name=notional, type=DOUBLE"`
}

type tradeBatch struct {
	Instrument  string
	Entries     []models.Trade
	Timestamp   time.Time
	Reason      string
	RecordCount int
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, fmt.Errorf("read not supported") }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// Recorder persists the trade stream as parquet files, one batch per flush,
// to a local directory and optionally to S3. It drains the trade channel off
// the feed goroutine so recording can never slow the session down.
type Recorder struct {
	cfg        *appconfig.Config
	instrument string
	tradeChan  <-chan models.Trade
	s3Client   *s3.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	log *logger.Log

	mu          sync.Mutex
	buffer      []models.Trade
	flushTicker *time.Ticker
	maxBuffer   int
	jobCh       chan tradeBatch
	running     bool
}

// NewRecorder creates a trade recorder reading from the given channel.
func NewRecorder(cfg *appconfig.Config, trades <-chan models.Trade) (*Recorder, error) {
	if !cfg.Recorder.Enabled {
		return nil, fmt.Errorf("recorder disabled")
	}
	if trades == nil {
		return nil, fmt.Errorf("nil trade channel provided")
	}

	var s3Client *s3.Client
	if cfg.Recorder.S3.Enabled {
		ctx := context.Background()
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Recorder.S3.Region)}
		if cfg.Recorder.S3.AccessKeyID != "" && cfg.Recorder.S3.SecretAccessKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Recorder.S3.AccessKeyID,
					cfg.Recorder.S3.SecretAccessKey,
					"",
				),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	if err := os.MkdirAll(cfg.Recorder.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}

	return &Recorder{
		cfg:        cfg,
		instrument: cfg.Instrument.Symbol,
		tradeChan:  trades,
		s3Client:   s3Client,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
		maxBuffer:  512,
		jobCh:      make(chan tradeBatch, 128),
	}, nil
}

// Start begins draining trades into batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.buffer = nil
	r.flushTicker = time.NewTicker(time.Minute)
	r.mu.Unlock()

	r.log.WithComponent("recorder").WithFields(logger.Fields{
		"dir":        r.cfg.Recorder.Dir,
		"s3_enabled": r.cfg.Recorder.S3.Enabled,
		"max_buffer": r.maxBuffer,
	}).Info("starting trade recorder")

	r.wg.Add(1)
	go r.ingest()

	r.wg.Add(1)
	go r.flushLoop()

	r.wg.Add(1)
	go r.writeWorker()

	return nil
}

// Stop flushes remaining trades and waits for workers to finish.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	ticker := r.flushTicker
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ticker != nil {
		ticker.Stop()
	}

	r.flushBuffer("shutdown")
	close(r.jobCh)
	r.wg.Wait()
	r.log.WithComponent("recorder").Info("trade recorder stopped")
}

func (r *Recorder) ingest() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case trade, ok := <-r.tradeChan:
			if !ok {
				r.flushBuffer("channel_closed")
				return
			}
			r.addTrade(trade)
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flushBuffer("interval")
		}
	}
}

func (r *Recorder) writeWorker() {
	defer r.wg.Done()
	for batch := range r.jobCh {
		r.processBatch(batch)
	}
}

func (r *Recorder) addTrade(trade models.Trade) {
	var flushEntries []models.Trade
	r.mu.Lock()
	r.buffer = append(r.buffer, trade)
	if len(r.buffer) >= r.maxBuffer {
		flushEntries = r.buffer
		r.buffer = nil
	}
	r.mu.Unlock()

	if len(flushEntries) > 0 {
		r.enqueueBatch(flushEntries, "max_buffer")
	}
}

func (r *Recorder) flushBuffer(reason string) {
	r.mu.Lock()
	entries := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	r.enqueueBatch(entries, reason)
}

func (r *Recorder) enqueueBatch(entries []models.Trade, reason string) {
	batch := makeBatch(r.instrument, entries, reason)
	select {
	case r.jobCh <- batch:
	default:
		r.log.WithComponent("recorder").WithFields(logger.Fields{
			"record_count": batch.RecordCount,
		}).Warn("recorder job queue full, dropping batch")
	}
}

func makeBatch(instrument string, entries []models.Trade, reason string) tradeBatch {
	ts := time.Now().UTC()
	if len(entries) > 0 && !entries[len(entries)-1].Time.IsZero() {
		ts = entries[len(entries)-1].Time.UTC()
	}
	return tradeBatch{
		Instrument:  instrument,
		Entries:     entries,
		Timestamp:   ts,
		Reason:      reason,
		RecordCount: len(entries),
	}
}

func (r *Recorder) processBatch(batch tradeBatch) {
	entryLog := r.log.WithComponent("recorder").WithFields(logger.Fields{
		"instrument":   batch.Instrument,
		"record_count": batch.RecordCount,
		"reason":       batch.Reason,
	})

	if batch.RecordCount == 0 {
		return
	}

	name := fileName(batch)
	localPath := filepath.Join(r.cfg.Recorder.Dir, name)

	if r.s3Client == nil {
		// Local-only mode streams straight to disk.
		if err := writeLocalParquet(localPath, batch); err != nil {
			entryLog.WithError(err).Error("failed to write trade parquet")
			return
		}
		logger.IncrementRecorderRows(batch.RecordCount)
		entryLog.WithFields(logger.Fields{"path": localPath}).Info("trade batch written")
		return
	}

	data, err := createParquet(batch)
	if err != nil {
		entryLog.WithError(err).Error("failed to create trade parquet")
		return
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		entryLog.WithError(err).Error("failed to write trade parquet")
		return
	}
	logger.IncrementRecorderRows(batch.RecordCount)

	key := s3Key(batch, name)
	if err := r.uploadToS3(key, data); err != nil {
		entryLog.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to upload trade parquet")
		return
	}
	logger.IncrementRecorderUpload(int64(len(data)))
	entryLog.WithFields(logger.Fields{"s3_key": key, "file_size": len(data)}).Info("trade batch uploaded")
}

func createParquet(batch tradeBatch) ([]byte, error) {
	mem := newMemFile()
	if err := writeRecords(mem, batch); err != nil {
		return nil, err
	}
	return mem.Bytes(), nil
}

func writeLocalParquet(path string, batch tradeBatch) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	if err := writeRecords(fw, batch); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func writeRecords(file source.ParquetFile, batch tradeBatch) error {
	pw, err := writer.NewParquetWriter(file, new(tradeParquetRecord), 1)
	if err != nil {
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, trade := range batch.Entries {
		rec := tradeParquetRecord{
			Instrument: batch.Instrument,
			Timestamp:  trade.Time.UnixMilli(),
			Side:       string(trade.Side),
			Price:      trade.Price,
			Qty:        trade.Qty,
			Notional:   trade.Notional(),
		}
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write trade record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize trade parquet: %w", err)
	}
	return nil
}

func fileName(batch tradeBatch) string {
	return fmt.Sprintf("%s_trades_%s_%s.parquet",
		strings.ToUpper(batch.Instrument),
		batch.Timestamp.Format("2006010215"),
		uuid.NewString(),
	)
}

func s3Key(batch tradeBatch, name string) string {
	key := filepath.Join(
		"trades",
		fmt.Sprintf("instrument=%s", strings.ToUpper(batch.Instrument)),
		fmt.Sprintf("date=%s", batch.Timestamp.Format("2006-01-02")),
		name,
	)
	return filepath.ToSlash(key)
}

func (r *Recorder) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.cfg.Recorder.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"compression":  "snappy",
			"app-version":  r.cfg.App.Version,
		},
	}

	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Minute)
	defer cancel()
	if _, err := r.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload trade parquet: %w", err)
	}
	return nil
}
