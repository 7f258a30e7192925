package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed      int64
	errorsTrading   int64
	warnsFeed       int64
	warnsTrading    int64
	feedReads       int64
	tradeReads      int64
	bookReads       int64
	privateReads    int64
	reconnects      int64
	emitDrops       int64
	recorderRows    int64
	recorderUploads int64
	channels        sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "trading") {
		atomic.AddInt64(&warnsTrading, 1)
	} else if strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsFeed, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "trading") {
		atomic.AddInt64(&errorsTrading, 1)
	} else if strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsFeed, 1)
	}
}

// IncrementFeedRead counts one raw websocket frame of the given size.
func IncrementFeedRead(size int) {
	atomic.AddInt64(&feedReads, 1)
	recordChannel("feed_ws", size)
}

func IncrementTradeRead() {
	atomic.AddInt64(&tradeReads, 1)
}

func IncrementBookRead() {
	atomic.AddInt64(&bookReads, 1)
}

func IncrementPrivateRead() {
	atomic.AddInt64(&privateReads, 1)
}

func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

// IncrementEmitDrop counts one consumer event dropped on a full channel.
func IncrementEmitDrop() {
	atomic.AddInt64(&emitDrops, 1)
}

func IncrementRecorderRows(n int) {
	atomic.AddInt64(&recorderRows, int64(n))
}

func IncrementRecorderUpload(size int64) {
	atomic.AddInt64(&recorderUploads, 1)
	recordChannel("recorder_s3", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_feed":      atomic.LoadInt64(&errorsFeed),
		"errors_trading":   atomic.LoadInt64(&errorsTrading),
		"warns_feed":       atomic.LoadInt64(&warnsFeed),
		"warns_trading":    atomic.LoadInt64(&warnsTrading),
		"feed_reads":       atomic.LoadInt64(&feedReads),
		"trade_reads":      atomic.LoadInt64(&tradeReads),
		"book_reads":       atomic.LoadInt64(&bookReads),
		"private_reads":    atomic.LoadInt64(&privateReads),
		"reconnects":       atomic.LoadInt64(&reconnects),
		"emit_drops":       atomic.LoadInt64(&emitDrops),
		"recorder_rows":    atomic.LoadInt64(&recorderRows),
		"recorder_uploads": atomic.LoadInt64(&recorderUploads),
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memStats.Used) / 1024 / 1024,
		"disk_mb":          int64(diskStats.Used) / 1024 / 1024,
		"channels":         channelData,
		"net_bytes_sent":   int64(bytesSent),
		"net_bytes_recv":   int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-ErrorsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_feed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-ErrorsTrading"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_trading"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-WarnsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_feed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-WarnsTrading"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_trading"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-FeedReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["feed_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-TradeReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["trade_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-BookReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["book_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-PrivateReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["private_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-Reconnects"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["reconnects"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-EmitDrops"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["emit_drops"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-RecorderRows"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["recorder_rows"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-RecorderUploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["recorder_uploads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("KrakenFeed-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("KrakenFeed-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("KrakenFeed-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
