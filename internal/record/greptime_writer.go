package record

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"rlsim-bridge/internal/telemetry"
)

// greptimeClient is the part of the ingester client the writer uses.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter buffers samples and writes them to GreptimeDB in batches.
type GreptimeDBWriter struct {
	client       greptimeClient
	sampleTable  string
	episodeTable string
	batchSize    int
	timeout      time.Duration
	log          *slog.Logger

	mu      sync.Mutex
	pending []telemetry.Sample
}

// GreptimeOptions configures the GreptimeDB connection.
type GreptimeOptions struct {
	Host      string
	Port      int
	Database  string
	BatchSize int
	Logger    *slog.Logger
}

// NewGreptimeDBWriter connects the ingester client.
func NewGreptimeDBWriter(opts GreptimeOptions) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(opts.Host).WithPort(opts.Port).WithDatabase(opts.Database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	w := newGreptimeDBWriter(client, opts.BatchSize, opts.Logger)
	return w, nil
}

func newGreptimeDBWriter(client greptimeClient, batchSize int, log *slog.Logger) *GreptimeDBWriter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{
		client:       client,
		sampleTable:  telemetry.SampleTableName,
		episodeTable: "episodes",
		batchSize:    batchSize,
		timeout:      5 * time.Second,
		log:          log,
	}
}

// WriteSample buffers s and flushes when the batch is full.
func (w *GreptimeDBWriter) WriteSample(s telemetry.Sample) error {
	w.mu.Lock()
	w.pending = append(w.pending, s)
	full := len(w.pending) >= w.batchSize
	w.mu.Unlock()
	if full {
		return w.Flush()
	}
	return nil
}

// WriteSamples inserts multiple samples at once.
func (w *GreptimeDBWriter) WriteSamples(rows []telemetry.Sample) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.sampleTable)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"run_id", true, types.STRING},
		{"tick", false, types.INT64},
		{"force_x", false, types.FLOAT64},
		{"force_y", false, types.FLOAT64},
		{"force_n", false, types.FLOAT64},
		{"x", false, types.FLOAT64},
		{"y", false, types.FLOAT64},
		{"heading", false, types.FLOAT64},
	} {
		var err error
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(r.RunID, int64(r.Tick), r.Force.X, r.Force.Y, r.Force.N, r.Pose.X, r.Pose.Y, r.Pose.Heading, r.Timestamp); err != nil {
			return err
		}
	}
	if err := w.write(w.sampleTable, tbl); err != nil {
		return err
	}
	w.log.Debug("greptime samples written", "rows", len(rows))
	return nil
}

// WriteEpisode inserts an episode summary.
func (w *GreptimeDBWriter) WriteEpisode(e EpisodeRow) error {
	tbl, err := table.New(w.episodeTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("name", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return err
	}
	for _, f := range []string{"final_x", "final_y", "final_heading", "distance", "elapsed_seconds"} {
		if err := tbl.AddFieldColumn(f, types.FLOAT64); err != nil {
			return err
		}
	}
	if err := tbl.AddFieldColumn("steps", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(e.Name, e.RunID, e.FinalX, e.FinalY, e.FinalHeading, e.Distance, e.ElapsedSeconds, int64(e.Steps), e.Timestamp); err != nil {
		return err
	}
	return w.write(w.episodeTable, tbl)
}

// Flush writes buffered samples.
func (w *GreptimeDBWriter) Flush() error {
	w.mu.Lock()
	rows := w.pending
	w.pending = nil
	w.mu.Unlock()
	return w.WriteSamples(rows)
}

// Close flushes buffered samples.
func (w *GreptimeDBWriter) Close() error {
	return w.Flush()
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	return nil
}
