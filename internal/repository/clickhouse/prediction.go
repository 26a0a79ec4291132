package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"airquality/internal/domain/prediction"
	"airquality/internal/metrics"
	chbatch "airquality/pkg/clickhouse"
	"airquality/pkg/errors"
)

// Compile-time check
var _ prediction.Repository = (*PredictionRepository)(nil)

const predictionsDDL = `
	CREATE TABLE IF NOT EXISTS predictions (
		id             UUID,
		reading_id     String,
		mode           LowCardinality(String),
		schema_version LowCardinality(String),
		co_aqi         Float64,
		ozone_aqi      Float64,
		no2_aqi        Float64,
		pm25_aqi       Float64,
		country        String,
		category       LowCardinality(String),
		vector         Array(Float32),
		raw            Float32,
		display        String,
		cached         Bool,
		latency_us     UInt64,
		created_at     DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (mode, created_at)
`

// PredictionRepository logs served predictions to ClickHouse through a BatchWriter
type PredictionRepository struct {
	conn   driver.Conn
	writer *chbatch.BatchWriter[prediction.Record]
}

// PredictionRepositoryConfig tunes batching
type PredictionRepositoryConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// NewPredictionRepository creates the repository. Call Start before Store and Stop on shutdown.
func NewPredictionRepository(conn driver.Conn, cfg PredictionRepositoryConfig) *PredictionRepository {
	r := &PredictionRepository{conn: conn}
	r.writer = chbatch.NewBatchWriter(chbatch.BatchWriterConfig[prediction.Record]{
		FlushFunc:    r.insert,
		TableName:    "predictions",
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
	})
	return r
}

// Migrate creates the predictions table when missing
func (r *PredictionRepository) Migrate(ctx context.Context) error {
	if err := r.conn.Exec(ctx, predictionsDDL); err != nil {
		return errors.Wrap(err, "failed to create predictions table")
	}
	return nil
}

// Start launches the background flush loop
func (r *PredictionRepository) Start(ctx context.Context) {
	r.writer.Start(ctx)
}

// Stop flushes buffered rows
func (r *PredictionRepository) Stop(ctx context.Context) error {
	return r.writer.Stop(ctx)
}

// Stats exposes the batch writer state
func (r *PredictionRepository) Stats() chbatch.BatchWriterStats {
	return r.writer.GetStats()
}

// Store buffers one record. The write becomes visible after the next flush.
func (r *PredictionRepository) Store(ctx context.Context, rec *prediction.Record) error {
	return r.writer.Add(ctx, *rec)
}

func (r *PredictionRepository) insert(ctx context.Context, records []prediction.Record) error {
	start := time.Now()
	err := r.insertBatch(ctx, records)
	metrics.RecordDBQuery("clickhouse", "insert_predictions", time.Since(start), err)
	return err
}

func (r *PredictionRepository) insertBatch(ctx context.Context, records []prediction.Record) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO predictions (
			id, reading_id, mode, schema_version,
			co_aqi, ozone_aqi, no2_aqi, pm25_aqi, country, category,
			vector, raw, display, cached, latency_us, created_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, rec := range records {
		err := batch.Append(
			rec.ID, rec.ReadingID, rec.Mode.String(), rec.SchemaVersion,
			rec.Reading.CO, rec.Reading.Ozone, rec.Reading.NO2, rec.Reading.PM25,
			rec.Reading.Country, rec.Category,
			rec.Vector, rec.Raw, rec.Display, rec.Cached,
			uint64(rec.Latency.Microseconds()), rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append prediction")
		}
	}

	return batch.Send()
}

// GetRecent returns the newest records for mode, newest first
func (r *PredictionRepository) GetRecent(ctx context.Context, mode prediction.Mode, limit int) ([]prediction.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, reading_id, mode, schema_version,
			co_aqi, ozone_aqi, no2_aqi, pm25_aqi, country, category,
			vector, raw, display, cached, latency_us, created_at
		FROM predictions
		WHERE mode = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	start := time.Now()
	rows, err := r.conn.Query(ctx, query, mode.String(), limit)
	metrics.RecordDBQuery("clickhouse", "recent_predictions", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query predictions")
	}
	defer rows.Close()

	var records []prediction.Record
	for rows.Next() {
		var (
			rec       prediction.Record
			modeStr   string
			latencyUS uint64
		)
		err := rows.Scan(
			&rec.ID, &rec.ReadingID, &modeStr, &rec.SchemaVersion,
			&rec.Reading.CO, &rec.Reading.Ozone, &rec.Reading.NO2, &rec.Reading.PM25,
			&rec.Reading.Country, &rec.Category,
			&rec.Vector, &rec.Raw, &rec.Display, &rec.Cached, &latencyUS, &rec.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan prediction")
		}
		rec.Mode = prediction.Mode(modeStr)
		rec.Latency = time.Duration(latencyUS) * time.Microsecond
		records = append(records, rec)
	}

	return records, rows.Err()
}
