package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shorelinesci/flood-drift-etl/internal/domain"
)

// Store implements the pipeline's persistence contracts over a pgx pool.
// Readings and surveys are read-only reference data; corrected rows and
// flood statuses are written back with last-write-wins conflict handling.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Readings returns raw sensor measurements with timestamps in [start, end].
func (s *Store) Readings(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, `
SELECT place, sensor_id, date, voltage, sensor_water_depth, lat, lng, alert_threshold
FROM sensor_water_depth
WHERE date >= $1 AND date <= $2
ORDER BY place, sensor_id, date`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.Place, &r.SensorID, &r.Time, &r.Voltage, &r.WaterDepth, &r.Lat, &r.Lng, &r.AlertThreshold); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Surveys returns all survey records, ordered per sensor by survey date.
func (s *Store) Surveys(ctx context.Context) ([]domain.SurveyRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT place, sensor_id, date_surveyed, sensor_elevation, road_elevation, notes
FROM sensor_surveys
ORDER BY place, sensor_id, date_surveyed`)
	if err != nil {
		return nil, fmt.Errorf("query surveys: %w", err)
	}
	defer rows.Close()

	var out []domain.SurveyRecord
	for rows.Next() {
		var rec domain.SurveyRecord
		var notes *string
		if err := rows.Scan(&rec.Place, &rec.SensorID, &rec.SurveyedAt, &rec.SensorElevation, &rec.RoadElevation, &notes); err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		if notes != nil {
			rec.Notes = *notes
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestFloodStatus returns the most recent persisted status per
// (place, sensor).
func (s *Store) LatestFloodStatus(ctx context.Context) ([]domain.FloodStatus, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (place, sensor_id)
       place, sensor_id, latest_measurement, evaluated_at, is_flooding, alert_sent
FROM flood_status
ORDER BY place, sensor_id, evaluated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query flood status: %w", err)
	}
	defer rows.Close()

	var out []domain.FloodStatus
	for rows.Next() {
		var st domain.FloodStatus
		if err := rows.Scan(&st.Place, &st.SensorID, &st.LatestMeasurement, &st.EvaluatedAt, &st.IsFlooding, &st.AlertSent); err != nil {
			return nil, fmt.Errorf("scan flood status: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertCorrected writes drift-corrected rows to the display table, keyed by
// (place, sensor_id, date) with overwrite-on-conflict.
func (s *Store) UpsertCorrected(ctx context.Context, rows []domain.CorrectedReading) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO data_for_display
(place, sensor_id, date, voltage, sensor_water_depth, qa_qc_flag, date_surveyed,
 sensor_elevation, road_elevation, lat, lng, alert_threshold,
 smoothed_min_water_depth, sensor_water_level, road_water_level,
 sensor_water_level_adj, road_water_level_adj)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (place, sensor_id, date) DO UPDATE
SET smoothed_min_water_depth = EXCLUDED.smoothed_min_water_depth,
    sensor_water_level = EXCLUDED.sensor_water_level,
    road_water_level = EXCLUDED.road_water_level,
    sensor_water_level_adj = EXCLUDED.sensor_water_level_adj,
    road_water_level_adj = EXCLUDED.road_water_level_adj,
    qa_qc_flag = EXCLUDED.qa_qc_flag`

	for _, r := range rows {
		batch.Queue(query,
			r.Place, r.SensorID, r.Time, r.Voltage, r.WaterDepth, r.QAFlag, r.SurveyEpoch,
			r.Elevation.SensorElevation, r.Elevation.RoadElevation, r.Lat, r.Lng, r.AlertThreshold,
			r.SmoothedMinWaterDepth, r.SensorWaterLevel, r.RoadWaterLevel,
			r.SensorWaterLevelAdj, r.RoadWaterLevelAdj)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert corrected row: %w", err)
		}
	}
	return nil
}

// AppendFloodStatus appends one status row per (place, sensor) for this run.
func (s *Store) AppendFloodStatus(ctx context.Context, rows []domain.FloodStatus) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO flood_status
(place, sensor_id, latest_measurement, evaluated_at, is_flooding, alert_sent)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (place, sensor_id, evaluated_at) DO UPDATE
SET is_flooding = EXCLUDED.is_flooding,
    alert_sent = EXCLUDED.alert_sent`

	for _, st := range rows {
		batch.Queue(query, st.Place, st.SensorID, st.LatestMeasurement, st.EvaluatedAt, st.IsFlooding, st.AlertSent)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("append flood status: %w", err)
		}
	}
	return nil
}
