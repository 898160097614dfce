package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresTimeout = 10 * time.Second

var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS traffic_data (
		id VARCHAR PRIMARY KEY,
		grid_x INTEGER NOT NULL,
		grid_y INTEGER NOT NULL,
		density REAL NOT NULL,
		time_hour INTEGER NOT NULL,
		reduction REAL NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS pollution_data (
		id VARCHAR PRIMARY KEY,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		aqi INTEGER NOT NULL,
		level TEXT NOT NULL,
		timestamp TIMESTAMPTZ DEFAULT now()
	)`,
}

// Execer is the part of pgxpool.Pool the archive needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PostgresOutput struct {
	db   Execer
	pool *pgxpool.Pool
}

func NewPostgresOutput(ctx context.Context, url string) (*PostgresOutput, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	p := &PostgresOutput{db: pool, pool: pool}
	if err := p.InitTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgresOutputWithExecer(db Execer) *PostgresOutput {
	return &PostgresOutput{db: db}
}

func (p *PostgresOutput) InitTables(ctx context.Context) error {
	for _, query := range tableCreationQueries {
		if _, err := p.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (p *PostgresOutput) WriteMessage(topic string, msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), postgresTimeout)
	defer cancel()

	switch topic {
	case models.TopicTrafficSamples:
		var r models.TrafficRecord
		if err := json.Unmarshal(msg, &r); err != nil {
			return err
		}
		_, err := p.db.Exec(ctx, `INSERT INTO traffic_data (id, grid_x, grid_y, density, time_hour, reduction, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			r.ID, r.GridX, r.GridY, r.Density, r.TimeHour, r.Reduction, time.Unix(r.Timestamp, 0).UTC())
		if err != nil {
			return fmt.Errorf("failed to insert into traffic_data: %w", err)
		}
	case models.TopicPollutionMarkers:
		var r models.PollutionRecord
		if err := json.Unmarshal(msg, &r); err != nil {
			return err
		}
		_, err := p.db.Exec(ctx, `INSERT INTO pollution_data (id, lat, lng, aqi, level, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Lat, r.Lng, r.AQI, r.Level, time.Unix(r.Timestamp, 0).UTC())
		if err != nil {
			return fmt.Errorf("failed to insert into pollution_data: %w", err)
		}
	default:
		return fmt.Errorf("no table for topic %s", topic)
	}
	return nil
}

func (p *PostgresOutput) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
