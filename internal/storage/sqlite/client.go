package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/storage/models"
	"github.com/eruption-duration/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plot_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		kind TEXT NOT NULL,
		volcano TEXT NOT NULL,
		inputs TEXT NOT NULL,
		features TEXT,
		model_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT,
		error TEXT,
		points INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plot_history_created ON plot_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_plot_history_kind ON plot_history(kind);
	CREATE INDEX IF NOT EXISTS idx_plot_history_user ON plot_history(user_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertPlotRecord(ctx context.Context, rec *models.PlotRecord) error {
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	feats, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO plot_history (id, user_id, kind, volcano, inputs, features, model_id, status,
			error_kind, error, points, cached, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = c.db.ExecContext(ctx,
		query,
		rec.ID,
		rec.UserID,
		rec.Kind,
		rec.Volcano,
		string(inputs),
		string(feats),
		rec.ModelID,
		rec.Status,
		rec.ErrorKind,
		rec.Error,
		rec.Points,
		rec.Cached,
		rec.LatencyMS,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert plot record: %w", err)
	}

	return nil
}

// ListPlotRecords returns the newest records first. An empty userID lists
// every user.
func (c *Client) ListPlotRecords(ctx context.Context, userID string, limit int) ([]models.PlotRecord, error) {
	query := `
		SELECT id, user_id, kind, volcano, inputs, features, model_id, status,
			error_kind, error, points, cached, latency_ms, created_at
		FROM plot_history
		WHERE (? = '' OR user_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plot history: %w", err)
	}
	defer rows.Close()

	records := make([]models.PlotRecord, 0)
	for rows.Next() {
		var (
			rec       models.PlotRecord
			userIDCol sql.NullString
			inputs    string
			feats     sql.NullString
			errorKind sql.NullString
			errorText sql.NullString
			createdAt int64
		)
		err := rows.Scan(
			&rec.ID,
			&userIDCol,
			&rec.Kind,
			&rec.Volcano,
			&inputs,
			&feats,
			&rec.ModelID,
			&rec.Status,
			&errorKind,
			&errorText,
			&rec.Points,
			&rec.Cached,
			&rec.LatencyMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plot record: %w", err)
		}

		rec.UserID = userIDCol.String
		rec.ErrorKind = errorKind.String
		rec.Error = errorText.String
		rec.CreatedAt = time.UnixMilli(createdAt)

		if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
		}
		if feats.Valid && feats.String != "" && feats.String != "null" {
			if err := json.Unmarshal([]byte(feats.String), &rec.Features); err != nil {
				return nil, fmt.Errorf("failed to unmarshal features: %w", err)
			}
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plot history: %w", err)
	}
	return records, nil
}

func (c *Client) KindStats(ctx context.Context) ([]models.KindStats, error) {
	query := `
		SELECT kind,
			COUNT(*),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			AVG(latency_ms)
		FROM plot_history
		GROUP BY kind
		ORDER BY kind
	`

	rows, err := c.db.QueryContext(ctx, query, models.StatusError)
	if err != nil {
		return nil, fmt.Errorf("failed to query plot stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.KindStats, 0)
	for rows.Next() {
		var s models.KindStats
		if err := rows.Scan(&s.Kind, &s.Total, &s.Failed, &s.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan plot stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM plot_history WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune plot history: %w", err)
	}
	return res.RowsAffected()
}
