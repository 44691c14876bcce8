package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/patrickwarner/nest/internal/models"
)

const predictionColumns = `id, type, longitude, latitude, address, radius, probability, confidence,
    severity, factors, historical_data, timeframe_start, timeframe_end, status,
    related_reports, created_at, updated_at`

func scanPrediction(s rowScanner) (*models.Prediction, error) {
	var pr models.Prediction
	var factors, historical []byte
	if err := s.Scan(&pr.ID, &pr.Type, &pr.Location.Coordinates[0], &pr.Location.Coordinates[1],
		&pr.Location.Address, &pr.Radius, &pr.Probability, &pr.Confidence, &pr.Severity,
		&factors, &historical, &pr.PredictedTimeFrame.Start, &pr.PredictedTimeFrame.End,
		&pr.Status, pq.Array(&pr.RelatedReports), &pr.CreatedAt, &pr.UpdatedAt); err != nil {
		return nil, err
	}
	pr.Location.Type = "Point"
	if err := json.Unmarshal(factors, &pr.Factors); err != nil {
		return nil, fmt.Errorf("decode factors: %w", err)
	}
	if err := json.Unmarshal(historical, &pr.HistoricalData); err != nil {
		return nil, fmt.Errorf("decode historical data: %w", err)
	}
	return &pr, nil
}

// CreatePredictions inserts a batch of predictions atomically.
func (p *Postgres) CreatePredictions(ctx context.Context, ps []*models.Prediction) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin predictions tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, pr := range ps {
		factors, err := jsonArray(pr.Factors)
		if err != nil {
			return fmt.Errorf("encode factors: %w", err)
		}
		historical, err := json.Marshal(pr.HistoricalData)
		if err != nil {
			return fmt.Errorf("encode historical data: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO predictions (
                id, type, longitude, latitude, address, radius, probability, confidence,
                severity, factors, historical_data, timeframe_start, timeframe_end, status,
                related_reports, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			pr.ID, pr.Type, pr.Location.Longitude(), pr.Location.Latitude(), pr.Location.Address,
			pr.Radius, pr.Probability, pr.Confidence, pr.Severity, factors, string(historical),
			pr.PredictedTimeFrame.Start, pr.PredictedTimeFrame.End, pr.Status,
			pq.Array(pr.RelatedReports), pr.CreatedAt, pr.UpdatedAt); err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit predictions: %w", err)
	}
	return nil
}

// ListPredictions returns predictions sorted by probability, highest first.
func (p *Postgres) ListPredictions(ctx context.Context, f models.PredictionFilter, pg models.Page) ([]*models.Prediction, int, error) {
	pg = pg.Normalize()
	where := ` WHERE ($1 = '' OR status = $1) AND ($2 = '' OR type = $2) AND probability >= $3`
	args := []any{string(f.Status), string(f.Type), f.MinProbability}

	var total int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count predictions: %w", err)
	}

	rows, err := p.DB.QueryContext(ctx, `SELECT `+predictionColumns+` FROM predictions`+where+
		` ORDER BY probability DESC, id ASC LIMIT $4 OFFSET $5`, append(args, pg.Limit, pg.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query predictions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*models.Prediction
	for rows.Next() {
		pr, err := scanPrediction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}

// UpdatePredictionStatus sets a prediction's status and returns the updated row.
func (p *Postgres) UpdatePredictionStatus(ctx context.Context, id string, status models.PredictionStatus) (*models.Prediction, error) {
	row := p.DB.QueryRowContext(ctx, `UPDATE predictions SET status=$2, updated_at=NOW() WHERE id=$1 RETURNING `+predictionColumns, id, status)
	pr, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update prediction status: %w", err)
	}
	return pr, nil
}
