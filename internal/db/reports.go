package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/patrickwarner/nest/internal/models"
)

const reportColumns = `id, title, description, category, subcategory, severity, status,
    longitude, latitude, address, images, audio, comments, upvotes, reporter,
    assigned_to, ai_analysis, resolution, created_at, updated_at`

func scanReport(s rowScanner, extra ...any) (*models.Report, error) {
	var r models.Report
	var images, audio, comments []byte
	var ai, resolution []byte
	dest := []any{
		&r.ID, &r.Title, &r.Description, &r.Category, &r.Subcategory, &r.Severity, &r.Status,
		&r.Location.Coordinates[0], &r.Location.Coordinates[1], &r.Location.Address,
		&images, &audio, &comments, pq.Array(&r.Upvotes), &r.Reporter,
		&r.AssignedTo, &ai, &resolution, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Location.Type = "Point"
	if err := json.Unmarshal(images, &r.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(audio, &r.Audio); err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if err := json.Unmarshal(comments, &r.Comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	if len(ai) > 0 {
		r.AIAnalysis = &models.AIAnalysis{}
		if err := json.Unmarshal(ai, r.AIAnalysis); err != nil {
			return nil, fmt.Errorf("decode ai analysis: %w", err)
		}
	}
	if len(resolution) > 0 {
		r.Resolution = &models.Resolution{}
		if err := json.Unmarshal(resolution, r.Resolution); err != nil {
			return nil, fmt.Errorf("decode resolution: %w", err)
		}
	}
	return &r, nil
}

// nullJSON encodes v, mapping nil pointers to SQL NULL.
func nullJSON(v any, isNil bool) (any, error) {
	if isNil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonArray[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// CreateReport inserts a new report.
func (p *Postgres) CreateReport(ctx context.Context, r *models.Report) error {
	images, err := jsonArray(r.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	audio, err := jsonArray(r.Audio)
	if err != nil {
		return fmt.Errorf("encode audio: %w", err)
	}
	comments, err := jsonArray(r.Comments)
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	ai, err := nullJSON(r.AIAnalysis, r.AIAnalysis == nil)
	if err != nil {
		return fmt.Errorf("encode ai analysis: %w", err)
	}
	upvotes := r.Upvotes
	if upvotes == nil {
		upvotes = []string{}
	}
	_, err = p.DB.ExecContext(ctx, `INSERT INTO reports (
            id, title, description, category, subcategory, severity, status,
            longitude, latitude, address, images, audio, comments, upvotes,
            reporter, assigned_to, ai_analysis, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.Title, r.Description, r.Category, r.Subcategory, r.Severity, r.Status,
		r.Location.Longitude(), r.Location.Latitude(), r.Location.Address,
		images, audio, comments, pq.Array(upvotes),
		r.Reporter, r.AssignedTo, ai, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport loads a report by id.
func (p *Postgres) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// UpdateReport writes the mutable scalar fields guarded by the expected status.
func (p *Postgres) UpdateReport(ctx context.Context, r *models.Report, expectStatus models.Status) error {
	resolution, err := nullJSON(r.Resolution, r.Resolution == nil)
	if err != nil {
		return fmt.Errorf("encode resolution: %w", err)
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE reports
        SET title=$2, description=$3, severity=$4, status=$5, assigned_to=$6, resolution=$7, updated_at=$8
        WHERE id=$1 AND status=$9`,
		r.ID, r.Title, r.Description, r.Severity, r.Status, r.AssignedTo, resolution, r.UpdatedAt, expectStatus)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report rows: %w", err)
	}
	if n == 0 {
		return p.missingOrConflict(ctx, r.ID)
	}
	return nil
}

func (p *Postgres) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := p.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check report: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrConflict
}

// DeleteReport removes a report by id.
func (p *Postgres) DeleteReport(ctx context.Context, id string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM reports WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ToggleUpvote flips userID's membership in the upvote set in one statement.
// The row lock taken by UPDATE serializes concurrent toggles, so every caller
// observes a distinct resulting count.
func (p *Postgres) ToggleUpvote(ctx context.Context, id, userID string) (int, bool, error) {
	var count int
	var added bool
	err := p.DB.QueryRowContext(ctx, `UPDATE reports
        SET upvotes = CASE WHEN $2 = ANY(upvotes) THEN array_remove(upvotes, $2) ELSE array_append(upvotes, $2) END,
            updated_at = NOW()
        WHERE id=$1
        RETURNING cardinality(upvotes), $2 = ANY(upvotes)`, id, userID).Scan(&count, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, models.ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("toggle upvote: %w", err)
	}
	return count, added, nil
}

// appendJSON appends one element to a JSONB array column and returns the row.
func (p *Postgres) appendJSON(ctx context.Context, id, column string, item any) (*models.Report, error) {
	b, err := json.Marshal([]any{item})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", column, err)
	}
	row := p.DB.QueryRowContext(ctx, `UPDATE reports SET `+column+` = `+column+` || $2::jsonb, updated_at = NOW()
        WHERE id=$1 RETURNING `+reportColumns, id, string(b))
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", column, err)
	}
	return r, nil
}

func (p *Postgres) AppendComment(ctx context.Context, id string, c models.Comment) (*models.Report, error) {
	return p.appendJSON(ctx, id, "comments", c)
}

func (p *Postgres) AppendImage(ctx context.Context, id string, img models.Image) (*models.Report, error) {
	return p.appendJSON(ctx, id, "images", img)
}

func (p *Postgres) AppendAudio(ctx context.Context, id string, a models.Audio) (*models.Report, error) {
	return p.appendJSON(ctx, id, "audio", a)
}

// SetAIAnalysis replaces the report's AI annotation.
func (p *Postgres) SetAIAnalysis(ctx context.Context, id string, a *models.AIAnalysis) error {
	v, err := nullJSON(a, a == nil)
	if err != nil {
		return fmt.Errorf("encode ai analysis: %w", err)
	}
	res, err := p.DB.ExecContext(ctx, `UPDATE reports SET ai_analysis=$2, updated_at=NOW() WHERE id=$1`, id, v)
	if err != nil {
		return fmt.Errorf("set ai analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

var earthRadiusSQL = strconv.FormatFloat(models.EarthRadiusMeters, 'f', -1, 64)

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"severity":  "CASE severity WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'critical' THEN 4 ELSE 0 END",
	"upvotes":   "cardinality(upvotes)",
	"title":     "title",
}

// buildReportWhere renders the filter as a WHERE clause with positional args.
func buildReportWhere(f models.ReportFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Reporter != "" {
		add("reporter = $%d", f.Reporter)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, s, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(search @@ plainto_tsquery('english', $%d) OR title ILIKE $%d OR description ILIKE $%d)", n-1, n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildReportOrder renders the ORDER BY clause for a normalized page.
func buildReportOrder(p models.Page) string {
	field, desc := p.SortKey()
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[field], dir, dir)
}

// QueryReports returns one page of reports matching f and the total count.
func (p *Postgres) QueryReports(ctx context.Context, f models.ReportFilter, pg models.Page) ([]*models.Report, int, error) {
	pg = pg.Normalize()
	where, args := buildReportWhere(f)

	var total int
	if err := p.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	args = append(args, pg.Limit, pg.Offset())
	q := `SELECT ` + reportColumns + ` FROM reports` + where + buildReportOrder(pg) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := p.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}

// boundingBox returns the latitude/longitude deltas that enclose a circle of
// radius meters around lat. Used to prefilter on the (latitude, longitude) index.
func boundingBox(lat, radius float64) (dLat, dLng float64) {
	dLat = radius / (models.EarthRadiusMeters * math.Pi / 180)
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 1e-6 {
		return dLat, 180
	}
	dLng = math.Min(180, dLat/cos)
	return dLat, dLng
}

// NearbyReports returns reports within maxDistance meters, nearest first.
func (p *Postgres) NearbyReports(ctx context.Context, lng, lat, maxDistance float64, limit int) ([]models.NearbyReport, error) {
	dLat, dLng := boundingBox(lat, maxDistance)
	q := `SELECT ` + reportColumns + `, distance FROM (
            SELECT *, 2 * ` + earthRadiusSQL + ` * asin(least(1, sqrt(
                power(sin(radians(latitude - $2::float8) / 2), 2) +
                cos(radians($2::float8)) * cos(radians(latitude)) * power(sin(radians(longitude - $1::float8) / 2), 2)
            ))) AS distance
            FROM reports
            WHERE latitude BETWEEN $2::float8 - $5::float8 AND $2::float8 + $5::float8
              AND ($6::float8 >= 180 OR longitude BETWEEN $1::float8 - $6::float8 AND $1::float8 + $6::float8)
        ) nearby
        WHERE distance <= $3::float8
        ORDER BY distance ASC
        LIMIT $4`
	rows, err := p.DB.QueryContext(ctx, q, lng, lat, maxDistance, limit, dLat, dLng)
	if err != nil {
		return nil, fmt.Errorf("query nearby reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.NearbyReport
	for rows.Next() {
		var d float64
		r, err := scanReport(rows, &d)
		if err != nil {
			return nil, fmt.Errorf("scan nearby report: %w", err)
		}
		out = append(out, models.NearbyReport{Report: r, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
