package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/patrickwarner/nest/internal/models"
	"github.com/patrickwarner/nest/internal/observability"
)

// Report lifecycle event types.
const (
	EventReportCreated   = "report_created"
	EventReportUpdated   = "report_updated"
	EventReportDeleted   = "report_deleted"
	EventReportUpvoted   = "report_upvoted"
	EventReportCommented = "report_commented"
	EventReportAssigned  = "report_assigned"
	EventReportResolved  = "report_resolved"
	EventAttachmentAdded = "attachment_added"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Recorder records report lifecycle events.
type Recorder interface {
	RecordReportEvent(ctx context.Context, ev ReportEvent) error
}

// ReportEvent is one row of the report_events table.
type ReportEvent struct {
	Timestamp time.Time
	Type      string
	ReportID  string
	UserID    string
	Category  models.Category
	Severity  models.Severity
	Status    models.Status
	Client    ClientContext
}

// EventFor fills an event from the report's current state.
func EventFor(eventType string, r *models.Report, userID string, client ClientContext) ReportEvent {
	return ReportEvent{
		Type:     eventType,
		ReportID: r.ID,
		UserID:   userID,
		Category: r.Category,
		Severity: r.Severity,
		Status:   r.Status,
		Client:   client,
	}
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ Recorder = (*Analytics)(nil)

const createReportEvents = `CREATE TABLE IF NOT EXISTS report_events (
    timestamp   DateTime64(3),
    event_type  LowCardinality(String),
    report_id   String,
    user_id     String,
    category    LowCardinality(String),
    severity    LowCardinality(String),
    status      LowCardinality(String),
    device_type Nullable(String),
    country     Nullable(String),
    region      Nullable(String),
    is_bot      UInt8
) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the report_events table exists.
func InitClickHouse(dsn string, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(10)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createReportEvents); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordReportEvent inserts ev. ErrUnavailable is returned when ClickHouse is
// not configured.
func (a *Analytics) RecordReportEvent(ctx context.Context, ev ReportEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	var bot uint8
	if ev.Client.IsBot {
		bot = 1
	}
	stmt := `INSERT INTO report_events (timestamp, event_type, report_id, user_id, category, severity, status, device_type, country, region, is_bot) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.Type, ev.ReportID, ev.UserID,
		string(ev.Category), string(ev.Severity), string(ev.Status),
		nullString(ev.Client.DeviceType), nullString(ev.Client.Country), nullString(ev.Client.Region), bot); err != nil {
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	if a.Metrics != nil {
		a.Metrics.IncrementEvent(ev.Type)
	}
	return nil
}

// Close closes the ClickHouse connection.
func (a *Analytics) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
