package analytics

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/nest/internal/geoip"
	"github.com/patrickwarner/nest/internal/models"
)

const (
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	botUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestDeviceTypeFromUA(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		device string
		bot    bool
	}{
		{"iphone", iphoneUA, "mobile", false},
		{"desktop chrome", desktopUA, "desktop", false},
		{"empty", "", "other", false},
		{"crawler", botUA, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, _, bot := DeviceTypeFromUA(tt.ua)
			if tt.device != "" {
				assert.Equal(t, tt.device, device)
			}
			assert.Equal(t, tt.bot, bot)
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))
}

func TestResolveClientContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geo.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"net":"203.0.113.0/24","country":"KE","region":"NBO"}]`), 0o600))
	g, err := geoip.Init(path)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", iphoneUA)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	cc := ResolveClientContext(g, r)
	assert.Equal(t, "mobile", cc.DeviceType)
	assert.Equal(t, "KE", cc.Country)
	assert.Equal(t, "NBO", cc.Region)

	noGeo := ResolveClientContext(nil, r)
	assert.Empty(t, noGeo.Country)
}

func TestRecordWithoutClickHouse(t *testing.T) {
	var a *Analytics
	err := a.RecordReportEvent(context.Background(), ReportEvent{Type: EventReportCreated})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, (&Analytics{}).RecordReportEvent(context.Background(), ReportEvent{}), ErrUnavailable)
}

func TestEventFor(t *testing.T) {
	r := &models.Report{ID: "r1", Category: models.CategoryWater, Severity: models.SeverityHigh, Status: models.StatusPending}
	ev := EventFor(EventReportUpvoted, r, "u1", ClientContext{Country: "US"})
	assert.Equal(t, ReportEvent{
		Type: EventReportUpvoted, ReportID: "r1", UserID: "u1",
		Category: models.CategoryWater, Severity: models.SeverityHigh, Status: models.StatusPending,
		Client: ClientContext{Country: "US"},
	}, ev)

	m := NewMockAnalytics()
	require.NoError(t, m.RecordReportEvent(context.Background(), ev))
	assert.Equal(t, []string{EventReportUpvoted}, m.Types())
}
