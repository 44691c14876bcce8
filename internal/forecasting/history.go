package forecasting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/patrickwarner/nest/internal/models"
)

// Hotspot is a set of reports of one category filed at (nearly) the same
// place.
type Hotspot struct {
	Category  models.Category
	Location  models.Location
	ReportIDs []string
}

// coordPrecision is the number of decimals coordinates are rounded to when
// grouping, about 11m at the equator.
const coordPrecision = 4

type hotspotKey struct {
	lng, lat float64
	category models.Category
}

func roundCoord(v float64) float64 {
	p := math.Pow(10, coordPrecision)
	return math.Round(v*p) / p
}

// loadHistory pages through every report created since the given time,
// oldest first.
func (e *Engine) loadHistory(ctx context.Context, since time.Time) ([]*models.Report, error) {
	var out []*models.Report
	page := models.Page{Page: 1, Limit: models.MaxLimit, Sort: "createdAt"}
	for {
		items, total, err := e.Store.QueryReports(ctx, models.ReportFilter{Since: since}, page)
		if err != nil {
			return nil, fmt.Errorf("query reports since %s: %w", since.Format(time.RFC3339), err)
		}
		out = append(out, items...)
		if len(items) == 0 || len(out) >= total {
			return out, nil
		}
		page.Page++
	}
}

// groupHotspots buckets reports by rounded location and category. A
// hotspot takes the location of its first report. Output is ordered by
// report count descending, then category.
func groupHotspots(reports []*models.Report) []*Hotspot {
	groups := make(map[hotspotKey]*Hotspot)
	var order []hotspotKey
	for _, r := range reports {
		k := hotspotKey{
			lng:      roundCoord(r.Location.Longitude()),
			lat:      roundCoord(r.Location.Latitude()),
			category: r.Category,
		}
		h, ok := groups[k]
		if !ok {
			h = &Hotspot{Category: r.Category, Location: r.Location}
			h.Location.Type = "Point"
			groups[k] = h
			order = append(order, k)
		}
		h.ReportIDs = append(h.ReportIDs, r.ID)
	}

	out := make([]*Hotspot, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].ReportIDs) != len(out[j].ReportIDs) {
			return len(out[i].ReportIDs) > len(out[j].ReportIDs)
		}
		return out[i].Category < out[j].Category
	})
	return out
}
