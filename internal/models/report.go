package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category groups reports by the kind of neighborhood issue.
type Category string

const (
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategoryNoise       Category = "noise"
	CategoryPothole     Category = "pothole"
	CategoryCleanliness Category = "cleanliness"
	CategoryPlayground  Category = "playground"
	CategoryOther       Category = "other"
)

// subcategories lists the subcategories accepted per category. "other" is
// accepted everywhere.
var subcategories = map[Category][]string{
	CategoryWater:       {"leak", "pressure", "quality", "outage"},
	CategoryElectricity: {"power_outage", "fluctuation", "streetlight", "wire"},
	CategoryNoise:       {"music", "party", "construction", "vehicle", "alarm", "animal"},
	CategoryPothole:     {"road", "sidewalk"},
	CategoryCleanliness: {"garbage", "graffiti", "debris"},
	CategoryPlayground:  {"swing", "slide", "equipment", "fence"},
	CategoryOther:       {},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := subcategories[c]
	return ok
}

// AllowsSubcategory reports whether sub may be filed under c.
func (c Category) AllowsSubcategory(sub string) bool {
	if sub == "" || sub == "other" {
		return true
	}
	for _, s := range subcategories[c] {
		if s == sub {
			return true
		}
	}
	return false
}

// Severity of a report or prediction.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities from low (1) to critical (4) for sorting.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Location is a GeoJSON-style point plus a free-text address.
// Coordinates are [longitude, latitude].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address"`
}

func (l Location) Longitude() float64 { return l.Coordinates[0] }
func (l Location) Latitude() float64  { return l.Coordinates[1] }

// Image is an uploaded photo attached to a report.
type Image struct {
	URL        string    `json:"url"`
	Caption    string    `json:"caption,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Audio is an uploaded recording attached to a report.
type Audio struct {
	URL           string    `json:"url"`
	Duration      float64   `json:"duration,omitempty"`
	Transcription string    `json:"transcription,omitempty"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// Comment is one entry of a report's discussion thread.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// AIAnalysis is the interpreted output of the image-analysis collaborator.
type AIAnalysis struct {
	Confidence float64   `json:"confidence"`
	Tags       []string  `json:"tags"`
	IsValid    bool      `json:"isValid"`
	Severity   Severity  `json:"severity,omitempty"`
	AnalyzedAt time.Time `json:"analyzedAt"`
}

// Resolution records who closed a report and when.
type Resolution struct {
	ResolvedBy     string    `json:"resolvedBy"`
	ResolutionDate time.Time `json:"resolutionDate"`
	Notes          string    `json:"notes,omitempty"`
}

// Report is a resident-filed neighborhood issue.
type Report struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Subcategory string      `json:"subcategory,omitempty"`
	Severity    Severity    `json:"severity"`
	Status      Status      `json:"status"`
	Location    Location    `json:"location"`
	Images      []Image     `json:"images"`
	Audio       []Audio     `json:"audio"`
	Comments    []Comment   `json:"comments"`
	Upvotes     []string    `json:"upvotes"`
	Reporter    string      `json:"reporter"`
	AssignedTo  string      `json:"assignedTo,omitempty"`
	AIAnalysis  *AIAnalysis `json:"aiAnalysis,omitempty"`
	Resolution  *Resolution `json:"resolutionDetails,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// HasUpvote reports whether userID is in the upvote set.
func (r *Report) HasUpvote(userID string) bool {
	for _, u := range r.Upvotes {
		if u == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out reports without sharing
// slices with their internal state.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Images = append([]Image(nil), r.Images...)
	c.Audio = append([]Audio(nil), r.Audio...)
	c.Comments = append([]Comment(nil), r.Comments...)
	c.Upvotes = append([]string(nil), r.Upvotes...)
	if r.AIAnalysis != nil {
		a := *r.AIAnalysis
		a.Tags = append([]string(nil), r.AIAnalysis.Tags...)
		c.AIAnalysis = &a
	}
	if r.Resolution != nil {
		res := *r.Resolution
		c.Resolution = &res
	}
	return &c
}

// MaxTitleLength bounds Report.Title.
const MaxTitleLength = 100

// ReportInput is the caller-supplied part of a new report.
type ReportInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Subcategory string   `json:"subcategory"`
	Severity    Severity `json:"severity"`
	Location    *struct {
		Coordinates []float64 `json:"coordinates"`
		Address     string    `json:"address"`
	} `json:"location"`
}

// Validate checks required fields and enum membership. All problems are
// reported together.
func (in ReportInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	} else if len([]rune(in.Title)) > MaxTitleLength {
		problems = append(problems, fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
	if strings.TrimSpace(in.Description) == "" {
		problems = append(problems, "description is required")
	}
	switch {
	case in.Category == "":
		problems = append(problems, "category is required")
	case !in.Category.Valid():
		problems = append(problems, fmt.Sprintf("unknown category %q", in.Category))
	case !in.Category.AllowsSubcategory(in.Subcategory):
		problems = append(problems, fmt.Sprintf("subcategory %q is not valid for %s", in.Subcategory, in.Category))
	}
	switch {
	case in.Severity == "":
		problems = append(problems, "severity is required")
	case !in.Severity.Valid():
		problems = append(problems, fmt.Sprintf("unknown severity %q", in.Severity))
	}
	if in.Location == nil {
		problems = append(problems, "location is required")
	} else {
		if strings.TrimSpace(in.Location.Address) == "" {
			problems = append(problems, "location.address is required")
		}
		if len(in.Location.Coordinates) != 2 {
			problems = append(problems, "location.coordinates must be [longitude, latitude]")
		} else if err := ValidateCoordinates(in.Location.Coordinates[0], in.Location.Coordinates[1]); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ValidateCoordinates checks longitude/latitude ranges.
func ValidateCoordinates(lng, lat float64) error {
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %v out of range", lng)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range", lat)
	}
	return nil
}

// ReportPatch carries the optional fields of an update. Nil means absent.
type ReportPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Severity    *Severity `json:"severity"`
	Status      *Status   `json:"status"`
	AssignedTo  *string   `json:"assignedTo"`
}

// Fields lists the names of the fields present in the patch.
func (p ReportPatch) Fields() []string {
	var f []string
	if p.Title != nil {
		f = append(f, "title")
	}
	if p.Description != nil {
		f = append(f, "description")
	}
	if p.Severity != nil {
		f = append(f, "severity")
	}
	if p.Status != nil {
		f = append(f, "status")
	}
	if p.AssignedTo != nil {
		f = append(f, "assignedTo")
	}
	return f
}

// ReportFilter narrows a report query.
type ReportFilter struct {
	Category Category
	Status   Status
	Severity Severity
	Reporter string
	Search   string
	Since    time.Time
}

// Page describes a requested slice of results.
type Page struct {
	Page  int
	Limit int
	// Sort is a field name with an optional leading '-' for descending.
	Sort string
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "-createdAt"
)

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Sort == "" {
		p.Sort = DefaultSort
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// SortKey splits Sort into a field and direction. Unknown fields fall back
// to createdAt.
func (p Page) SortKey() (field string, desc bool) {
	s := p.Sort
	if strings.HasPrefix(s, "-") {
		desc = true
		s = s[1:]
	}
	switch s {
	case "createdAt", "updatedAt", "severity", "upvotes", "title":
		return s, desc
	}
	return "createdAt", true
}

// Pagination is the page metadata returned alongside results.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes page metadata for total results.
func NewPagination(total int, p Page) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{Total: total, Page: p.Page, Limit: p.Limit, Pages: pages}
}

// NearbyReport is a report annotated with its distance from a query point.
type NearbyReport struct {
	*Report
	Distance float64 `json:"distance"`
}
