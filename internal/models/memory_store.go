package models

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore implements Store with maps guarded by a single mutex. It
// backs tests and local runs without Postgres.
type InMemoryStore struct {
	mu            sync.Mutex
	reports       map[string]*Report
	users         map[string]*User
	notifications map[string]*Notification
	predictions   map[string]*Prediction
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		reports:       make(map[string]*Report),
		users:         make(map[string]*User),
		notifications: make(map[string]*Notification),
		predictions:   make(map[string]*Prediction),
	}
}

func (s *InMemoryStore) CreateReport(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) GetReport(_ context.Context, id string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryStore) UpdateReport(_ context.Context, r *Report, expectStatus Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reports[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectStatus {
		return ErrConflict
	}
	next := cur.Clone()
	next.Title = r.Title
	next.Description = r.Description
	next.Severity = r.Severity
	next.Status = r.Status
	next.AssignedTo = r.AssignedTo
	next.Resolution = r.Clone().Resolution
	next.UpdatedAt = r.UpdatedAt
	s.reports[r.ID] = next
	return nil
}

func (s *InMemoryStore) DeleteReport(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

func (s *InMemoryStore) ToggleUpvote(_ context.Context, id, userID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	for i, u := range r.Upvotes {
		if u == userID {
			r.Upvotes = append(r.Upvotes[:i:i], r.Upvotes[i+1:]...)
			return len(r.Upvotes), false, nil
		}
	}
	r.Upvotes = append(r.Upvotes, userID)
	return len(r.Upvotes), true, nil
}

// mutate applies fn to the stored report under the lock and returns a copy.
func (s *InMemoryStore) mutate(id string, fn func(r *Report)) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	return r.Clone(), nil
}

func (s *InMemoryStore) AppendComment(_ context.Context, id string, c Comment) (*Report, error) {
	return s.mutate(id, func(r *Report) { r.Comments = append(r.Comments, c) })
}

func (s *InMemoryStore) AppendImage(_ context.Context, id string, img Image) (*Report, error) {
	return s.mutate(id, func(r *Report) { r.Images = append(r.Images, img) })
}

func (s *InMemoryStore) AppendAudio(_ context.Context, id string, a Audio) (*Report, error) {
	return s.mutate(id, func(r *Report) { r.Audio = append(r.Audio, a) })
}

func (s *InMemoryStore) SetAIAnalysis(_ context.Context, id string, a *AIAnalysis) error {
	_, err := s.mutate(id, func(r *Report) {
		if a == nil {
			r.AIAnalysis = nil
			return
		}
		cp := *a
		cp.Tags = append([]string(nil), a.Tags...)
		r.AIAnalysis = &cp
	})
	return err
}

func matchesReport(r *Report, f ReportFilter) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Severity != "" && r.Severity != f.Severity {
		return false
	}
	if f.Reporter != "" && r.Reporter != f.Reporter {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Title), q) && !strings.Contains(strings.ToLower(r.Description), q) {
			return false
		}
	}
	return true
}

func lessReports(field string, desc bool) func(a, b *Report) bool {
	return func(a, b *Report) bool {
		var less, greater bool
		switch field {
		case "updatedAt":
			less, greater = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.After(b.UpdatedAt)
		case "severity":
			less, greater = a.Severity.Rank() < b.Severity.Rank(), a.Severity.Rank() > b.Severity.Rank()
		case "upvotes":
			less, greater = len(a.Upvotes) < len(b.Upvotes), len(a.Upvotes) > len(b.Upvotes)
		case "title":
			less, greater = a.Title < b.Title, a.Title > b.Title
		default:
			less, greater = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
		}
		if !less && !greater {
			return a.ID < b.ID
		}
		if desc {
			return greater
		}
		return less
	}
}

func (s *InMemoryStore) QueryReports(_ context.Context, f ReportFilter, p Page) ([]*Report, int, error) {
	p = p.Normalize()
	s.mu.Lock()
	var matched []*Report
	for _, r := range s.reports {
		if matchesReport(r, f) {
			matched = append(matched, r.Clone())
		}
	}
	s.mu.Unlock()

	field, desc := p.SortKey()
	less := lessReports(field, desc)
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	total := len(matched)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) NearbyReports(_ context.Context, lng, lat, maxDistance float64, limit int) ([]NearbyReport, error) {
	s.mu.Lock()
	var out []NearbyReport
	for _, r := range s.reports {
		d := DistanceMeters(lng, lat, r.Location.Longitude(), r.Location.Latitude())
		if d <= maxDistance {
			out = append(out, NearbyReport{Report: r.Clone(), Distance: d})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneUser(u *User) *User {
	c := *u
	return &c
}

func (s *InMemoryStore) UpsertUser(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.users[u.ID]; ok {
		if u.Name != "" {
			cur.Name = u.Name
		}
		if u.Email != "" {
			cur.Email = u.Email
		}
		if u.FCMToken != "" {
			cur.FCMToken = u.FCMToken
		}
		return cloneUser(cur), nil
	}
	n := cloneUser(u)
	if n.Role == "" {
		n.Role = RoleResident
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.users[n.ID] = n
	return cloneUser(n), nil
}

func (s *InMemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) GetUsers(_ context.Context, ids []string) (map[string]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (s *InMemoryStore) UsersByRole(_ context.Context, roles []Role, appEnabledOnly bool) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*User
	for _, u := range s.users {
		if appEnabledOnly && !u.Preferences.App {
			continue
		}
		for _, r := range roles {
			if u.Role == r {
				out = append(out, cloneUser(u))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) SetPresence(_ context.Context, id string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsOnline = online
	if !online {
		t := at
		u.LastSeen = &t
	}
	return nil
}

func cloneNotification(n *Notification) *Notification {
	c := *n
	c.SentVia = append([]string(nil), n.SentVia...)
	return &c
}

func (s *InMemoryStore) CreateNotifications(_ context.Context, ns []*Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range ns {
		s.notifications[n.ID] = cloneNotification(n)
	}
	return nil
}

func (s *InMemoryStore) ListNotifications(_ context.Context, f NotificationFilter, p Page) ([]*Notification, int, int, error) {
	p = p.Normalize()
	s.mu.Lock()
	var matched []*Notification
	unread := 0
	for _, n := range s.notifications {
		if n.Recipient != f.Recipient {
			continue
		}
		if !n.Read {
			unread++
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		matched = append(matched, cloneNotification(n))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, unread, nil
}

func (s *InMemoryStore) MarkRead(_ context.Context, id, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Recipient != recipient {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *InMemoryStore) MarkAllRead(_ context.Context, recipient string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.Recipient == recipient && !n.Read {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DeleteNotification(_ context.Context, id, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Recipient != recipient {
		return ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *InMemoryStore) DeleteExpiredNotifications(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifications {
		if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
			delete(s.notifications, id)
			count++
		}
	}
	return count, nil
}

func clonePrediction(p *Prediction) *Prediction {
	c := *p
	c.Factors = append([]Factor(nil), p.Factors...)
	c.RelatedReports = append([]string(nil), p.RelatedReports...)
	return &c
}

func (s *InMemoryStore) CreatePredictions(_ context.Context, ps []*Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.predictions[p.ID] = clonePrediction(p)
	}
	return nil
}

func (s *InMemoryStore) ListPredictions(_ context.Context, f PredictionFilter, pg Page) ([]*Prediction, int, error) {
	pg = pg.Normalize()
	s.mu.Lock()
	var matched []*Prediction
	for _, p := range s.predictions {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if p.Probability < f.MinProbability {
			continue
		}
		matched = append(matched, clonePrediction(p))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Probability == matched[j].Probability {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Probability > matched[j].Probability
	})
	total := len(matched)
	start := pg.Offset()
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) UpdatePredictionStatus(_ context.Context, id string, status PredictionStatus) (*Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return clonePrediction(p), nil
}

var _ Store = (*InMemoryStore)(nil)
