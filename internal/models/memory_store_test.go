package models

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReport(t *testing.T, s *InMemoryStore, id string, lng, lat float64, created time.Time) *Report {
	t.Helper()
	r := &Report{
		ID: id, Title: "Report " + id, Description: "desc", Category: CategoryWater,
		Severity: SeverityLow, Status: StatusPending, Reporter: "u1",
		Location:  Location{Type: "Point", Coordinates: [2]float64{lng, lat}, Address: "addr"},
		CreatedAt: created, UpdatedAt: created,
	}
	require.NoError(t, s.CreateReport(context.Background(), r))
	return r
}

func TestToggleUpvoteIsInvolution(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	seedReport(t, s, "r1", 0, 0, time.Now())

	count, added, err := s.ToggleUpvote(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, added)

	count, added, err = s.ToggleUpvote(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, added)

	r, err := s.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, r.Upvotes)

	_, _, err = s.ToggleUpvote(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleUpvoteConcurrentCountsAreUnique(t *testing.T) {
	s := NewInMemoryStore()
	seedReport(t, s, "r1", 0, 0, time.Now())

	var wg sync.WaitGroup
	counts := make(chan int, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := s.ToggleUpvote(context.Background(), "r1", fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			counts <- c
		}(i)
	}
	wg.Wait()
	close(counts)

	seen := map[int]bool{}
	for c := range counts {
		assert.False(t, seen[c], "count %d observed twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, 20)
}

func TestUpdateReportConflict(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	r := seedReport(t, s, "r1", 0, 0, time.Now())

	r.Status = StatusResolved
	require.NoError(t, s.UpdateReport(ctx, r, StatusPending))

	r.Status = StatusRejected
	assert.ErrorIs(t, s.UpdateReport(ctx, r, StatusPending), ErrConflict)
}

func TestQueryReportsFiltersAndPaginates(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		seedReport(t, s, fmt.Sprintf("r%02d", i), 0, 0, base.Add(time.Duration(i)*time.Hour))
	}
	other := seedReport(t, s, "pothole", 0, 0, base)
	other.Category = CategoryPothole
	require.NoError(t, s.CreateReport(ctx, other))

	items, total, err := s.QueryReports(ctx, ReportFilter{Category: CategoryWater}, Page{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	require.Len(t, items, 5)
	// newest first by default, so the second page starts at r04
	assert.Equal(t, "r04", items[0].ID)

	items, total, err = s.QueryReports(ctx, ReportFilter{Search: "REPORT R1"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 5, total) // r10..r14
	assert.Len(t, items, 5)
}

func TestNearbyReportsWithinRadiusNearestFirst(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	seedReport(t, s, "far", -122.0, 37.8, now)
	seedReport(t, s, "near", -122.4005, 37.8, now)
	seedReport(t, s, "nearer", -122.4001, 37.8, now)

	out, err := s.NearbyReports(context.Background(), -122.4, 37.8, 5000, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "nearer", out[0].ID)
	assert.Equal(t, "near", out[1].ID)
	for _, r := range out {
		assert.LessOrEqual(t, r.Distance, 5000.0)
	}
}

func TestMarkReadIsolated(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.CreateNotifications(ctx, []*Notification{
		{ID: "n1", Recipient: "u1", CreatedAt: now},
		{ID: "n2", Recipient: "u1", CreatedAt: now.Add(time.Second)},
		{ID: "n3", Recipient: "u2", CreatedAt: now},
	}))

	require.NoError(t, s.MarkRead(ctx, "n1", "u1"))
	assert.ErrorIs(t, s.MarkRead(ctx, "n3", "u1"), ErrNotFound)

	items, total, unread, err := s.ListNotifications(ctx, NotificationFilter{Recipient: "u1"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, unread)
	assert.Equal(t, "n2", items[0].ID)
	assert.False(t, items[0].Read)
	assert.True(t, items[1].Read)
}

func TestDeleteExpiredNotifications(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	require.NoError(t, s.CreateNotifications(ctx, []*Notification{
		{ID: "old", Recipient: "u1", ExpiresAt: &past},
		{ID: "new", Recipient: "u1", ExpiresAt: &future},
		{ID: "forever", Recipient: "u1"},
	}))
	n, err := s.DeleteExpiredNotifications(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUsersByRole(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, u := range []*User{
		{ID: "a", Role: RoleAdmin, Preferences: NotificationPreferences{App: true}},
		{ID: "m", Role: RoleModerator, Preferences: NotificationPreferences{App: true}},
		{ID: "quiet", Role: RoleModerator},
		{ID: "r", Role: RoleResident, Preferences: NotificationPreferences{App: true}},
	} {
		_, err := s.UpsertUser(ctx, u)
		require.NoError(t, err)
	}

	staff, err := s.UsersByRole(ctx, []Role{RoleAdmin, RoleModerator}, true)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, "a", staff[0].ID)
	assert.Equal(t, "m", staff[1].ID)

	// upsert keeps role and preferences
	u, err := s.UpsertUser(ctx, &User{ID: "quiet", Name: "Q", Role: RoleResident})
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, u.Role)
	assert.Equal(t, "Q", u.Name)
}
