// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

package sync

import (
	"context"
	"errors"
	"reflect"
	stdsync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/meadstats/meadstats/internal/config"
	"github.com/meadstats/meadstats/internal/database"
	"github.com/meadstats/meadstats/internal/metrics"
	"github.com/meadstats/meadstats/internal/models"
	"github.com/meadstats/meadstats/internal/untappd"
)

// pageResp is one scripted FetchPage answer.
type pageResp struct {
	page *untappd.Page
	err  error
}

type fakeSource struct {
	mu      stdsync.Mutex
	user    *models.User
	userErr error
	queue   []pageResp
	fetches int

	// block, when non-nil, stalls UserInfo until closed.
	block chan struct{}
}

func (f *fakeSource) FetchPage(_ context.Context, _ string, _ untappd.Cursor, _ int) (*untappd.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.queue) == 0 {
		return &untappd.Page{}, nil
	}
	resp := f.queue[0]
	f.queue = f.queue[1:]
	return resp.page, resp.err
}

func (f *fakeSource) UserInfo(_ context.Context, _ string) (*models.User, error) {
	if f.block != nil {
		<-f.block
	}
	if f.userErr != nil {
		return nil, f.userErr
	}
	u := *f.user
	return &u, nil
}

type fakeStore struct {
	mu       stdsync.Mutex
	users    map[int]*models.User
	states   map[int]*models.SyncState
	checkins map[int]map[int64]models.Checkin
}

func newFakeStore(users ...*models.User) *fakeStore {
	s := &fakeStore{
		users:    make(map[int]*models.User),
		states:   make(map[int]*models.SyncState),
		checkins: make(map[int]map[int64]models.Checkin),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) GetUserByID(_ context.Context, id int) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeStore) UpsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *fakeStore) SetCredentialInvalid(_ context.Context, userID int, invalid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.CredentialInvalid = invalid
	}
	return nil
}

func (s *fakeStore) GetSyncState(_ context.Context, userID int) (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[userID]; ok {
		copied := *st
		return &copied, nil
	}
	return &models.SyncState{UserID: userID, Status: models.SyncIdle}, nil
}

func (s *fakeStore) SaveSyncState(_ context.Context, state *models.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.states[state.UserID] = &copied
	return nil
}

func (s *fakeStore) UpsertCheckins(_ context.Context, userID int, checkins []models.Checkin) ([]models.Checkin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.checkins[userID]
	if byID == nil {
		byID = make(map[int64]models.Checkin)
		s.checkins[userID] = byID
	}
	var inserted []models.Checkin
	for _, c := range checkins {
		c.UserID = userID
		if _, ok := byID[c.ID]; !ok {
			inserted = append(inserted, c)
		}
		byID[c.ID] = c
	}
	return inserted, nil
}

func (s *fakeStore) HighWaterMark(_ context.Context, userID int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hwm time.Time
	for _, c := range s.checkins[userID] {
		if c.CheckedInAt.After(hwm) {
			hwm = c.CheckedInAt
		}
	}
	return hwm, nil
}

func (s *fakeStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users, nil
}

type fakeAggregator struct {
	mu      stdsync.Mutex
	batches [][]models.Checkin
}

func (a *fakeAggregator) ApplyBatch(_ context.Context, _ int, batch []models.Checkin) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, batch)
	return nil
}

type plainDecryptor struct{}

func (plainDecryptor) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

func syncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Interval:      time.Hour,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func testUser() *models.User {
	return &models.User{ID: 7, UserName: "boren", AccessToken: "tok"}
}

func at(d int) time.Time {
	return time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
}

func ci(id int64, when time.Time) models.Checkin {
	return models.Checkin{ID: id, BeerID: int(id), BeerName: "Beer", CheckedInAt: when}
}

func page(hasMore bool, next int, checkins ...models.Checkin) pageResp {
	return pageResp{page: &untappd.Page{
		Checkins:   checkins,
		HasMore:    hasMore,
		NextCursor: untappd.Cursor{Offset: next},
	}}
}

// testCoordinator wires a coordinator with a recorded no-op sleep.
func testCoordinator(source *fakeSource, store *fakeStore, agg *fakeAggregator) (*Coordinator, *[]time.Duration) {
	c := New(source, store, agg, plainDecryptor{}, syncConfig(), 50)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestFirstSyncWalksAllPages(t *testing.T) {
	source := &fakeSource{
		user: testUser(),
		queue: []pageResp{
			page(true, 2, ci(103, at(3)), ci(102, at(2))),
			page(false, 3, ci(101, at(1))),
		},
	}
	store := newFakeStore(testUser())
	agg := &fakeAggregator{}
	c, _ := testCoordinator(source, store, agg)

	result, err := c.SyncUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if result.Inserted != 3 || result.Pages != 2 {
		t.Errorf("unexpected result %+v", result)
	}
	if !result.Cursor.Equal(at(3)) {
		t.Errorf("cursor must advance to the newest checkin, got %v", result.Cursor)
	}

	state, _ := store.GetSyncState(context.Background(), 7)
	if state.Status != models.SyncIdle {
		t.Errorf("expected idle state after success, got %s", state.Status)
	}
	if !state.Cursor.Equal(at(3)) {
		t.Errorf("persisted cursor mismatch: %v", state.Cursor)
	}
	if len(agg.batches) != 2 {
		t.Errorf("expected one aggregation batch per page, got %d", len(agg.batches))
	}
}

func TestSyncExclusivePerUser(t *testing.T) {
	release := make(chan struct{})
	source := &fakeSource{user: testUser(), block: release}
	store := newFakeStore(testUser())
	c, _ := testCoordinator(source, store, &fakeAggregator{})

	done := make(chan error, 1)
	go func() {
		_, err := c.SyncUser(context.Background(), 7)
		done <- err
	}()

	// Wait until the first run holds the lock.
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		held := c.running[7]
		c.mu.Unlock()
		if held {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sync never acquired the lock")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	rejectedBefore := testutil.ToFloat64(metrics.SyncRuns.WithLabelValues("rejected"))
	if _, err := c.SyncUser(context.Background(), 7); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
	rejected := testutil.ToFloat64(metrics.SyncRuns.WithLabelValues("rejected"))
	if rejected != rejectedBefore+1 {
		t.Errorf("rejected run not counted: got %v, want %v", rejected, rejectedBefore+1)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// Lock released: the user can sync again.
	source.queue = nil
	if _, err := c.SyncUser(context.Background(), 7); err != nil {
		t.Errorf("sync after release failed: %v", err)
	}
}

func TestDedupBoundaryStopsPaging(t *testing.T) {
	store := newFakeStore(testUser())
	// Checkins 101 and 102 are already stored from a previous run.
	_, _ = store.UpsertCheckins(context.Background(), 7, []models.Checkin{ci(101, at(1)), ci(102, at(2))})
	_ = store.SaveSyncState(context.Background(), &models.SyncState{
		UserID: 7, Status: models.SyncIdle, Cursor: at(2),
	})

	source := &fakeSource{
		user: testUser(),
		queue: []pageResp{
			page(true, 2, ci(104, at(4)), ci(103, at(3))),
			// Entirely known page; more pages exist below it.
			page(true, 4, ci(102, at(2)), ci(101, at(1))),
			page(false, 6, ci(100, at(1))),
		},
	}
	c, _ := testCoordinator(source, store, &fakeAggregator{})

	result, err := c.SyncUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("expected 2 new checkins, got %d", result.Inserted)
	}
	if source.fetches != 2 {
		t.Errorf("paging must stop at the known page, got %d fetches", source.fetches)
	}
}

func TestFullScanWalksPastKnownCheckins(t *testing.T) {
	store := newFakeStore(testUser())
	_, _ = store.UpsertCheckins(context.Background(), 7, []models.Checkin{ci(101, at(1))})
	_ = store.SaveSyncState(context.Background(), &models.SyncState{
		UserID: 7, Status: models.SyncIdle, Cursor: at(1),
	})

	source := &fakeSource{
		user: testUser(),
		queue: []pageResp{
			page(true, 2, ci(101, at(1))), // known, but the scan continues
			page(false, 4, ci(100, at(1))),
		},
	}
	c, _ := testCoordinator(source, store, &fakeAggregator{})
	c.cfg.FullScan = true

	result, err := c.SyncUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if source.fetches != 2 || result.Inserted != 1 {
		t.Errorf("full scan must walk every page: fetches=%d inserted=%d", source.fetches, result.Inserted)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	boom := &untappd.TransientError{Status: 502, Err: errors.New("bad gateway")}
	source := &fakeSource{
		user:  testUser(),
		queue: []pageResp{{err: boom}, {err: boom}, {err: boom}, {err: boom}},
	}
	store := newFakeStore(testUser())
	c, slept := testCoordinator(source, store, &fakeAggregator{})

	_, err := c.SyncUser(context.Background(), 7)
	if err == nil {
		t.Fatal("expected sync to fail after exhausting retries")
	}
	// RetryAttempts=2: initial call plus two retries.
	if source.fetches != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", source.fetches)
	}
	// Exponential backoff from the base delay.
	if len(*slept) != 2 || (*slept)[0] != time.Millisecond || (*slept)[1] != 2*time.Millisecond {
		t.Errorf("unexpected backoff schedule %v", *slept)
	}

	state, _ := store.GetSyncState(context.Background(), 7)
	if state.Status != models.SyncFailed {
		t.Errorf("expected failed state, got %s", state.Status)
	}
	if state.LastError == "" {
		t.Error("failed state must record the error")
	}
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	source := &fakeSource{
		user: testUser(),
		queue: []pageResp{
			{err: &untappd.RateLimitedError{RetryAfter: 7 * time.Second}},
			page(false, 1, ci(101, at(1))),
		},
	}
	store := newFakeStore(testUser())
	c, slept := testCoordinator(source, store, &fakeAggregator{})

	result, err := c.SyncUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if result.Inserted != 1 {
		t.Errorf("expected recovery after rate limit, got %+v", result)
	}
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Errorf("expected a single 7s Retry-After wait, got %v", *slept)
	}
}

func TestAuthFailureFlagsCredentials(t *testing.T) {
	source := &fakeSource{userErr: &untappd.AuthError{Status: 401}}
	store := newFakeStore(testUser())
	c, slept := testCoordinator(source, store, &fakeAggregator{})

	_, err := c.SyncUser(context.Background(), 7)
	if !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
	if len(*slept) != 0 {
		t.Error("auth rejections must not be retried")
	}

	user, _ := store.GetUserByID(context.Background(), 7)
	if !user.CredentialInvalid {
		t.Error("user must be flagged credential-invalid")
	}
	state, _ := store.GetSyncState(context.Background(), 7)
	if state.Status != models.SyncFailed {
		t.Errorf("expected failed state, got %s", state.Status)
	}
}

func TestFailureKeepsCursorAndStoredPages(t *testing.T) {
	store := newFakeStore(testUser())
	_ = store.SaveSyncState(context.Background(), &models.SyncState{
		UserID: 7, Status: models.SyncIdle, Cursor: at(1),
	})

	boom := &untappd.TransientError{Status: 500, Err: errors.New("boom")}
	source := &fakeSource{
		user: testUser(),
		queue: []pageResp{
			page(true, 2, ci(103, at(3))),
			{err: boom}, {err: boom}, {err: boom},
		},
	}
	c, _ := testCoordinator(source, store, &fakeAggregator{})

	if _, err := c.SyncUser(context.Background(), 7); err == nil {
		t.Fatal("expected sync failure")
	}

	// The first page was durably stored before the failure.
	if _, ok := store.checkins[7][103]; !ok {
		t.Error("page stored before the failure must survive")
	}
	// The cursor must not advance on a failed run.
	state, _ := store.GetSyncState(context.Background(), 7)
	if !state.Cursor.Equal(at(1)) {
		t.Errorf("cursor advanced on failure: %v", state.Cursor)
	}
}

func TestInterruptedSyncResumesToSameState(t *testing.T) {
	ctx := context.Background()
	feed := func() []pageResp {
		return []pageResp{
			page(true, 2, ci(103, at(3)), ci(102, at(2))),
			page(false, 3, ci(101, at(1))),
		}
	}

	// Reference: the same feed ingested without interruption.
	wantStore := newFakeStore(testUser())
	refCoord, _ := testCoordinator(&fakeSource{user: testUser(), queue: feed()}, wantStore, &fakeAggregator{})
	if _, err := refCoord.SyncUser(ctx, 7); err != nil {
		t.Fatalf("reference sync failed: %v", err)
	}

	// Interrupted: the first page commits, then the source dies until
	// the retry attempts run out.
	boom := &untappd.TransientError{Status: 500, Err: errors.New("boom")}
	interrupted := feed()[:1]
	interrupted = append(interrupted, pageResp{err: boom}, pageResp{err: boom}, pageResp{err: boom})
	store := newFakeStore(testUser())
	source := &fakeSource{user: testUser(), queue: interrupted}
	c, _ := testCoordinator(source, store, &fakeAggregator{})
	if _, err := c.SyncUser(ctx, 7); err == nil {
		t.Fatal("expected the interrupted run to fail")
	}

	// The next run replays the feed and converges on the reference
	// store with no gaps and no duplicates.
	source.mu.Lock()
	source.queue = feed()
	source.mu.Unlock()
	if _, err := c.SyncUser(ctx, 7); err != nil {
		t.Fatalf("resumed sync failed: %v", err)
	}

	if !reflect.DeepEqual(store.checkins[7], wantStore.checkins[7]) {
		t.Errorf("resumed store diverged:\ngot  %+v\nwant %+v", store.checkins[7], wantStore.checkins[7])
	}
	gotState, _ := store.GetSyncState(ctx, 7)
	wantState, _ := wantStore.GetSyncState(ctx, 7)
	if gotState.Status != wantState.Status || !gotState.Cursor.Equal(wantState.Cursor) {
		t.Errorf("resumed sync state diverged: got %+v want %+v", gotState, wantState)
	}
}

func TestSchedulerSkipsIneligibleUsers(t *testing.T) {
	healthy := &models.User{ID: 1, UserName: "ok", AccessToken: "tok"}
	failed := &models.User{ID: 2, UserName: "failed", AccessToken: "tok"}
	revoked := &models.User{ID: 3, UserName: "revoked", AccessToken: "tok", CredentialInvalid: true}

	store := newFakeStore(healthy, failed, revoked)
	_ = store.SaveSyncState(context.Background(), &models.SyncState{
		UserID: 2, Status: models.SyncFailed, LastError: "boom",
	})

	source := &fakeSource{
		user:  healthy,
		queue: []pageResp{page(false, 1, ci(101, at(1)))},
	}
	c, _ := testCoordinator(source, store, &fakeAggregator{})
	scheduler := NewScheduler(c, store, time.Hour)

	scheduler.sweep(context.Background())

	if len(store.checkins[1]) != 1 {
		t.Error("eligible user was not synced")
	}
	if len(store.checkins[2]) != 0 || len(store.checkins[3]) != 0 {
		t.Error("ineligible users must be skipped")
	}
}
