package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"socialflow/models"
	"socialflow/publishers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostStore struct {
	mu       sync.Mutex
	posts    map[string]*models.Post
	claims   map[string]int
	released int

	claimErr  error
	recordErr error
	onClaim   func(p *models.Post)
}

func newFakePostStore(posts ...*models.Post) *fakePostStore {
	s := &fakePostStore{
		posts:  make(map[string]*models.Post),
		claims: make(map[string]int),
	}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *fakePostStore) FindDuePosts(now time.Time, limit int) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := []*models.Post{}
	for _, p := range s.posts {
		if p.Status == models.StatusPending && p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *fakePostStore) ClaimPost(postID string) (bool, error) {
	return s.claim(postID, models.StatusPending)
}

func (s *fakePostStore) ClaimForPublishNow(postID string) (bool, error) {
	return s.claim(postID, models.StatusDraft, models.StatusPending, models.StatusFailed)
}

func (s *fakePostStore) claim(postID string, from ...models.PostStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return false, s.claimErr
	}

	p, ok := s.posts[postID]
	if !ok {
		return false, nil
	}
	if s.onClaim != nil {
		s.onClaim(p)
	}
	for _, status := range from {
		if p.Status == status {
			p.Status = models.StatusPublishing
			s.claims[postID]++
			return true, nil
		}
	}
	return false, nil
}

func (s *fakePostStore) RecordOutcome(postID string, status models.PostStatus,
	platformPostIDs map[models.Platform]string, errorMessages map[models.Platform]string,
	publishedAt *time.Time) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordErr != nil {
		return s.recordErr
	}

	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s not found", postID)
	}
	p.Status = status
	p.PlatformPostIDs = platformPostIDs
	p.ErrorMessages = errorMessages
	p.PublishedAt = publishedAt
	return nil
}

func (s *fakePostStore) GetPost(postID string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, errors.New("not found")
	}
	// Each read is a fresh row, as a real store would return.
	copied := *p
	return &copied, nil
}

func (s *fakePostStore) ReleaseStuckPosts(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released, nil
}

type fakeConnectionStore struct {
	connections []*models.SocialConnection
}

func (s *fakeConnectionStore) ListActiveConnections(userID string, platforms []models.Platform) ([]*models.SocialConnection, error) {
	wanted := make(map[models.Platform]bool, len(platforms))
	for _, p := range platforms {
		wanted[p] = true
	}

	matched := []*models.SocialConnection{}
	for _, conn := range s.connections {
		if conn.UserID == userID && wanted[conn.Platform] {
			matched = append(matched, conn)
		}
	}
	return matched, nil
}

type emittedNotification struct {
	UserID string
	Type   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	emitted []emittedNotification
}

func (n *fakeNotifier) Emit(userID, notifType, title, message string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emitted = append(n.emitted, emittedNotification{UserID: userID, Type: notifType})
	return nil
}

type fakePublisher struct {
	mu          sync.Mutex
	calls       int
	lastContent string
	publish     func(conn *models.SocialConnection) (string, error)
}

func (p *fakePublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	p.mu.Lock()
	p.calls++
	p.lastContent = content
	p.mu.Unlock()
	return p.publish(conn)
}

func succeedWith(id string) *fakePublisher {
	return &fakePublisher{publish: func(*models.SocialConnection) (string, error) { return id, nil }}
}

func failWith(platform models.Platform, message string) *fakePublisher {
	return &fakePublisher{publish: func(*models.SocialConnection) (string, error) {
		return "", &publishers.PublishError{Platform: platform, Message: message}
	}}
}

func connection(userID string, platform models.Platform) *models.SocialConnection {
	return &models.SocialConnection{
		ID:          userID + "-" + string(platform),
		UserID:      userID,
		Platform:    platform,
		AccountID:   "acct-" + string(platform),
		AccessToken: "token",
	}
}

func pendingPost(id, userID string, scheduledAt time.Time, platforms ...models.Platform) *models.Post {
	return &models.Post{
		ID:          id,
		UserID:      userID,
		Content:     "hello world",
		Platforms:   platforms,
		Status:      models.StatusPending,
		ScheduledAt: &scheduledAt,
	}
}

func newTestDispatcher(store *fakePostStore, conns *fakeConnectionStore,
	notifier *fakeNotifier, registry publishers.Registry, cfg DispatcherConfig) *Dispatcher {
	return NewDispatcher(store, conns, notifier, registry, cfg)
}

func TestDispatchPartialSuccessIsPublished(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p1", "u1", due, models.Twitter, models.LinkedIn))
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
		connection("u1", models.LinkedIn),
	}}
	notifier := &fakeNotifier{}
	registry := publishers.Registry{
		models.Twitter:  succeedWith("tw_1"),
		models.LinkedIn: failWith(models.LinkedIn, "rate limited"),
	}

	d := newTestDispatcher(store, conns, notifier, registry, DispatcherConfig{})

	report, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)

	post, _ := store.GetPost("p1")
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, map[models.Platform]string{models.Twitter: "tw_1"}, post.PlatformPostIDs)
	assert.Equal(t, map[models.Platform]string{models.LinkedIn: "rate limited"}, post.ErrorMessages)
	assert.NotNil(t, post.PublishedAt)

	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, "post_published", notifier.emitted[0].Type)
}

func TestDispatchNoConnectionsFailsWithoutAdapterCalls(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p2", "u1", due, models.TikTok))
	notifier := &fakeNotifier{}
	tiktok := succeedWith("tt_1")
	registry := publishers.Registry{models.TikTok: tiktok}

	d := newTestDispatcher(store, &fakeConnectionStore{}, notifier, registry, DispatcherConfig{})

	report, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)

	post, _ := store.GetPost("p2")
	assert.Equal(t, models.StatusFailed, post.Status)
	assert.Contains(t, post.ErrorMessages[models.TikTok], "not connected")
	assert.Empty(t, post.PlatformPostIDs)
	assert.Equal(t, 0, tiktok.calls, "no adapter call should be made")

	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, "post_failed", notifier.emitted[0].Type)
}

func TestConcurrentDispatchClaimsEachPostOnce(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p3", "u1", due, models.Twitter))
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	twitter := succeedWith("tw_3")
	registry := publishers.Registry{models.Twitter: twitter}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.DispatchDuePosts(context.Background(), time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.claims["p3"], "post must be claimed exactly once")
	assert.Equal(t, 1, twitter.calls, "post must be published exactly once")

	post, _ := store.GetPost("p3")
	assert.Equal(t, models.StatusPublished, post.Status)
}

func TestDispatchRespectsBatchSize(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(
		pendingPost("a", "u1", due.Add(-time.Hour), models.Twitter),
		pendingPost("b", "u1", due, models.Twitter),
	)
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	registry := publishers.Registry{models.Twitter: succeedWith("tw")}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{BatchSize: 1})

	report, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	// Oldest first: "a" went out, "b" waits for the next cycle.
	postA, _ := store.GetPost("a")
	postB, _ := store.GetPost("b")
	assert.Equal(t, models.StatusPublished, postA.Status)
	assert.Equal(t, models.StatusPending, postB.Status)
}

func TestPublishNowRejectsPublishedPost(t *testing.T) {
	published := &models.Post{
		ID:        "p4",
		UserID:    "u1",
		Platforms: []models.Platform{models.Twitter},
		Status:    models.StatusPublished,
	}
	store := newFakePostStore(published)

	d := newTestDispatcher(store, &fakeConnectionStore{}, &fakeNotifier{}, publishers.Registry{}, DispatcherConfig{})

	_, err := d.PublishNow(context.Background(), "p4")
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestPublishNowRejectsInFlightPost(t *testing.T) {
	inFlight := &models.Post{
		ID:        "p5",
		UserID:    "u1",
		Platforms: []models.Platform{models.Twitter},
		Status:    models.StatusPublishing,
	}
	store := newFakePostStore(inFlight)

	d := newTestDispatcher(store, &fakeConnectionStore{}, &fakeNotifier{}, publishers.Registry{}, DispatcherConfig{})

	_, err := d.PublishNow(context.Background(), "p5")
	assert.ErrorIs(t, err, ErrPublishInFlight)
}

func TestPublishNowRetriesFailedPost(t *testing.T) {
	failed := &models.Post{
		ID:        "p6",
		UserID:    "u1",
		Content:   "try again",
		Platforms: []models.Platform{models.LinkedIn},
		Status:    models.StatusFailed,
	}
	store := newFakePostStore(failed)
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.LinkedIn),
	}}
	registry := publishers.Registry{models.LinkedIn: succeedWith("li_1")}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{})

	outcome, err := d.PublishNow(context.Background(), "p6")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "li_1", outcome.PlatformPostIDs[models.LinkedIn])

	post, _ := store.GetPost("p6")
	assert.Equal(t, models.StatusPublished, post.Status)
}

func TestMissingConnectionDoesNotBlockOtherPlatforms(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p7", "u1", due, models.Twitter, models.Instagram))
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	registry := publishers.Registry{
		models.Twitter:   succeedWith("tw_7"),
		models.Instagram: succeedWith("ig_7"),
	}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{})

	_, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)

	post, _ := store.GetPost("p7")
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, map[models.Platform]string{models.Twitter: "tw_7"}, post.PlatformPostIDs)
	assert.Equal(t, "account not connected", post.ErrorMessages[models.Instagram])
}

func TestAllPlatformsFailingMarksPostFailed(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p8", "u1", due, models.Twitter, models.LinkedIn))
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
		connection("u1", models.LinkedIn),
	}}
	notifier := &fakeNotifier{}
	registry := publishers.Registry{
		models.Twitter:  failWith(models.Twitter, "auth rejected"),
		models.LinkedIn: failWith(models.LinkedIn, "rate limited"),
	}

	d := newTestDispatcher(store, conns, notifier, registry, DispatcherConfig{})

	_, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)

	post, _ := store.GetPost("p8")
	assert.Equal(t, models.StatusFailed, post.Status)
	assert.Nil(t, post.PublishedAt)
	assert.Equal(t, "auth rejected", post.ErrorMessages[models.Twitter])
	assert.Equal(t, "rate limited", post.ErrorMessages[models.LinkedIn])

	require.Len(t, notifier.emitted, 1)
	assert.Equal(t, "post_failed", notifier.emitted[0].Type)
}

// hangingPublisher blocks until the per-call context expires, like a platform
// API that never answers.
type hangingPublisher struct{}

func (hangingPublisher) Publish(ctx context.Context, content string, mediaURLs []string, conn *models.SocialConnection) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestHungAdapterTimesOutWithoutBlockingSiblings(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p9", "u1", due, models.Twitter, models.LinkedIn))
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
		connection("u1", models.LinkedIn),
	}}
	registry := publishers.Registry{
		models.Twitter:  hangingPublisher{},
		models.LinkedIn: succeedWith("li_9"),
	}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry,
		DispatcherConfig{AdapterTimeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	post, _ := store.GetPost("p9")
	assert.Equal(t, models.StatusPublished, post.Status)
	assert.Equal(t, map[models.Platform]string{models.LinkedIn: "li_9"}, post.PlatformPostIDs)
	assert.Equal(t, map[models.Platform]string{models.Twitter: "platform request timed out"}, post.ErrorMessages)
}

func TestClaimErrorAbortsCycleAndLeavesPostsPending(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(
		pendingPost("a", "u1", due.Add(-time.Hour), models.Twitter),
		pendingPost("b", "u1", due, models.Twitter),
	)
	store.claimErr = errors.New("connection reset")
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	twitter := succeedWith("tw")
	registry := publishers.Registry{models.Twitter: twitter}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{FanOutLimit: 1})

	_, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claiming post")

	// A store failure must not mark anything failed; untouched posts wait
	// for the next cycle.
	postA, _ := store.GetPost("a")
	postB, _ := store.GetPost("b")
	assert.Equal(t, models.StatusPending, postA.Status)
	assert.Equal(t, models.StatusPending, postB.Status)
	assert.Equal(t, 0, twitter.calls)
}

func TestRecordFailureLeavesPostInPublishing(t *testing.T) {
	due := time.Now().Add(-time.Minute)
	store := newFakePostStore(pendingPost("p10", "u1", due, models.Twitter))
	store.recordErr = errors.New("connection reset")
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	notifier := &fakeNotifier{}
	registry := publishers.Registry{models.Twitter: succeedWith("tw_10")}

	d := newTestDispatcher(store, conns, notifier, registry, DispatcherConfig{})

	_, err := d.DispatchDuePosts(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording outcome")

	// The claim stands; the lease release recovers the post later.
	post, _ := store.GetPost("p10")
	assert.Equal(t, models.StatusPublishing, post.Status)
	assert.Empty(t, notifier.emitted)
}

func TestPublishNowPublishesStateAtClaimTime(t *testing.T) {
	draft := &models.Post{
		ID:        "p11",
		UserID:    "u1",
		Content:   "first version",
		Platforms: []models.Platform{models.Twitter},
		Status:    models.StatusDraft,
	}
	store := newFakePostStore(draft)
	store.onClaim = func(p *models.Post) {
		p.Content = "second version"
	}
	conns := &fakeConnectionStore{connections: []*models.SocialConnection{
		connection("u1", models.Twitter),
	}}
	twitter := succeedWith("tw_11")
	registry := publishers.Registry{models.Twitter: twitter}

	d := newTestDispatcher(store, conns, &fakeNotifier{}, registry, DispatcherConfig{})

	outcome, err := d.PublishNow(context.Background(), "p11")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "second version", twitter.lastContent)
}

func TestPublishNowReportsAlreadyPublishedOnLostRace(t *testing.T) {
	pending := &models.Post{
		ID:        "p12",
		UserID:    "u1",
		Platforms: []models.Platform{models.Twitter},
		Status:    models.StatusPending,
	}
	store := newFakePostStore(pending)
	// A concurrent cycle finishes the post between the read and the claim.
	store.onClaim = func(p *models.Post) {
		p.Status = models.StatusPublished
	}

	d := newTestDispatcher(store, &fakeConnectionStore{}, &fakeNotifier{}, publishers.Registry{}, DispatcherConfig{})

	_, err := d.PublishNow(context.Background(), "p12")
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}
