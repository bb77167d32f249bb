package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"socialflow/models"
	"socialflow/publishers"
	"socialflow/utils"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrPostNotFound     = errors.New("post not found")
	ErrAlreadyPublished = errors.New("post already published")
	ErrPublishInFlight  = errors.New("post is already being published")
)

// PostStore is the persistence contract the dispatcher needs. ClaimPost must
// be an atomic conditional transition; it is the only concurrency-control
// point between overlapping cycles.
type PostStore interface {
	FindDuePosts(now time.Time, limit int) ([]*models.Post, error)
	ClaimPost(postID string) (bool, error)
	ClaimForPublishNow(postID string) (bool, error)
	RecordOutcome(postID string, status models.PostStatus,
		platformPostIDs map[models.Platform]string, errorMessages map[models.Platform]string,
		publishedAt *time.Time) error
	GetPost(postID string) (*models.Post, error)
	ReleaseStuckPosts(olderThan time.Duration) (int, error)
}

type ConnectionStore interface {
	ListActiveConnections(userID string, platforms []models.Platform) ([]*models.SocialConnection, error)
}

type Notifier interface {
	Emit(userID, notifType, title, message string, data map[string]any) error
}

type DispatcherConfig struct {
	BatchSize      int
	AdapterTimeout time.Duration
	FanOutLimit    int
	ClaimLease     time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 30 * time.Second
	}
	if c.FanOutLimit <= 0 {
		c.FanOutLimit = 4
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 10 * time.Minute
	}
	return c
}

// Dispatcher runs the publication pipeline: select due posts, claim each
// exclusively, fan out to the platform adapters, aggregate per-platform
// outcomes, and record the verdict.
//
// A crash between a successful remote publish call and RecordOutcome can
// deliver a post to a platform more than once after the claim lease expires;
// platform APIs are not idempotent, so this is accepted rather than retried
// around.
type Dispatcher struct {
	posts       PostStore
	connections ConnectionStore
	notifier    Notifier
	registry    publishers.Registry
	cfg         DispatcherConfig

	mu       sync.Mutex
	limiters map[models.Platform]*rate.Limiter
}

func NewDispatcher(posts PostStore, connections ConnectionStore, notifier Notifier,
	registry publishers.Registry, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		posts:       posts,
		connections: connections,
		notifier:    notifier,
		registry:    registry,
		cfg:         cfg.withDefaults(),
		limiters:    make(map[models.Platform]*rate.Limiter),
	}
}

// DispatchDuePosts runs one dispatch cycle. Overlapping invocations are safe:
// each due post is claimed with a conditional transition, and a lost claim is
// a silent skip, not an error. Only store-layer failures abort the cycle;
// untouched pending posts are picked up by the next one.
func (d *Dispatcher) DispatchDuePosts(ctx context.Context, now time.Time) (*models.DispatchReport, error) {
	due, err := d.posts.FindDuePosts(now, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("selecting due posts: %w", err)
	}

	report := &models.DispatchReport{
		Outcomes: make(map[string]*models.PublishOutcome, len(due)),
	}
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.FanOutLimit)

	for _, post := range due {
		post := post
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			claimed, err := d.posts.ClaimPost(post.ID)
			if err != nil {
				return fmt.Errorf("claiming post %s: %w", post.ID, err)
			}
			if !claimed {
				utils.Debugf("post %s claimed by another cycle, skipping", post.ID)
				return nil
			}

			outcome, err := d.publishClaimed(gctx, post)
			if err != nil {
				return err
			}

			reportMu.Lock()
			report.Processed++
			report.Outcomes[post.ID] = outcome
			reportMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		utils.Errorf("dispatch cycle aborted: %v", err)
		return report, err
	}

	return report, nil
}

// PublishNow dispatches a single post immediately, regardless of its
// scheduled time. Published posts are rejected; a post already claimed by a
// concurrent cycle reports ErrPublishInFlight.
func (d *Dispatcher) PublishNow(ctx context.Context, postID string) (*models.PublishOutcome, error) {
	post, err := d.posts.GetPost(postID)
	if err != nil {
		return nil, ErrPostNotFound
	}

	if post.Status == models.StatusPublished {
		return nil, ErrAlreadyPublished
	}

	claimed, err := d.posts.ClaimForPublishNow(postID)
	if err != nil {
		return nil, fmt.Errorf("claiming post %s: %w", postID, err)
	}
	if !claimed {
		// The post moved on between the read and the claim. Distinguish a
		// publish that already completed from one still in flight.
		if current, err := d.posts.GetPost(postID); err == nil && current.Status == models.StatusPublished {
			return nil, ErrAlreadyPublished
		}
		return nil, ErrPublishInFlight
	}

	// Re-read after the claim so edits committed since the first read are
	// published, not the stale snapshot.
	post, err = d.posts.GetPost(postID)
	if err != nil {
		return nil, fmt.Errorf("reloading post %s: %w", postID, err)
	}

	return d.publishClaimed(ctx, post)
}

// ReleaseStuckPosts requeues claims whose lease expired, recovering posts
// orphaned in publishing by a crash mid-cycle.
func (d *Dispatcher) ReleaseStuckPosts() (int, error) {
	released, err := d.posts.ReleaseStuckPosts(d.cfg.ClaimLease)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		utils.Warnf("released %d post(s) stuck in publishing", released)
	}
	return released, nil
}

// publishClaimed runs steps 3-7 of the dispatch cycle for one claimed post:
// resolve connections, fan out to adapters, aggregate, record, notify.
// Only store-layer failures surface as errors; adapter failures land in the
// per-platform error map.
func (d *Dispatcher) publishClaimed(ctx context.Context, post *models.Post) (*models.PublishOutcome, error) {
	outcome := &models.PublishOutcome{
		PostID:          post.ID,
		PlatformPostIDs: make(map[models.Platform]string),
		Errors:          make(map[models.Platform]string),
	}

	connections, err := d.connections.ListActiveConnections(post.UserID, post.Platforms)
	if err != nil {
		return nil, fmt.Errorf("resolving connections for post %s: %w", post.ID, err)
	}

	byPlatform := make(map[models.Platform]*models.SocialConnection, len(connections))
	for _, conn := range connections {
		if _, ok := byPlatform[conn.Platform]; !ok {
			byPlatform[conn.Platform] = conn
		}
	}

	if len(byPlatform) == 0 {
		// No adapter calls at all: the post fails as a whole.
		for _, platform := range post.Platforms {
			outcome.Errors[platform] = "account not connected"
		}
		if err := d.record(post, outcome); err != nil {
			return nil, err
		}
		d.notifyFailed(post, "no connected accounts for selected platforms")
		return outcome, nil
	}

	var outcomeMu sync.Mutex
	var wg sync.WaitGroup

	for _, platform := range post.Platforms {
		conn, ok := byPlatform[platform]
		if !ok {
			outcome.Errors[platform] = "account not connected"
			continue
		}

		publisher, ok := d.registry.For(platform)
		if !ok {
			outcome.Errors[platform] = "platform not supported"
			continue
		}

		wg.Add(1)
		go func(platform models.Platform, conn *models.SocialConnection) {
			defer wg.Done()

			remoteID, err := d.publishOne(ctx, publisher, platform, post, conn)

			outcomeMu.Lock()
			defer outcomeMu.Unlock()
			if err != nil {
				outcome.Errors[platform] = publishErrorMessage(err)
			} else {
				outcome.PlatformPostIDs[platform] = remoteID
			}
		}(platform, conn)
	}

	wg.Wait()

	outcome.Success = len(outcome.PlatformPostIDs) > 0
	if err := d.record(post, outcome); err != nil {
		return nil, err
	}

	if outcome.Success {
		d.notifyPublished(post, outcome)
	} else {
		d.notifyFailed(post, summarizeErrors(outcome.Errors))
	}

	return outcome, nil
}

// publishOne makes a single adapter call, paced by the platform's rate
// limiter and bounded by the per-call timeout. A hung platform API is
// indistinguishable from any other adapter failure.
func (d *Dispatcher) publishOne(ctx context.Context, publisher publishers.PlatformPublisher,
	platform models.Platform, post *models.Post, conn *models.SocialConnection) (string, error) {

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.AdapterTimeout)
	defer cancel()

	if err := d.limiter(platform).Wait(callCtx); err != nil {
		return "", err
	}

	remoteID, err := publisher.Publish(callCtx, post.Content, post.MediaURLs, conn)
	if err != nil {
		utils.Warnf("post %s failed on %s: %v", post.ID, platform, err)
		return "", err
	}

	utils.Infof("post %s published to %s as %s", post.ID, platform, remoteID)
	return remoteID, nil
}

func (d *Dispatcher) record(post *models.Post, outcome *models.PublishOutcome) error {
	status := models.StatusFailed
	var publishedAt *time.Time
	if outcome.Success {
		status = models.StatusPublished
		now := time.Now()
		publishedAt = &now
	}

	if err := d.posts.RecordOutcome(post.ID, status, outcome.PlatformPostIDs, outcome.Errors, publishedAt); err != nil {
		return fmt.Errorf("recording outcome for post %s: %w", post.ID, err)
	}
	return nil
}

func (d *Dispatcher) notifyPublished(post *models.Post, outcome *models.PublishOutcome) {
	platforms := make([]string, 0, len(outcome.PlatformPostIDs))
	for platform := range outcome.PlatformPostIDs {
		platforms = append(platforms, string(platform))
	}

	err := d.notifier.Emit(post.UserID, "post_published", "Post Published",
		fmt.Sprintf("Your post has been published to %s", strings.Join(platforms, ", ")),
		map[string]any{"postId": post.ID, "platforms": platforms})
	if err != nil {
		utils.Warnf("failed to emit notification for post %s: %v", post.ID, err)
	}
}

func (d *Dispatcher) notifyFailed(post *models.Post, reason string) {
	err := d.notifier.Emit(post.UserID, "post_failed", "Post Failed",
		fmt.Sprintf("Your post could not be published: %s", reason),
		map[string]any{"postId": post.ID})
	if err != nil {
		utils.Warnf("failed to emit notification for post %s: %v", post.ID, err)
	}
}

func (d *Dispatcher) limiter(platform models.Platform) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	limiter, ok := d.limiters[platform]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(2*time.Second), 2)
		d.limiters[platform] = limiter
	}
	return limiter
}

func publishErrorMessage(err error) string {
	var pubErr *publishers.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "platform request timed out"
	}
	return err.Error()
}

func summarizeErrors(errs map[models.Platform]string) string {
	parts := make([]string, 0, len(errs))
	for platform, msg := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", platform, msg))
	}
	return strings.Join(parts, "; ")
}
