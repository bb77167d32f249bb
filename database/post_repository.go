package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"socialflow/models"

	"github.com/lib/pq"
)

const postColumns = `id, user_id, content, media_urls, platforms, status,
	scheduled_at, published_at, platform_post_ids, error_message, created_at, updated_at`

func scanPost(scan func(dest ...interface{}) error) (*models.Post, error) {
	post := &models.Post{}
	var mediaURLs, platforms []string
	var platformPostIDs, errorMessage []byte

	err := scan(&post.ID, &post.UserID, &post.Content, pq.Array(&mediaURLs),
		pq.Array(&platforms), &post.Status, &post.ScheduledAt, &post.PublishedAt,
		&platformPostIDs, &errorMessage, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	post.MediaURLs = mediaURLs
	post.Platforms = make([]models.Platform, len(platforms))
	for i, p := range platforms {
		post.Platforms[i] = models.Platform(p)
	}

	if len(platformPostIDs) > 0 {
		if err := json.Unmarshal(platformPostIDs, &post.PlatformPostIDs); err != nil {
			return nil, fmt.Errorf("parsing platform post ids for post %s: %w", post.ID, err)
		}
	}
	if len(errorMessage) > 0 {
		if err := json.Unmarshal(errorMessage, &post.ErrorMessages); err != nil {
			return nil, fmt.Errorf("parsing error messages for post %s: %w", post.ID, err)
		}
	}

	return post, nil
}

func platformStrings(platforms []models.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func (d *Database) CreatePost(post *models.Post) error {
	query := `INSERT INTO scheduled_posts (id, user_id, content, media_urls, platforms, status, scheduled_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := d.DB.Exec(query, post.ID, post.UserID, post.Content,
		pq.Array(post.MediaURLs), pq.Array(platformStrings(post.Platforms)),
		post.Status, post.ScheduledAt, post.CreatedAt, post.UpdatedAt)
	return err
}

func (d *Database) UpdatePost(post *models.Post) error {
	query := `UPDATE scheduled_posts
			  SET content = $1, media_urls = $2, platforms = $3, status = $4,
			      scheduled_at = $5, updated_at = $6
			  WHERE id = $7`

	_, err := d.DB.Exec(query, post.Content, pq.Array(post.MediaURLs),
		pq.Array(platformStrings(post.Platforms)), post.Status,
		post.ScheduledAt, time.Now(), post.ID)
	return err
}

func (d *Database) GetPost(id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	return scanPost(d.DB.QueryRow(query, id).Scan)
}

// PostFilter narrows GetUserPosts. Zero values mean "no filter".
type PostFilter struct {
	Status    models.PostStatus
	Platform  models.Platform
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

func (d *Database) GetUserPosts(userID string, filter PostFilter) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE user_id = $1`
	args := []interface{}{userID}

	placeholder := func(value interface{}) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += " AND status = " + placeholder(string(filter.Status))
	}
	if filter.Platform != "" {
		query += " AND " + placeholder(string(filter.Platform)) + " = ANY(platforms)"
	}
	if filter.StartDate != nil {
		query += " AND scheduled_at >= " + placeholder(*filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND scheduled_at <= " + placeholder(*filter.EndDate)
	}

	query += ` ORDER BY
		CASE status
			WHEN 'pending' THEN 1
			WHEN 'draft' THEN 2
			WHEN 'published' THEN 3
			ELSE 4
		END,
		scheduled_at DESC NULLS LAST`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + placeholder(limit)
	query += " OFFSET " + placeholder(filter.Offset)

	return d.queryPosts(query, args...)
}

// GetCalendarPosts returns posts whose scheduled or published time falls in
// the given range, for the dashboard calendar view.
func (d *Database) GetCalendarPosts(userID string, start, end time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
			  FROM scheduled_posts
			  WHERE user_id = $1
			  AND ((scheduled_at >= $2 AND scheduled_at <= $3)
			    OR (published_at >= $2 AND published_at <= $3))
			  ORDER BY scheduled_at ASC`

	return d.queryPosts(query, userID, start, end)
}

// FindDuePosts returns pending posts whose scheduled time has passed,
// oldest first, capped at limit so one cycle does bounded work.
func (d *Database) FindDuePosts(now time.Time, limit int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + `
			  FROM scheduled_posts
			  WHERE status = $1 AND scheduled_at <= $2
			  ORDER BY scheduled_at ASC
			  LIMIT $3`

	return d.queryPosts(query, models.StatusPending, now, limit)
}

func (d *Database) queryPosts(query string, args ...interface{}) ([]*models.Post, error) {
	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*models.Post{}
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

// ClaimPost atomically transitions a pending post to publishing. It reports
// whether this caller won the claim; a concurrent cycle that already claimed
// the post makes the conditional update match zero rows.
func (d *Database) ClaimPost(postID string) (bool, error) {
	return d.claim(postID, []models.PostStatus{models.StatusPending})
}

// ClaimForPublishNow claims a post for an explicit user-initiated publish.
// Draft, pending, and failed posts are claimable; publishing and published
// posts are not, so a manual publish can never race a cycle already in
// flight or republish a published post.
func (d *Database) ClaimForPublishNow(postID string) (bool, error) {
	return d.claim(postID, []models.PostStatus{
		models.StatusDraft, models.StatusPending, models.StatusFailed,
	})
}

func (d *Database) claim(postID string, from []models.PostStatus) (bool, error) {
	query := `UPDATE scheduled_posts
			  SET status = $1, updated_at = $2
			  WHERE id = $3 AND status = ANY($4)`

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	result, err := d.DB.Exec(query, models.StatusPublishing, time.Now(), postID, pq.Array(statuses))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RecordOutcome persists the aggregate result of a dispatch and mirrors the
// final status onto any thread children of the post.
func (d *Database) RecordOutcome(postID string, status models.PostStatus,
	platformPostIDs map[models.Platform]string, errorMessages map[models.Platform]string,
	publishedAt *time.Time) error {

	idsJSON, err := marshalPlatformMap(platformPostIDs)
	if err != nil {
		return err
	}
	errsJSON, err := marshalPlatformMap(errorMessages)
	if err != nil {
		return err
	}

	query := `UPDATE scheduled_posts
			  SET status = $1, platform_post_ids = $2, error_message = $3,
			      published_at = $4, updated_at = $5
			  WHERE id = $6`

	if _, err := d.DB.Exec(query, status, idsJSON, errsJSON, publishedAt, time.Now(), postID); err != nil {
		return err
	}

	_, err = d.DB.Exec(`UPDATE thread_posts SET status = $1 WHERE parent_post_id = $2`, status, postID)
	return err
}

// ReleaseStuckPosts requeues posts left in publishing longer than the lease,
// e.g. after a crash between claim and outcome. Returns how many were
// released.
func (d *Database) ReleaseStuckPosts(olderThan time.Duration) (int, error) {
	query := `UPDATE scheduled_posts
			  SET status = $1, updated_at = $2
			  WHERE status = $3 AND updated_at < $4`

	result, err := d.DB.Exec(query, models.StatusPending, time.Now(),
		models.StatusPublishing, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

func (d *Database) DeletePost(postID, userID string) (bool, error) {
	result, err := d.DB.Exec(`DELETE FROM scheduled_posts WHERE id = $1 AND user_id = $2`, postID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ReschedulePosts moves the given posts to a new scheduled time and back to
// pending. Published posts are immutable and publishing posts are in flight,
// so both are excluded.
func (d *Database) ReschedulePosts(userID string, postIDs []string, scheduledAt time.Time) (int, error) {
	query := `UPDATE scheduled_posts
			  SET scheduled_at = $1, status = $2, updated_at = $3
			  WHERE id = ANY($4) AND user_id = $5 AND status NOT IN ($6, $7)`

	result, err := d.DB.Exec(query, scheduledAt, models.StatusPending, time.Now(),
		pq.Array(postIDs), userID, models.StatusPublished, models.StatusPublishing)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	return int(affected), err
}

func (d *Database) CreateThreadPost(tp *models.ThreadPost) error {
	query := `INSERT INTO thread_posts (id, parent_post_id, sequence, content, media_urls, status, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := d.DB.Exec(query, tp.ID, tp.ParentPostID, tp.Sequence, tp.Content,
		pq.Array(tp.MediaURLs), tp.Status, tp.CreatedAt)
	return err
}

func (d *Database) GetThreadPosts(parentPostID string) ([]*models.ThreadPost, error) {
	query := `SELECT id, parent_post_id, sequence, content, media_urls, status, created_at
			  FROM thread_posts WHERE parent_post_id = $1 ORDER BY sequence ASC`

	rows, err := d.DB.Query(query, parentPostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threadPosts := []*models.ThreadPost{}
	for rows.Next() {
		tp := &models.ThreadPost{}
		var mediaURLs []string
		err := rows.Scan(&tp.ID, &tp.ParentPostID, &tp.Sequence, &tp.Content,
			pq.Array(&mediaURLs), &tp.Status, &tp.CreatedAt)
		if err != nil {
			return nil, err
		}
		tp.MediaURLs = mediaURLs
		threadPosts = append(threadPosts, tp)
	}

	return threadPosts, rows.Err()
}

func marshalPlatformMap(m map[models.Platform]string) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return data, nil
}
