package database

import (
	"time"

	"socialflow/models"

	"github.com/lib/pq"
)

const connectionColumns = `id, user_id, platform, account_id, account_name,
	account_username, account_image, access_token, refresh_token, expires_at,
	followers_count, following_count, posts_count, created_at, updated_at`

// SaveConnection upserts a connection keyed on (user, platform, account).
// Reconnecting the same remote account refreshes tokens and metadata instead
// of creating a duplicate row.
func (d *Database) SaveConnection(conn *models.SocialConnection) error {
	query := `INSERT INTO social_connections
			  (id, user_id, platform, account_id, account_name, account_username, account_image,
			   access_token, refresh_token, expires_at, followers_count, following_count, posts_count,
			   created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  ON CONFLICT (user_id, platform, account_id)
			  DO UPDATE SET access_token = $8, refresh_token = $9, expires_at = $10,
			      account_name = $5, account_username = $6, account_image = $7,
			      followers_count = $11, following_count = $12, posts_count = $13,
			      updated_at = $15`

	now := time.Now()
	_, err := d.DB.Exec(query, conn.ID, conn.UserID, conn.Platform, conn.AccountID,
		conn.AccountName, conn.AccountUsername, conn.AccountImage,
		conn.AccessToken, conn.RefreshToken, conn.ExpiresAt,
		conn.FollowersCount, conn.FollowingCount, conn.PostsCount, now, now)
	return err
}

// ListActiveConnections returns the user's connections for the requested
// platforms. A platform with no row here is a per-platform "account not
// connected" failure at dispatch time, never a crash.
func (d *Database) ListActiveConnections(userID string, platforms []models.Platform) ([]*models.SocialConnection, error) {
	query := `SELECT ` + connectionColumns + `
			  FROM social_connections
			  WHERE user_id = $1 AND platform = ANY($2)
			  ORDER BY platform, created_at DESC`

	rows, err := d.DB.Query(query, userID, pq.Array(platformStrings(platforms)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connections := []*models.SocialConnection{}
	for rows.Next() {
		conn := &models.SocialConnection{}
		err := rows.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.AccountID,
			&conn.AccountName, &conn.AccountUsername, &conn.AccountImage,
			&conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt,
			&conn.FollowersCount, &conn.FollowingCount, &conn.PostsCount,
			&conn.CreatedAt, &conn.UpdatedAt)
		if err != nil {
			return nil, err
		}
		connections = append(connections, conn)
	}

	return connections, rows.Err()
}

func (d *Database) GetUserConnections(userID string) ([]*models.SocialConnection, error) {
	return d.ListActiveConnections(userID, models.AllPlatforms)
}

func (d *Database) DeleteConnection(connectionID, userID string) (bool, error) {
	result, err := d.DB.Exec(`DELETE FROM social_connections WHERE id = $1 AND user_id = $2`,
		connectionID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}
