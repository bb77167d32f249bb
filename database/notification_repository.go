package database

import (
	"encoding/json"
	"time"

	"socialflow/models"
)

func (d *Database) CreateNotification(n *models.Notification) error {
	var data interface{}
	if len(n.Data) > 0 {
		encoded, err := json.Marshal(n.Data)
		if err != nil {
			return err
		}
		data = encoded
	}

	query := `INSERT INTO notifications (id, user_id, type, title, message, data, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := d.DB.Exec(query, n.ID, n.UserID, n.Type, n.Title, n.Message, data, n.CreatedAt)
	return err
}

func (d *Database) GetNotifications(userID string, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	query := `SELECT id, user_id, type, title, message, data, is_read, read_at, created_at
			  FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	if limit <= 0 {
		limit = 50
	}

	rows, err := d.DB.Query(query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		n := &models.Notification{}
		var data []byte
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
			&data, &n.IsRead, &n.ReadAt, &n.CreatedAt)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			json.Unmarshal(data, &n.Data)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (d *Database) UnreadNotificationCount(userID string) (int, error) {
	var count int
	err := d.DB.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`,
		userID).Scan(&count)
	return count, err
}

func (d *Database) MarkNotificationRead(notificationID, userID string) error {
	query := `UPDATE notifications SET is_read = true, read_at = $1
			  WHERE id = $2 AND user_id = $3`
	_, err := d.DB.Exec(query, time.Now(), notificationID, userID)
	return err
}

func (d *Database) MarkAllNotificationsRead(userID string) error {
	query := `UPDATE notifications SET is_read = true, read_at = $1
			  WHERE user_id = $2 AND is_read = false`
	_, err := d.DB.Exec(query, time.Now(), userID)
	return err
}

func (d *Database) DeleteNotification(notificationID, userID string) (bool, error) {
	result, err := d.DB.Exec(`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		notificationID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}
