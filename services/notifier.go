package services

import (
	"time"

	"socialflow/database"
	"socialflow/models"

	"github.com/google/uuid"
)

// StoreNotifier persists notifications for the dashboard to read. It is a
// pure sink; reading and marking notifications belongs to the API layer.
type StoreNotifier struct {
	db *database.Database
}

func NewStoreNotifier(db *database.Database) *StoreNotifier {
	return &StoreNotifier{db: db}
}

func (n *StoreNotifier) Emit(userID, notifType, title, message string, data map[string]any) error {
	return n.db.CreateNotification(&models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	})
}
