package database

import (
	"database/sql"

	_ "github.com/lib/pq"
)

type Database struct {
	DB *sql.DB
}

func NewDatabase(connStr string) (*Database, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	database := &Database{DB: db}
	if err := database.createTables(); err != nil {
		return nil, err
	}

	return database, nil
}

func (d *Database) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scheduled_posts (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			media_urls TEXT[],
			platforms TEXT[] NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'draft',
			scheduled_at TIMESTAMP,
			published_at TIMESTAMP,
			platform_post_ids JSONB,
			error_message JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_posts_due
			ON scheduled_posts (status, scheduled_at)`,
		`CREATE TABLE IF NOT EXISTS thread_posts (
			id VARCHAR(255) PRIMARY KEY,
			parent_post_id VARCHAR(255) NOT NULL,
			sequence INTEGER NOT NULL,
			content TEXT NOT NULL,
			media_urls TEXT[],
			status VARCHAR(50) NOT NULL DEFAULT 'draft',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (parent_post_id) REFERENCES scheduled_posts(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS social_connections (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			platform VARCHAR(50) NOT NULL,
			account_id VARCHAR(255) NOT NULL,
			account_name VARCHAR(255),
			account_username VARCHAR(255),
			account_image VARCHAR(500),
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			expires_at TIMESTAMP,
			followers_count INTEGER DEFAULT 0,
			following_count INTEGER DEFAULT 0,
			posts_count INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, platform, account_id)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(255) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			type VARCHAR(100) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL,
			data JSONB,
			is_read BOOLEAN NOT NULL DEFAULT false,
			read_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
