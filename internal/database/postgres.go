// internal/database/postgres.go
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"campus-lostfound/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store defines the persistence operations messaging depends on.
// Implementations must be safe for concurrent use.
type Store interface {
	// Connection
	Close(ctx context.Context) error

	// User methods
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Conversation methods
	GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, bool, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)

	// Message methods
	AppendMessage(ctx context.Context, msg *models.Message, preview string) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error)
	MarkDeleted(ctx context.Context, messageID uuid.UUID, bySender bool) error
	RecallMessage(ctx context.Context, messageID uuid.UUID) (bool, error)
	CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error)
	CountUnreadInConversation(ctx context.Context, conversationID, receiverID uuid.UUID) (int, error)

	// Notification methods
	SaveNotification(ctx context.Context, n *models.Notification) error
}

// SQLDB is the sqlx-backed Store. Queries are written with '?' placeholders
// and rebound for the active driver.
type SQLDB struct {
	DB     *sqlx.DB
	logger *zap.Logger
}

var _ Store = (*SQLDB)(nil)

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, logger *zap.Logger) (*SQLDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("connected to PostgreSQL")

	return &SQLDB{DB: db, logger: logger.Named("store")}, nil
}

// NewSQLiteDB opens (and creates if needed) a SQLite database file.
func NewSQLiteDB(path string, logger *zap.Logger) (*SQLDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under concurrent sends.
	db.SetMaxOpenConns(1)

	logger.Info("opened SQLite database", zap.String("path", path))

	return &SQLDB{DB: db, logger: logger.Named("store")}, nil
}

// Close closes the database connection
func (p *SQLDB) Close(ctx context.Context) error {
	p.logger.Info("closing database connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *SQLDB) InitializeTables(ctx context.Context) error {
	statements := postgresSchema
	if p.DB.DriverName() == "sqlite" {
		statements = sqliteSchema
	}
	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (p *SQLDB) rebind(query string) string {
	return p.DB.Rebind(query)
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(50) NOT NULL,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		banned_by UUID,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY,
		low_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		high_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		last_message_preview TEXT,
		last_message_time TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		UNIQUE (low_id, high_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		kind VARCHAR(10) NOT NULL,
		content TEXT,
		image_ref VARCHAR(255),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_recalled BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted_by_receiver BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages (receiver_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(100) NOT NULL,
		content TEXT NOT NULL,
		type VARCHAR(20) NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		is_banned BOOLEAN NOT NULL DEFAULT 0,
		banned_by TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		low_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		high_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		last_message_preview TEXT,
		last_message_time DATETIME,
		created_at DATETIME NOT NULL,
		UNIQUE (low_id, high_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT,
		image_ref TEXT,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		is_recalled BOOLEAN NOT NULL DEFAULT 0,
		is_deleted_by_sender BOOLEAN NOT NULL DEFAULT 0,
		is_deleted_by_receiver BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages (receiver_id, is_read)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
}
