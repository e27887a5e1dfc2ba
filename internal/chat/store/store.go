// Package store persists chat conversations and messages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/chat/models"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/db"
)

// Repository persists conversations and their transcripts.
type Repository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *models.Message, title string) error
}

// SQLRepository implements Repository on sqlx. Messages cascade with their
// conversation.
type SQLRepository struct {
	db *sqlx.DB
	ro *sqlx.DB
}

// NewSQLRepository creates the repository and its schema.
func NewSQLRepository(pool *db.Pool) (*SQLRepository, error) {
	r := &SQLRepository{db: pool.Writer(), ro: pool.Reader()}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat schema: %w", err)
	}
	return r, nil
}

func (r *SQLRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// CreateConversation inserts a new conversation.
func (r *SQLRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := r.db.Rebind(`
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation owned by userID.
func (r *SQLRepository) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	query := r.ro.Rebind(`SELECT * FROM conversations WHERE id = ? AND user_id = ?`)
	if err := r.ro.GetContext(ctx, &conv, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("conversation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recently active
// first.
func (r *SQLRepository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var convs []*models.Conversation
	query := r.ro.Rebind(`
		SELECT * FROM conversations WHERE user_id = ?
		ORDER BY updated_at DESC, id ASC`)
	if err := r.ro.SelectContext(ctx, &convs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes a conversation and its messages.
func (r *SQLRepository) DeleteConversation(ctx context.Context, userID, id string) error {
	query := r.db.Rebind(`DELETE FROM conversations WHERE id = ? AND user_id = ?`)
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apperr.NotFoundf("conversation not found: %s", id)
	}
	return nil
}

// ListMessages returns the transcript in insertion order.
func (r *SQLRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var messages []*models.Message
	query := r.ro.Rebind(`
		SELECT * FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC`)
	if err := r.ro.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// AppendTurn commits the user message and the assistant reply atomically.
// When title is non-empty it is set on the conversation if the
// conversation is still untitled.
func (r *SQLRepository) AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg *models.Message, title string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := tx.Rebind(`
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	for _, msg := range []*models.Message{userMsg, assistantMsg} {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msg.ConversationID = conversationID
		if _, err := tx.ExecContext(ctx, insert,
			msg.ID, conversationID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	now := time.Now().UTC()
	if title != "" {
		update := tx.Rebind(`
			UPDATE conversations SET updated_at = ?,
				title = CASE WHEN title = '' THEN ? ELSE title END
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, update, now, title, conversationID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
	} else {
		update := tx.Rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, update, now, conversationID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turn: %w", err)
	}
	return nil
}
