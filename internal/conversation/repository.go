package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryDB is the slice of pgxpool.Pool the repository needs. Narrow on
// purpose so tests can substitute a mock.
type queryDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresMessageRepository stores conversation turns in the
// conversation_messages table.
type PostgresMessageRepository struct {
	db queryDB
}

// NewPostgresMessageRepository creates a repository backed by the pool.
func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return NewPostgresMessageRepositoryWithDB(pool)
}

// NewPostgresMessageRepositoryWithDB creates a repository from any
// compatible database handle. Used by tests with pgxmock.
func NewPostgresMessageRepositoryWithDB(db queryDB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Append(ctx context.Context, conversationID, role, content string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversation_messages (conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		conversationID, role, content,
	)
	if err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT role, content, created_at FROM (
		     SELECT id, role, content, created_at
		     FROM conversation_messages
		     WHERE conversation_id = $1
		     ORDER BY created_at DESC, id DESC
		     LIMIT $2
		 ) latest ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation: query messages: %w", err)
	}
	defer rows.Close()

	var history []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}
	return history, nil
}

func (r *PostgresMessageRepository) Prune(ctx context.Context, conversationID string, keep int) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM conversation_messages
		 WHERE conversation_id = $1
		   AND id NOT IN (
		       SELECT id FROM conversation_messages
		       WHERE conversation_id = $1
		       ORDER BY created_at DESC, id DESC
		       LIMIT $2
		   )`,
		conversationID, keep,
	)
	if err != nil {
		return fmt.Errorf("conversation: prune messages: %w", err)
	}
	return nil
}

// PruneOlderThan removes messages older than the retention window across all
// conversations.
func (r *PostgresMessageRepository) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM conversation_messages WHERE created_at < $1`,
		time.Now().Add(-age),
	)
	if err != nil {
		return 0, fmt.Errorf("conversation: prune old messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InMemoryMessageRepository keeps history in a map, for tests and local runs
// without Postgres.
type InMemoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]ChatMessage
}

// NewInMemoryMessageRepository creates an empty repository.
func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{messages: make(map[string][]ChatMessage)}
}

func (r *InMemoryMessageRepository) Append(ctx context.Context, conversationID, role, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[conversationID] = append(r.messages[conversationID], ChatMessage{Role: role, Content: content})
	return nil
}

func (r *InMemoryMessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := r.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (r *InMemoryMessageRepository) Prune(ctx context.Context, conversationID string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[conversationID]
	if len(msgs) > keep {
		r.messages[conversationID] = append([]ChatMessage(nil), msgs[len(msgs)-keep:]...)
	}
	return nil
}

// Len reports how many turns are stored for a conversation.
func (r *InMemoryMessageRepository) Len(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages[conversationID])
}
