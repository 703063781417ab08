package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

const conversationColumns = `id, session_id, user_id, user_ip, user_agent, started_at, last_activity, status`

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.SessionID, &c.UserID, &c.UserIP, &c.UserAgent, &c.StartedAt, &c.LastActivity, &c.Status); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) GetOrCreate(ctx context.Context, sessionID string, client ClientInfo) (*models.Conversation, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	c, err := scanConversation(s.db.QueryRow(ctx,
		`INSERT INTO conversations (id, session_id, user_id, user_ip, user_agent, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING `+conversationColumns,
		uuid.New(), sessionID, client.UserID, client.IP, client.UserAgent, models.ConversationActive,
	))
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return c, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.getOne(ctx, "get conversation", `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
}

func (s *PgStore) GetBySession(ctx context.Context, sessionID string) (*models.Conversation, error) {
	return s.getOne(ctx, "get conversation by session", `SELECT `+conversationColumns+` FROM conversations WHERE session_id = $1`, sessionID)
}

func (s *PgStore) getOne(ctx context.Context, op, query string, arg any) (*models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(op, "conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s *PgStore) End(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE conversations SET status = $2 WHERE id = $1`, id, models.ConversationEnded)
	if err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("end conversation", "conversation not found")
	}
	return nil
}

func (s *PgStore) ArchiveIdle(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE conversations SET status = $1 WHERE status IN ($2, $3) AND last_activity < $4`,
		models.ConversationArchived, models.ConversationActive, models.ConversationEnded, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("archive idle conversations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PgStore) AddMessage(ctx context.Context, msg *models.Message) error {
	var sources []byte
	if len(msg.Sources) > 0 {
		var err error
		if sources, err = json.Marshal(msg.Sources); err != nil {
			return fmt.Errorf("marshal sources: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msg.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, message_type, content, sources)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING timestamp`,
		msg.ID, msg.ConversationID, msg.Type, msg.Content, sources,
	).Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET last_activity = $2, status = $3 WHERE id = $1`,
		msg.ConversationID, msg.Timestamp, models.ConversationActive,
	); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgStore) History(ctx context.Context, conversationID, excludeID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, message_type, content, sources, timestamp FROM messages
		 WHERE conversation_id = $1 AND id <> $2
		 ORDER BY timestamp DESC, seq DESC
		 LIMIT $3`,
		conversationID, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *PgStore) Messages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, message_type, content, sources, timestamp FROM messages
		 WHERE conversation_id = $1
		 ORDER BY timestamp, seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (s *PgStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var m models.Message
		var sources []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Type, &m.Content, &sources, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, fmt.Errorf("decode sources: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PgStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM conversations),
		   (SELECT COUNT(*) FROM conversations WHERE status = $1),
		   (SELECT COUNT(*) FROM messages WHERE message_type = $2)`,
		models.ConversationActive, models.MessageUser,
	).Scan(&st.Total, &st.Active, &st.UserMessages)
	if err != nil {
		return Stats{}, fmt.Errorf("conversation stats: %w", err)
	}
	return st, nil
}

func (s *PgStore) ListRecent(ctx context.Context, limit int) ([]models.ConversationSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.session_id, c.user_id, c.user_ip, c.user_agent, c.started_at, c.last_activity, c.status,
		        COUNT(m.id)
		 FROM conversations c
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.last_activity DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationSummary{}
	for rows.Next() {
		var cs models.ConversationSummary
		c := &cs.Conversation
		if err := rows.Scan(&c.ID, &c.SessionID, &c.UserID, &c.UserIP, &c.UserAgent, &c.StartedAt, &c.LastActivity, &c.Status, &cs.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
