package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"matri_server/server/comm/domain"
)

// MessageRepository persists chat messages in Postgres. Expected schema:
//
//	messages(message_id uuid pk default gen_random_uuid(), chat_id text,
//	  sender_id text, receiver_id text, kind text, content text,
//	  media_json jsonb, is_read bool, read_at timestamptz,
//	  is_edited bool, edited_at timestamptz, created_at timestamptz)
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageColumns = `message_id, chat_id, sender_id, receiver_id, kind, content, media_json, is_read, read_at, is_edited, edited_at, created_at`

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	var mediaJSON []byte
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.ReceiverID, &m.Kind, &m.Content, &mediaJSON, &m.IsRead, &m.ReadAt, &m.IsEdited, &m.EditedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, err
	}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &m.Media); err != nil {
			return domain.Message{}, err
		}
	}
	return m, nil
}

func (r *MessageRepository) Create(ctx context.Context, msg domain.Message) (domain.Message, error) {
	mediaJSON, err := json.Marshal(msg.Media)
	if err != nil {
		return msg, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO messages(chat_id, sender_id, receiver_id, kind, content, media_json)
		VALUES($1, $2, $3, $4, $5, $6)
		RETURNING message_id, created_at
	`, msg.ChatID, msg.SenderID, msg.ReceiverID, msg.Kind, msg.Content, mediaJSON).Scan(&msg.ID, &msg.CreatedAt)
	return msg, err
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE message_id=$1`, id)
	return scanMessage(row)
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) (domain.Message, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE messages
		SET content=$2, is_edited=TRUE, edited_at=$3
		WHERE message_id=$1
		RETURNING `+messageColumns, id, content, editedAt)
	return scanMessage(row)
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE message_id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByChat pages the conversation newest-first and reports the total.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]domain.Message, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id=$1
		ORDER BY created_at DESC, message_id DESC
		LIMIT $2 OFFSET $3
	`, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *MessageRepository) MarkRead(ctx context.Context, chatID, readerID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET is_read=TRUE, read_at=$3
		WHERE chat_id=$1 AND receiver_id=$2 AND is_read=FALSE
	`, chatID, readerID, at)
	return err
}

func (r *MessageRepository) CountFromTo(ctx context.Context, senderID, receiverID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE sender_id=$1 AND receiver_id=$2
	`, senderID, receiverID).Scan(&count)
	return count, err
}

// LatestPerCounterpart returns the most recent message of each conversation
// the user participates in, most recent conversation first.
func (r *MessageRepository) LatestPerCounterpart(ctx context.Context, userID string) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (chat_id) `+messageColumns+`
		FROM messages
		WHERE sender_id=$1 OR receiver_id=$1
		ORDER BY chat_id, created_at DESC, message_id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}
