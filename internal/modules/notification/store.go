// README: Notification records persisted in PostgreSQL.
package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"hyperlocal/internal/types"
)

type PostgresRecorder struct {
	db *pgxpool.Pool
}

func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (s *PostgresRecorder) Record(ctx context.Context, n Notification) error {
	data, err := EncodeData(n.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, type, title, message, data, is_read, is_sent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		string(n.ID),
		string(n.UserID),
		string(n.Type()),
		n.Title,
		n.Message,
		[]byte(data),
		n.IsRead,
		n.IsSent,
		n.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *PostgresRecorder) MarkSent(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET is_sent = TRUE WHERE id = $1`, string(id))
	return err
}
