package notify

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opscrm/opscrm/internal/platform/db"
)

// ErrNotFound is returned when an outbox row does not exist.
var ErrNotFound = errors.New("notification not found")

// DirectorRoles are the user roles that receive approval requests.
var DirectorRoles = []string{"ADMIN", "DIRECTOR_GEN", "DIRECTOR_COMM", "DIRECTOR_DEV"}

// Insert writes requests into the outbox using the caller's transaction.
func Insert(ctx context.Context, q db.Querier, reqs ...Request) ([]int64, error) {
	ids := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		if r.UserID <= 0 {
			continue
		}
		title := r.Title
		if title == "" {
			title = r.Kind.Title()
		}
		var id int64
		err := q.QueryRow(ctx, `INSERT INTO notifications (user_id, title, message, type, entity_id, link_hash, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, NOW()) RETURNING id`,
			r.UserID, title, r.Message, string(r.Kind), r.EntityID, r.Link).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DirectorIDs lists active users holding a director or admin role.
func DirectorIDs(ctx context.Context, q db.Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT id FROM users WHERE role = ANY($1) AND is_active = true ORDER BY id`, DirectorRoles)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Store reads and updates outbox rows for the delivery worker.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get loads a single notification.
func (s *Store) Get(ctx context.Context, id int64) (Notification, error) {
	var n Notification
	var kind string
	var delivered *time.Time
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, title, message, type, COALESCE(entity_id, 0), COALESCE(link_hash, ''), is_read, delivered_at
FROM notifications WHERE id = $1`, id).Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &kind, &n.EntityID, &n.Link, &n.IsRead, &delivered)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	n.Kind = Kind(kind)
	if delivered != nil {
		ts := delivered.Format(time.RFC3339)
		n.DeliveredAt = &ts
	}
	return n, nil
}

// Undelivered lists rows older than age that no worker has delivered yet.
func (s *Store) Undelivered(ctx context.Context, age time.Duration, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `SELECT id FROM notifications
WHERE delivered_at IS NULL AND created_at < $1 ORDER BY id LIMIT $2`, time.Now().Add(-age), limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// MarkDelivered stamps delivered_at. A row already delivered is left untouched.
func (s *Store) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET delivered_at = NOW() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
