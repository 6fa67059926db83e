package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationStore persists in-app notifications. Create is idempotent on ID.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

// Directory resolves a user's email address. An empty address means the
// user has none on file.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// =========================
// Postgres
// =========================

type PgNotifications struct {
	pool *pgxpool.Pool
}

func NewPgNotifications(pool *pgxpool.Pool) *PgNotifications {
	return &PgNotifications{pool: pool}
}

func (s *PgNotifications) Create(ctx context.Context, n Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, reference)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Body, n.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *PgNotifications) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id::text, type, title, COALESCE(body, ''), COALESCE(reference::text, ''), created_at, read_at
		 FROM notifications WHERE user_id::text = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Reference, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to parse notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PgNotifications) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE id::text = $1 AND user_id::text = $2 AND read_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update notification: %w", err)
	}
	return res.RowsAffected() > 0, nil
}

// PgDirectory reads addresses from the users table owned by the account service.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id::text = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up email: %w", err)
	}
	return email, nil
}

// =========================
// In-memory
// =========================

// MemoryNotifications backs STORE_DRIVER=memory and tests.
type MemoryNotifications struct {
	mu    sync.Mutex
	items map[string]Notification
	now   func() time.Time
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{items: map[string]Notification{}, now: time.Now}
}

func (s *MemoryNotifications) Create(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[n.ID]; ok {
		return nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	s.items[n.ID] = n
	return nil
}

func (s *MemoryNotifications) List(_ context.Context, userID string, limit int) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryNotifications) MarkRead(_ context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID || n.ReadAt != nil {
		return false, nil
	}
	ts := s.now().UTC()
	n.ReadAt = &ts
	s.items[id] = n
	return true, nil
}
