package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/divanjapones/notifier"
)

type subscriberService struct {
	db *DB
}

func NewSubscriberService(db *DB) notifier.SubscriberService {
	return &subscriberService{
		db: db,
	}
}

// Subscribe inserts a subscriber, or returns the existing one for a repeat address
func (ss *subscriberService) Subscribe(ctx context.Context, email string) (*notifier.Subscriber, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, false, &notifier.Error{Code: notifier.ErrInvalid, Op: "subscriber.subscribe", Message: `El campo "email" es requerido`}
	}

	s := notifier.NewSubscriber(uuid.NewV4().String(), normalized)
	err := ss.db.pool.QueryRow(ctx, `INSERT INTO newsletter_subscribers (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
		RETURNING id::text, email, created_at`, s.ID, s.Email).
		Scan(&s.ID, &s.Email, &s.CreatedAt)
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, errors.Wrap(err, "failed to insert subscriber")
	}

	existing, err := ss.findByEmail(ctx, normalized)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (ss *subscriberService) findByEmail(ctx context.Context, email string) (*notifier.Subscriber, error) {
	var s notifier.Subscriber
	err := ss.db.pool.QueryRow(ctx, `SELECT id::text, email, created_at FROM newsletter_subscribers WHERE email = $1 LIMIT 1`, email).
		Scan(&s.ID, &s.Email, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &notifier.Error{Code: notifier.ErrNotFound, Op: "subscriber.find", Message: "Subscriber not found"}
		}
		return nil, errors.Wrapf(err, "failed to find by email %s", email)
	}
	return &s, nil
}

// List returns every subscriber, newest first
func (ss *subscriberService) List(ctx context.Context) ([]notifier.Subscriber, error) {
	rows, err := ss.db.pool.Query(ctx, `SELECT id::text, email, created_at FROM newsletter_subscribers ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subscribers")
	}
	defer rows.Close()

	subscribers := make([]notifier.Subscriber, 0)
	for rows.Next() {
		var s notifier.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		subscribers = append(subscribers, s)
	}

	return subscribers, errors.Wrap(rows.Err(), "failed to iterate subscribers")
}

// Unsubscribe removes a subscriber
func (ss *subscriberService) Unsubscribe(ctx context.Context, email string) error {
	tag, err := ss.db.pool.Exec(ctx, `DELETE FROM newsletter_subscribers WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return errors.Wrap(err, "failed to delete subscriber")
	}
	if tag.RowsAffected() == 0 {
		return &notifier.Error{Code: notifier.ErrNotFound, Op: "subscriber.unsubscribe", Message: "Subscriber not found"}
	}
	return nil
}
