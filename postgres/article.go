package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/divanjapones/notifier"
)

const articleColumns = `id::text, title, slug, category, subcategory, author, excerpt, content, image_url,
	type, is_activity, published_at, scheduled_at, location, price, view_count, notify_sent, created_at`

type articleService struct {
	db *DB
}

func NewArticleService(db *DB) notifier.ArticleService {
	return &articleService{
		db: db,
	}
}

func scanArticle(row pgx.Row) (*notifier.Article, error) {
	var (
		a                                                              notifier.Article
		slug, subcategory, author, excerpt, content, image, loc, price *string
		scheduledAt                                                    *time.Time
	)
	err := row.Scan(&a.ID, &a.Title, &slug, &a.Category, &subcategory, &author, &excerpt, &content, &image,
		&a.Type, &a.IsActivity, &a.PublishedAt, &scheduledAt, &loc, &price, &a.ViewCount, &a.NotifySent, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Slug = deref(slug)
	a.Subcategory = deref(subcategory)
	a.Author = deref(author)
	a.Excerpt = deref(excerpt)
	a.Content = deref(content)
	a.ImageURL = deref(image)
	a.Location = deref(loc)
	a.Price = deref(price)
	a.ScheduledAt = scheduledAt
	return &a, nil
}

func (as *articleService) queryArticles(ctx context.Context, sql string, args ...any) ([]notifier.Article, error) {
	rows, err := as.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := make([]notifier.Article, 0)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

// Create inserts a new article, not yet notified
func (as *articleService) Create(ctx context.Context, a *notifier.Article) (*notifier.Article, error) {
	row := as.db.pool.QueryRow(ctx, `INSERT INTO articles (
			id, title, slug, category, subcategory, author, excerpt, content, image_url,
			type, is_activity, published_at, scheduled_at, location, price, view_count, notify_sent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 0, false, $16)
		RETURNING `+articleColumns,
		a.ID, a.Title, nullString(a.Slug), a.Category, nullString(a.Subcategory), nullString(a.Author),
		nullString(a.Excerpt), nullString(a.Content), nullString(a.ImageURL), a.Type, a.IsActivity,
		a.PublishedAt, a.ScheduledAt, nullString(a.Location), nullString(a.Price), a.CreatedAt)

	created, err := scanArticle(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert article")
	}
	return created, nil
}

// List returns articles, newest first
func (as *articleService) List(ctx context.Context) ([]notifier.Article, error) {
	articles, err := as.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY published_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list articles")
	}
	return articles, nil
}

// Pending returns unsent articles that are due, oldest first
func (as *articleService) Pending(ctx context.Context, limit int) ([]notifier.Article, error) {
	articles, err := as.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles
		WHERE notify_sent = false
		  AND COALESCE(CASE WHEN is_activity OR type = 'activity' THEN scheduled_at END, published_at) <= NOW()
		ORDER BY published_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending articles")
	}
	return articles, nil
}

// MarkNotified sets notify_sent, reporting whether this call flipped it
func (as *articleService) MarkNotified(ctx context.Context, id string) (bool, error) {
	tag, err := as.db.pool.Exec(ctx, `UPDATE articles SET notify_sent = true WHERE id = $1 AND notify_sent = false`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to mark article %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetNotified clears notify_sent so the next flush picks the article again
func (as *articleService) ResetNotified(ctx context.Context, id string) error {
	if _, err := as.db.pool.Exec(ctx, `UPDATE articles SET notify_sent = false WHERE id = $1`, id); err != nil {
		return errors.Wrapf(err, "failed to reset article %s", id)
	}
	return nil
}
