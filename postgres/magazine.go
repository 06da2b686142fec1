package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/divanjapones/notifier"
)

const magazineColumns = `id::text, title, description, pdf_source, viewer_url, cover_image, file_name,
	is_pdf_persisted, release_date, notify_sent, created_at`

type magazineService struct {
	db *DB
}

func NewMagazineService(db *DB) notifier.MagazineService {
	return &magazineService{
		db: db,
	}
}

func scanMagazine(row pgx.Row) (*notifier.Magazine, error) {
	var (
		m                                               notifier.Magazine
		description, pdfSource, viewer, cover, fileName *string
		releaseDate                                     *time.Time
	)
	err := row.Scan(&m.ID, &m.Title, &description, &pdfSource, &viewer, &cover, &fileName,
		&m.IsPDFPersisted, &releaseDate, &m.NotifySent, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Description = deref(description)
	m.PDFSource = deref(pdfSource)
	m.ViewerURL = deref(viewer)
	m.CoverImage = deref(cover)
	m.FileName = deref(fileName)
	m.ReleaseDate = releaseDate
	return &m, nil
}

func (ms *magazineService) queryMagazines(ctx context.Context, sql string, args ...any) ([]notifier.Magazine, error) {
	rows, err := ms.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	magazines := make([]notifier.Magazine, 0)
	for rows.Next() {
		m, err := scanMagazine(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		magazines = append(magazines, *m)
	}
	return magazines, rows.Err()
}

// Create inserts a new magazine, not yet notified
func (ms *magazineService) Create(ctx context.Context, m *notifier.Magazine) (*notifier.Magazine, error) {
	row := ms.db.pool.QueryRow(ctx, `INSERT INTO magazines (
			id, title, description, pdf_source, viewer_url, cover_image,
			file_name, is_pdf_persisted, release_date, notify_sent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
		RETURNING `+magazineColumns,
		m.ID, m.Title, nullString(m.Description), nullString(m.PDFSource), nullString(m.ViewerURL),
		nullString(m.CoverImage), nullString(m.FileName), m.IsPDFPersisted, m.ReleaseDate, m.CreatedAt)

	created, err := scanMagazine(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert magazine")
	}
	return created, nil
}

// List returns magazines, latest release first
func (ms *magazineService) List(ctx context.Context) ([]notifier.Magazine, error) {
	magazines, err := ms.queryMagazines(ctx, `SELECT `+magazineColumns+` FROM magazines ORDER BY release_date DESC NULLS LAST`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list magazines")
	}
	return magazines, nil
}

// Pending returns unsent magazines already released or without release date
func (ms *magazineService) Pending(ctx context.Context, limit int) ([]notifier.Magazine, error) {
	magazines, err := ms.queryMagazines(ctx, `SELECT `+magazineColumns+` FROM magazines
		WHERE notify_sent = false
		  AND (release_date IS NULL OR release_date <= CURRENT_DATE)
		ORDER BY release_date ASC NULLS FIRST
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending magazines")
	}
	return magazines, nil
}

// MarkNotified sets notify_sent, reporting whether this call flipped it
func (ms *magazineService) MarkNotified(ctx context.Context, id string) (bool, error) {
	tag, err := ms.db.pool.Exec(ctx, `UPDATE magazines SET notify_sent = true WHERE id = $1 AND notify_sent = false`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to mark magazine %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetNotified clears notify_sent so the next flush picks the magazine again
func (ms *magazineService) ResetNotified(ctx context.Context, id string) error {
	if _, err := ms.db.pool.Exec(ctx, `UPDATE magazines SET notify_sent = false WHERE id = $1`, id); err != nil {
		return errors.Wrapf(err, "failed to reset magazine %s", id)
	}
	return nil
}
