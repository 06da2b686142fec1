package notifier

import (
	"context"
	"strings"
	"time"
)

// Article types
const (
	TypePublication = "publication"
	TypeActivity    = "activity"
)

// ArticleService is the interface that wraps methods related to the articles table
type ArticleService interface {
	Create(ctx context.Context, a *Article) (*Article, error)
	List(ctx context.Context) ([]Article, error)
	// Pending returns unsent articles whose effective due time has passed, oldest first.
	Pending(ctx context.Context, limit int) ([]Article, error)
	// MarkNotified sets notify_sent. claimed is false when the row was already marked.
	MarkNotified(ctx context.Context, id string) (claimed bool, err error)
	ResetNotified(ctx context.Context, id string) error
}

// MagazineService is the interface that wraps methods related to the magazines table
type MagazineService interface {
	Create(ctx context.Context, m *Magazine) (*Magazine, error)
	List(ctx context.Context) ([]Magazine, error)
	// Pending returns unsent magazines released today or earlier, or without release date.
	Pending(ctx context.Context, limit int) ([]Magazine, error)
	MarkNotified(ctx context.Context, id string) (claimed bool, err error)
	ResetNotified(ctx context.Context, id string) error
}

// Article is an article or activity.
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug,omitempty"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory,omitempty"`
	Author      string     `json:"author,omitempty"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Content     string     `json:"content,omitempty"`
	ImageURL    string     `json:"image,omitempty"`
	Type        string     `json:"type"`
	IsActivity  bool       `json:"isActivity"`
	PublishedAt time.Time  `json:"publishedAt"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	Location    string     `json:"location,omitempty"`
	Price       string     `json:"price,omitempty"`
	ViewCount   int        `json:"viewCount"`
	NotifySent  bool       `json:"notifySent"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Activity reports whether the article announces an activity.
func (a *Article) Activity() bool {
	return a.IsActivity || a.Type == TypeActivity
}

// DueAt is scheduled time for activities and publish time otherwise.
func (a *Article) DueAt() time.Time {
	if a.Activity() && a.ScheduledAt != nil {
		return *a.ScheduledAt
	}
	return a.PublishedAt
}

// Magazine is an issue of the magazine.
type Magazine struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	PDFSource      string     `json:"pdfSource,omitempty"`
	ViewerURL      string     `json:"viewerUrl,omitempty"`
	CoverImage     string     `json:"coverImage,omitempty"`
	FileName       string     `json:"fileName,omitempty"`
	IsPDFPersisted bool       `json:"isPdfPersisted"`
	ReleaseDate    *time.Time `json:"releaseDate"`
	NotifySent     bool       `json:"notifySent"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ArticleRequest accepts every field name clients have used for an article.
type ArticleRequest struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Author      string `json:"author"`
	Excerpt     string `json:"excerpt"`
	Content     string `json:"content"`

	Image         string `json:"image"`
	ImageURL      string `json:"imageUrl"`
	ImageURLSnake string `json:"image_url"`

	IsActivity      bool `json:"isActivity"`
	IsActivitySnake bool `json:"is_activity"`
	HasActivity     bool `json:"hasActivity"`

	PublishedAt      *time.Time `json:"publishedAt"`
	PublishedAtSnake *time.Time `json:"published_at"`
	ScheduledAt      *time.Time `json:"scheduledAt"`
	ScheduledAtSnake *time.Time `json:"scheduled_at"`

	Location string `json:"location"`
	Price    string `json:"price"`
}

// Normalize maps the request onto the canonical article record.
func (r *ArticleRequest) Normalize(id string, now time.Time) (*Article, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil, &Error{Code: ErrInvalid, Op: "article.normalize", Message: `El campo "title" es requerido`}
	}

	scheduledAt := firstTime(r.ScheduledAt, r.ScheduledAtSnake)
	isActivity := scheduledAt != nil || r.IsActivity || r.IsActivitySnake || r.HasActivity

	a := &Article{
		ID:          id,
		Title:       title,
		Slug:        strings.TrimSpace(r.Slug),
		Category:    firstNonEmpty(r.Category, "General"),
		Subcategory: strings.TrimSpace(r.Subcategory),
		Author:      strings.TrimSpace(r.Author),
		Excerpt:     strings.TrimSpace(r.Excerpt),
		Content:     r.Content,
		ImageURL:    firstNonEmpty(r.ImageURL, r.Image, r.ImageURLSnake),
		Type:        TypePublication,
		IsActivity:  isActivity,
		PublishedAt: now,
		ScheduledAt: scheduledAt,
		Location:    strings.TrimSpace(r.Location),
		Price:       strings.TrimSpace(r.Price),
		CreatedAt:   now,
	}
	if isActivity {
		a.Type = TypeActivity
	}
	if p := firstTime(r.PublishedAt, r.PublishedAtSnake); p != nil {
		a.PublishedAt = *p
	}

	return a, nil
}

// MagazineRequest accepts every field name clients have used for a magazine.
type MagazineRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`

	PDFSource      string `json:"pdfSource"`
	PDFURL         string `json:"pdfUrl"`
	PDFSourceSnake string `json:"pdf_source"`

	ViewerURL      string `json:"viewerUrl"`
	ViewerURLSnake string `json:"viewer_url"`

	CoverImage      string `json:"coverImage"`
	CoverURL        string `json:"coverUrl"`
	CoverImageSnake string `json:"cover_image"`

	FileName       string `json:"fileName"`
	IsPDFPersisted bool   `json:"isPdfPersisted"`

	ReleaseDate      string `json:"releaseDate"`
	ReleaseDateSnake string `json:"release_date"`
}

// Normalize maps the request onto the canonical magazine record.
func (r *MagazineRequest) Normalize(id string, now time.Time) (*Magazine, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil, &Error{Code: ErrInvalid, Op: "magazine.normalize", Message: `El campo "title" es requerido`}
	}

	m := &Magazine{
		ID:             id,
		Title:          title,
		Description:    strings.TrimSpace(r.Description),
		PDFSource:      firstNonEmpty(r.PDFSource, r.PDFURL, r.PDFSourceSnake),
		ViewerURL:      firstNonEmpty(r.ViewerURL, r.ViewerURLSnake),
		CoverImage:     firstNonEmpty(r.CoverImage, r.CoverURL, r.CoverImageSnake),
		FileName:       strings.TrimSpace(r.FileName),
		IsPDFPersisted: r.IsPDFPersisted,
		CreatedAt:      now,
	}

	if raw := firstNonEmpty(r.ReleaseDate, r.ReleaseDateSnake); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return nil, &Error{Code: ErrInvalid, Op: "magazine.normalize", Message: `El campo "releaseDate" no es una fecha válida`, Err: err}
		}
		m.ReleaseDate = &d
	}

	return m, nil
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and keeps only its UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil && !v.IsZero() {
			return v
		}
	}
	return nil
}
