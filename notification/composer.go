package notification

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/pkg/hash"
	"github.com/divanjapones/notifier/pkg/slug"
)

const (
	DefaultSiteName = "Diván Japonés"
	DefaultTimezone = "America/Santiago"

	buttonColor = "#0f172a"
)

// Composer builds the subject, text and HTML of every notification.
type Composer struct {
	SiteName  string
	SiteURL   string
	ServerURL string
	Secret    string
	Location  *time.Location
}

// NewComposer returns a composer rendering dates in the configured timezone
func NewComposer(config *notifier.Config) (*Composer, error) {
	tz := config.Notifications.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %s", tz)
	}

	name := config.Site.Name
	if name == "" {
		name = DefaultSiteName
	}

	return &Composer{
		SiteName:  name,
		SiteURL:   strings.TrimRight(config.Site.URL, "/"),
		ServerURL: strings.TrimRight(config.Server.URL, "/"),
		Secret:    config.Newsletter.HMAC.Secret,
		Location:  loc,
	}, nil
}

func (c *Composer) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c *Composer) hermes() hermes.Hermes {
	return hermes.Hermes{
		Product: hermes.Product{
			Name:        c.SiteName,
			Link:        c.SiteURL,
			Copyright:   "© " + c.SiteName,
			TroubleText: "Si el botón '{ACTION}' no funciona, copia y pega esta dirección en tu navegador.",
		},
	}
}

func (c *Composer) render(h hermes.Hermes, body hermes.Body, text string) string {
	body.Greeting = "Hola"
	body.Signature = "Saludos"

	out, err := h.GenerateHTML(hermes.Email{Body: body})
	if err != nil {
		return "<pre>" + html.EscapeString(text) + "</pre>"
	}
	return out
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "#", `\#`, "!", `\!`, "<", `\<`, ">", `\>`,
)

// withImage moves the body into markdown so the image renders above the
// details. FreeMarkdown takes the place of the dictionary and the actions.
func withImage(body hermes.Body, image, alt string) hermes.Body {
	if image == "" {
		return body
	}

	var md strings.Builder
	fmt.Fprintf(&md, "![%s](%s)\n\n", markdownEscaper.Replace(alt), image)
	for _, e := range body.Dictionary {
		fmt.Fprintf(&md, "**%s:** %s  \n", markdownEscaper.Replace(e.Key), markdownEscaper.Replace(e.Value))
	}
	for _, a := range body.Actions {
		md.WriteString("\n")
		if a.Instructions != "" {
			fmt.Fprintf(&md, "%s\n\n", markdownEscaper.Replace(a.Instructions))
		}
		fmt.Fprintf(&md, "[%s](%s)\n", markdownEscaper.Replace(a.Button.Text), a.Button.Link)
	}
	body.FreeMarkdown = hermes.Markdown(md.String())
	return body
}

// ArticleSlug is the stored slug, else one derived from the title, else the id.
func ArticleSlug(a *notifier.Article) string {
	if a.Slug != "" {
		return a.Slug
	}
	if s := slug.Make(a.Title); s != "" {
		return s
	}
	return a.ID
}

// ArticleURL is the public permalink of an article
func (c *Composer) ArticleURL(a *notifier.Article) string {
	return fmt.Sprintf("%s/articulo/%s", c.SiteURL, url.PathEscape(ArticleSlug(a)))
}

// MagazineURL is the public permalink of a magazine
func (c *Composer) MagazineURL(m *notifier.Magazine) string {
	return fmt.Sprintf("%s/revista/%s", c.SiteURL, url.PathEscape(m.ID))
}

// UnsubscribeURL is the signed link that removes email from the list
func (c *Composer) UnsubscribeURL(email string) string {
	if c.Secret == "" || c.ServerURL == "" {
		return ""
	}
	mac, err := hash.ComputeHmac256(email, c.Secret)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/api/newsletter/unsubscribe?email=%s&hash=%s", c.ServerURL, url.QueryEscape(email), mac)
}

// Welcome is sent to a single new subscriber
func (c *Composer) Welcome(email string) notifier.Payload {
	subject := fmt.Sprintf("¡Te uniste a %s!", c.SiteName)
	unsubscribe := c.UnsubscribeURL(email)

	var text strings.Builder
	fmt.Fprintf(&text, "Hola,\n\nGracias por suscribirte al newsletter de %s. ", c.SiteName)
	text.WriteString("Desde ahora recibirás nuestras nuevas publicaciones, actividades y revistas.\n\n")
	if c.SiteURL != "" {
		fmt.Fprintf(&text, "Visítanos en %s\n\n", c.SiteURL)
	}
	if unsubscribe != "" {
		fmt.Fprintf(&text, "Para dejar de recibir correos: %s\n\n", unsubscribe)
	}
	text.WriteString("Si no esperabas este correo, ignóralo y no recibirás más mensajes.")

	body := hermes.Body{
		Intros: []string{
			"¡Gracias por unirte! Desde ahora recibirás nuestras nuevas publicaciones, actividades y revistas.",
			"Pronto te compartiremos lo último de nuestra agenda cultural.",
		},
		Outros: []string{
			"Si no esperabas este mensaje, ignóralo y no recibirás más correos.",
		},
	}
	if c.SiteURL != "" {
		body.Actions = append(body.Actions, hermes.Action{
			Button: hermes.Button{Color: buttonColor, Text: "Visitar " + c.SiteName, Link: c.SiteURL},
		})
	}
	if unsubscribe != "" {
		body.Actions = append(body.Actions, hermes.Action{
			Instructions: "¿Ya no quieres recibir nuestros correos?",
			Button:       hermes.Button{Color: "#7a7a7a", Text: "Cancelar suscripción", Link: unsubscribe},
		})
	}

	return notifier.Payload{
		Subject: subject,
		Text:    text.String(),
		HTML:    c.render(c.hermes(), body, text.String()),
	}
}

// Article announces a new publication or activity to every subscriber
func (c *Composer) Article(a *notifier.Article) notifier.Payload {
	activity := a.Activity()

	title := a.Title
	if title == "" {
		title = "Nueva publicación"
	}

	subject := "Nueva publicación: " + title
	announcement := "Tenemos una nueva publicación para ti."
	if activity {
		subject = "Nueva actividad: " + title
		announcement = "Tenemos una nueva actividad para ti."
	}

	entries := []hermes.Entry{{Key: "Título", Value: title}}
	if a.Category != "" {
		entries = append(entries, hermes.Entry{Key: "Categoría", Value: a.Category})
	}
	if a.Author != "" {
		entries = append(entries, hermes.Entry{Key: "Autor", Value: a.Author})
	}
	if activity {
		if a.Location != "" {
			entries = append(entries, hermes.Entry{Key: "Lugar", Value: a.Location})
		}
		if a.ScheduledAt != nil {
			entries = append(entries, hermes.Entry{Key: "Fecha", Value: formatDateTime(*a.ScheduledAt, c.location())})
		}
		if a.Price != "" {
			entries = append(entries, hermes.Entry{Key: "Valor", Value: a.Price})
		}
	} else if !a.PublishedAt.IsZero() {
		entries = append(entries, hermes.Entry{Key: "Publicada", Value: formatDate(a.PublishedAt, c.location())})
	}

	link := c.ArticleURL(a)

	var text strings.Builder
	fmt.Fprintf(&text, "Hola,\n\n%s\n\n", announcement)
	for _, e := range entries {
		fmt.Fprintf(&text, "%s: %s\n", e.Key, e.Value)
	}
	if a.Excerpt != "" {
		fmt.Fprintf(&text, "\n%s\n", a.Excerpt)
	}
	fmt.Fprintf(&text, "\nVisita %s para leerla completa: %s", c.SiteName, link)

	intros := []string{announcement}
	if a.Excerpt != "" {
		intros = append(intros, a.Excerpt)
	}
	body := hermes.Body{
		Intros:     intros,
		Dictionary: entries,
		Actions: []hermes.Action{{
			Instructions: fmt.Sprintf("Visita %s para leerla completa.", c.SiteName),
			Button:       hermes.Button{Color: buttonColor, Text: "Leer en " + c.SiteName, Link: link},
		}},
	}

	return notifier.Payload{
		Subject: subject,
		Text:    text.String(),
		HTML:    c.render(c.hermes(), withImage(body, a.ImageURL, title), text.String()),
	}
}

// Magazine announces a new issue to every subscriber
func (c *Composer) Magazine(m *notifier.Magazine) notifier.Payload {
	title := m.Title
	if title == "" {
		title = "Edición disponible"
	}
	subject := "Nueva revista: " + title
	announcement := fmt.Sprintf("Ya está disponible una nueva revista en %s.", c.SiteName)

	var entries []hermes.Entry
	if m.Title != "" {
		entries = append(entries, hermes.Entry{Key: "Título", Value: m.Title})
	}
	if m.Description != "" {
		entries = append(entries, hermes.Entry{Key: "Descripción", Value: m.Description})
	}
	if m.ReleaseDate != nil && !m.ReleaseDate.IsZero() {
		entries = append(entries, hermes.Entry{Key: "Fecha de lanzamiento", Value: formatCalendarDate(*m.ReleaseDate)})
	}

	link := c.MagazineURL(m)

	var text strings.Builder
	fmt.Fprintf(&text, "Hola,\n\n%s\n", announcement)
	for _, e := range entries {
		fmt.Fprintf(&text, "%s: %s\n", e.Key, e.Value)
	}
	fmt.Fprintf(&text, "\nExplora la nueva edición en el sitio: %s", link)

	body := hermes.Body{
		Intros:     []string{announcement},
		Dictionary: entries,
		Actions: []hermes.Action{{
			Instructions: "Explora la nueva edición en el sitio.",
			Button:       hermes.Button{Color: buttonColor, Text: "Ver revista", Link: link},
		}},
	}

	return notifier.Payload{
		Subject: subject,
		Text:    text.String(),
		HTML:    c.render(c.hermes(), withImage(body, m.CoverImage, title), text.String()),
	}
}
