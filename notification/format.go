package notification

import (
	"fmt"
	"time"
)

var months = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// formatDate renders t as a long Spanish date in loc, e.g. "1 de marzo de 2025".
func formatDate(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%d de %s de %d", t.Day(), months[t.Month()-1], t.Year())
}

// formatDateTime adds the 24h local time: "1 de marzo de 2025, 17:00".
func formatDateTime(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%s, %02d:%02d", formatDate(local, loc), local.Hour(), local.Minute())
}

// formatCalendarDate renders a DATE value. It carries no zone, so no conversion applies.
func formatCalendarDate(d time.Time) string {
	return fmt.Sprintf("%d de %s de %d", d.Day(), months[d.Month()-1], d.Year())
}
