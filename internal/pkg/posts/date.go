package posts

import (
	"fmt"
	"time"
)

var monthsPtBR = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatDate renders the long Brazilian Portuguese date used on post pages,
// e.g. "25 de março de 2021". Dates are shown in UTC.
func FormatDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d de %s de %d", t.Day(), monthsPtBR[t.Month()-1], t.Year())
}
