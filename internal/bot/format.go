package bot

import (
	"fmt"
	"time"
)

var frenchMonths = [...]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."}

// formatAge renders how long ago t was, the way the conversation list shows it.
func formatAge(now, t time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "À l'instant"
	case diff < time.Hour:
		return fmt.Sprintf("Il y a %d min", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("Il y a %dh", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("Il y a %dj", int(diff/(24*time.Hour)))
	default:
		return fmt.Sprintf("%02d %s", t.Day(), frenchMonths[t.Month()-1])
	}
}
