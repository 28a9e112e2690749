// Package message renders the text sent to the trip channel and the
// maintainer chat. Every rendered message fits a single Telegram message.
package message

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/tripwatch/internal/models"
)

// MaxLength is the longest message the channel accepts, in characters.
const MaxLength = 4095

// DisplayText merges the agenda cells of one trip into its comparison value.
func DisplayText(date, title, month string) string {
	return fmt.Sprintf("%s · %s (%s)", title, date, month)
}

// NewTrip announces a trip seen for the first time.
func NewTrip(t models.Trip) string {
	return Truncate(fmt.Sprintf("New Trip: %s\n\n%s", t.DisplayText, t.Link))
}

// UpdatedTrip announces a trip whose date or title changed.
func UpdatedTrip(t models.Trip) string {
	return Truncate(fmt.Sprintf("Trip Changed: %s\n\nWas: %s\n\n%s", t.DisplayText, t.PreviousDisplayText, t.Link))
}

// Start is the reply to the /start command.
func Start(channel string) string {
	return Truncate(fmt.Sprintf("Hi, I am the trip agenda bot. Follow %s to get updates whenever a new trip is posted", channel))
}

// Error renders a failure report for the maintainer. kind names the failure
// class, e.g. "FetchError".
func Error(kind string, err error, msg string) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(msg)
	b.WriteString("\n\n")
	b.WriteString(kind)
	if err != nil {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return Truncate(b.String())
}

// Truncate cuts s to MaxLength characters without splitting a rune.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxLength {
			return s[:i]
		}
		n++
	}
	return s
}
