package mcpserver

import (
	"github.com/starford/tripwatch/internal/message"
	"github.com/starford/tripwatch/internal/models"
)

var exampleTrip = models.Trip{
	Link:                "https://www.ubc-voc.com/tripagenda/trip.php?id=1234",
	DisplayText:         message.DisplayText("Sat Jan 4", "Ski touring at Brandywine", "January"),
	PreviousDisplayText: message.DisplayText("Sat Jan 11", "Ski touring at Brandywine", "January"),
}

// MessageFormat documents how trips are compared and announced.
var MessageFormat = `# tripwatch message format

A trip is identified by its absolute link. Its display text is
"<title> · <date> (<month>)"; a trip counts as changed when this text differs
from the stored one.

## New trip

` + "```" + `
` + message.NewTrip(exampleTrip) + `
` + "```" + `

## Changed trip

` + "```" + `
` + message.UpdatedTrip(exampleTrip) + `
` + "```" + `

At most a configured number of new and of changed trips are announced per
cycle; the rest are announced in later cycles. Messages longer than 4095
characters are cut.
`
