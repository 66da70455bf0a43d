package publish

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultClientName = "Client"
	nameTimeLayout    = "01/02/2006, 15:04"
)

// Eastern is the zone used in video titles. tzdata is embedded, so loading cannot fail.
var Eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("publish: load %s: %v", name, err))
	}
	return loc
}

// FinalName builds "<client> – <ticket> – <MM/DD/YYYY, HH:MM> ET".
func FinalName(clientName, ticketName string, at time.Time, loc *time.Location) string {
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		clientName = defaultClientName
	}
	if loc == nil {
		loc = Eastern
	}
	return fmt.Sprintf("%s – %s – %s ET", clientName, strings.TrimSpace(ticketName), at.In(loc).Format(nameTimeLayout))
}

// ProvisionalName is the title used while the upload is in flight.
func ProvisionalName(at time.Time) string {
	return "Support Recording " + at.UTC().Format(time.RFC3339)
}
