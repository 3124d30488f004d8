package replygate

import (
	"strings"
	"time"
)

// en-US renderings of time-of-day and date
const (
	timeLayout = "3:04:05 PM"
	dateLayout = "1/2/2006"
)

// RenderContext supplies the values substituted into a reply template
type RenderContext struct {
	Sender string
	Now    time.Time
}

// Render replaces {sender}, {time} and {date} in template. Other braces are left alone.
func Render(template string, rc RenderContext) string {
	r := strings.NewReplacer(
		"{sender}", rc.Sender,
		"{time}", rc.Now.Format(timeLayout),
		"{date}", rc.Now.Format(dateLayout),
	)
	return r.Replace(template)
}
