package tracking

import (
	"time"
)

// ActivitySignal describes what the user is currently looking at. A nil
// TabID or URL means no browsable foreground surface.
type ActivitySignal struct {
	TabID     *int64  `json:"tabId"`
	URL       *string `json:"url"`
	IsFocused bool    `json:"isFocused"`
}

// Session is the single live tracking session. StartTimestamp marks the
// beginning of the not-yet-flushed interval; checkpoints advance it without
// ending the session. URL is the page that most recently fed the session,
// kept so enforcement can name the page it redirects away from.
type Session struct {
	SiteID         string
	TabID          int64
	StartTimestamp time.Time
	URL            string
}
