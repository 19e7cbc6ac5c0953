package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LimitType identifies which daily ceiling produced a block decision.
type LimitType string

const (
	LimitTime  LimitType = "time"
	LimitOpens LimitType = "opens"
	LimitBoth  LimitType = "both"
)

// UnmarshalJSON implements json.Unmarshaler to normalize the limit type to lowercase.
func (l *LimitType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := LimitType(strings.ToLower(s))

	switch normalized {
	case LimitTime, LimitOpens, LimitBoth:
		*l = normalized
		return nil
	default:
		return fmt.Errorf("invalid limit type: %s (must be time, opens, or both)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure lowercase output.
func (l LimitType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(l))
}

// SiteRule declares a distracting site and its daily ceilings. Pattern is
// matched as a case-insensitive substring of the page hostname. A ceiling of
// zero means that dimension is unlimited.
type SiteRule struct {
	ID                    string    `json:"id"`
	Pattern               string    `json:"pattern"`
	DailyTimeLimitSeconds int64     `json:"daily_time_limit_seconds"`
	DailyOpenLimit        int64     `json:"daily_open_limit"`
	Enabled               bool      `json:"enabled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// HasTimeLimit reports whether the rule carries a time ceiling.
func (r *SiteRule) HasTimeLimit() bool {
	return r.DailyTimeLimitSeconds > 0
}

// HasOpenLimit reports whether the rule carries an open-count ceiling.
func (r *SiteRule) HasOpenLimit() bool {
	return r.DailyOpenLimit > 0
}

// UsageEntry aggregates usage per day/site. Date is a local calendar date
// in DateKeyFormat. Counters only ever grow within a day.
type UsageEntry struct {
	Date             string `json:"date"`
	SiteID           string `json:"site_id"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
	Opens            int64  `json:"opens"`
}

// Note is a motivational text shown on the blocked page.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BlockEvent records one enforced redirect to the blocked page.
type BlockEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SiteID    string    `json:"site_id"`
	URL       string    `json:"url"`
	LimitType LimitType `json:"limit_type"`
	Reason    string    `json:"reason"`
}

// AdminUser represents a user of the options/admin API.
type AdminUser struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}
