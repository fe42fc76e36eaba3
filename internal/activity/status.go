package activity

import "time"

const (
	StatusOnline  = "online"
	StatusRecent  = "recent"
	StatusAway    = "away"
	StatusOffline = "offline"
)

const (
	onlineWindow = 5 * time.Minute
	recentWindow = 24 * time.Hour
	awayWindow   = 7 * 24 * time.Hour
)

type Status struct {
	Status  string `json:"status"`
	Display string `json:"display"`
}

// StatusAt buckets the time a user was last seen relative to now.
func StatusAt(lastSeen *time.Time, now time.Time, loc *time.Location) Status {
	if lastSeen == nil || lastSeen.IsZero() {
		return Status{Status: StatusOffline, Display: "Never"}
	}
	if loc == nil {
		loc = time.UTC
	}

	local := lastSeen.In(loc)
	elapsed := now.Sub(*lastSeen)
	switch {
	case elapsed <= onlineWindow:
		return Status{Status: StatusOnline, Display: "Online"}
	case elapsed <= recentWindow:
		return Status{Status: StatusRecent, Display: local.Format("15:04")}
	case elapsed <= awayWindow:
		return Status{Status: StatusAway, Display: local.Weekday().String()}
	default:
		return Status{Status: StatusOffline, Display: local.Format("Jan 02, 2006")}
	}
}
