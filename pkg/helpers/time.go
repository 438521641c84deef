package helpers

import "time"

// TimestampLayout is the second-resolution layout used in request logs and replies.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp formats t in local time using TimestampLayout.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// Clock returns now, or time.Now when now is nil.
func Clock(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
