package utils

import "time"

// NowUTC returns the current time in UTC. All billing timestamps are stored
// and compared in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// UnixToUTC converts a unix timestamp in seconds to a UTC time.
func UnixToUTC(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// UnixToUTCPtr converts a unix timestamp to a *time.Time, mapping the zero
// value to nil so optional provider timestamps stay NULL in the database.
func UnixToUTCPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := UnixToUTC(sec)
	return &t
}

// AddCalendarMonths adds months in calendar terms with end-of-month clamping:
// Jan 31 plus one month is Feb 29 in a leap year, not Mar 2. The stdlib
// AddDate normalizes overflow days into the next month, which would silently
// extend paid access.
func AddCalendarMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := daysIn(firstOfTarget.Year(), firstOfTarget.Month())
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddCalendarYears adds years with the same clamping, so Feb 29 plus one year
// lands on Feb 28.
func AddCalendarYears(t time.Time, years int) time.Time {
	return AddCalendarMonths(t, years*12)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
