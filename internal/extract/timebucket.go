package extract

import "time"

// LocalDate renders a timestamp as a calendar date in the reporting zone.
// Every component deriving a date from a timestamp goes through this, so
// sprint boundaries and event dates can never disagree.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// TimeBucket classifies a timestamp by local hour of day into the fixed
// working-day buckets reports depend on. Intervals are half-open: 10:00
// falls in "10am-12pm", not "8am-10am".
func TimeBucket(t time.Time, loc *time.Location) string {
	switch hour := t.In(loc).Hour(); {
	case hour >= 8 && hour < 10:
		return "8am-10am"
	case hour >= 10 && hour < 12:
		return "10am-12pm"
	case hour >= 12 && hour < 14:
		return "12pm-2pm"
	case hour >= 14 && hour < 16:
		return "2pm-4pm"
	case hour >= 16 && hour < 18:
		return "4pm-6pm"
	default:
		return "off_hours"
	}
}
