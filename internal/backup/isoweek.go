package backup

import (
	"fmt"
	"math"
	"time"
)

const msPerDay = 86_400_000

// ISOWeekKey returns the "YYYY-Wnn" bucket for t. The week is derived from the
// day of year as ceil(dayOfYear/7); it approximates ISO-8601 week numbers and
// does not move early-January or late-December days into neighbouring years.
func ISOWeekKey(t time.Time) string {
	t = t.UTC()
	jan4 := time.Date(t.Year(), time.January, 4, 0, 0, 0, 0, time.UTC)
	dayOfYear := int(math.Floor(float64(t.Sub(jan4).Milliseconds())/msPerDay)) + 4
	week := int(math.Ceil(float64(dayOfYear) / 7))
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}
