package ratelimit

import (
	"fmt"
	"time"
)

// rateKey builds the counter key for the short window. The bucket index
// pins the counter to its window so concurrent workers sharing the store
// converge on the same key with no coordination beyond the atomic
// increment.
func rateKey(tier, identity string, now time.Time, window time.Duration) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("rate:%s:%s:%d", tier, identity, bucket)
}

// quotaKey builds the counter key for the daily quota, bucketed by UTC
// day.
func quotaKey(tier, identity string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", tier, identity, now.UTC().Format("2006-01-02"))
}

// windowReset returns the time remaining in the current window.
func windowReset(now time.Time, window time.Duration) time.Duration {
	windowSecs := int64(window.Seconds())
	elapsed := now.Unix() % windowSecs
	return time.Duration(windowSecs-elapsed) * time.Second
}

// quotaReset returns the time remaining until the UTC day rolls over.
func quotaReset(now time.Time) time.Duration {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(utc)
}
