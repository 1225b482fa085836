package jobqueue

import "time"

// nextDueAt is max(now, last due + runEvery), never before the first run.
// The result is never before rec.DueAt since runEvery is positive.
func nextDueAt(rec *JobRecord, now time.Time) time.Time {
	next := rec.DueAt.Add(rec.RunEvery)
	if next.Before(now) {
		next = now
	}
	if rec.FirstRun != nil && next.Before(*rec.FirstRun) {
		next = *rec.FirstRun
	}
	return next.UTC()
}

// seedDueAt is the first due time of a freshly seeded recurring record:
// firstRun itself, or when it already passed, the first firstRun + k*runEvery
// that is not before now. A zero firstRun seeds the record due now.
func seedDueAt(firstRun time.Time, runEvery time.Duration, now time.Time) time.Time {
	if firstRun.IsZero() {
		return now.UTC()
	}
	if !firstRun.Before(now) || runEvery <= 0 {
		return firstRun.UTC()
	}

	missed := now.Sub(firstRun) / runEvery
	due := firstRun.Add(missed * runEvery)
	if due.Before(now) {
		due = due.Add(runEvery)
	}
	return due.UTC()
}
