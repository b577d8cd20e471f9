package schedule

import (
	"math"
	"math/rand"
	"time"
)

// Windows are the per-period delay bounds between sends. Night covers local
// hours 0-8, day covers 9-23.
type Windows struct {
	DayMin   time.Duration
	DayMax   time.Duration
	NightMin time.Duration
	NightMax time.Duration
}

// IsNight classifies a local hour.
func IsNight(hour int) bool {
	return hour >= 0 && hour <= 8
}

// Delay picks a uniform random delay inside the window for the local hour of at.
func (w Windows) Delay(rng *rand.Rand, at time.Time) time.Duration {
	min, max := w.DayMin, w.DayMax
	if IsNight(at.Hour()) {
		min, max = w.NightMin, w.NightMax
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// DayKey identifies a local calendar day for the pacing counters.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// NextMidnight returns the start of the next local day.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// DailyBudget estimates how many transfers per day keep the campaign on track:
// remaining work, measured in average-sized chunks, divided by the days left in
// the completion horizon. Recomputed at every midnight rollover, so falling
// behind one day raises the next day's budget.
func DailyBudget(totalRemaining, avgChunkTokens int64, remainingDays int) int {
	if remainingDays <= 0 || totalRemaining <= 0 {
		return 0
	}
	if avgChunkTokens < 1 {
		avgChunkTokens = 1
	}
	estTransfers := (totalRemaining + avgChunkTokens - 1) / avgChunkTokens
	budget := (estTransfers + int64(remainingDays) - 1) / int64(remainingDays)
	if budget < 1 {
		budget = 1
	}
	return int(budget)
}

// DaysUntil counts whole local days from t's day to the deadline day key,
// never below 1 so a campaign already past its deadline drains at full pace
// instead of dividing by zero.
func DaysUntil(deadlineKey string, t time.Time) int {
	deadline, err := time.ParseInLocation("2006-01-02", deadlineKey, t.Location())
	if err != nil {
		return 1
	}
	y, m, d := t.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	days := int(math.Round(deadline.Sub(today).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}
