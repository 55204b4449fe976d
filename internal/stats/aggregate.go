// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package stats computes per-user aggregate statistics over stored
// checkins. Compute and Apply are pure: folding a batch into an
// existing snapshot yields the same result as computing from the
// combined set, so incremental updates never drift from a recompute.
package stats

import (
	"sort"
	"time"

	"github.com/meadstats/meadstats/internal/models"
)

// dayLayout is the calendar-day bucket key format.
const dayLayout = "2006-01-02"

// Compute builds a snapshot from scratch over the given checkins.
// Calendar buckets (days, weekdays, hours, months, years) use loc as
// the reference timezone.
func Compute(userID int, checkins []models.Checkin, loc *time.Location, topN int) *models.Snapshot {
	snapshot := newSnapshot(userID, loc)
	Apply(snapshot, checkins, loc, topN)
	return snapshot
}

// Apply folds a batch of previously unseen checkins into the snapshot
// and re-derives every view. The batch must be disjoint from the
// checkins already folded in; the caller guarantees this by passing
// only newly inserted store records.
func Apply(snapshot *models.Snapshot, batch []models.Checkin, loc *time.Location, topN int) {
	for i := range batch {
		fold(snapshot, &batch[i], loc)
	}
	derive(snapshot, topN)
	snapshot.ComputedAt = time.Now().UTC()
}

func newSnapshot(userID int, loc *time.Location) *models.Snapshot {
	return &models.Snapshot{
		UserID:     userID,
		Days:       make(map[string]int),
		Breweries:  make(map[string]*models.FrequencyAcc),
		Styles:     make(map[string]*models.FrequencyAcc),
		Venues:     make(map[string]*models.FrequencyAcc),
		Countries:  make(map[string]*models.FrequencyAcc),
		Beers:      make(map[int64]int),
		WeekdayAcc: make(map[int]*models.FrequencyAcc),
		HourAcc:    make(map[int]*models.FrequencyAcc),
		MonthAcc:   make(map[int]*models.FrequencyAcc),
		YearAcc:    make(map[int]*models.FrequencyAcc),
		Timezone:   loc.String(),
	}
}

// fold adds one checkin to the accumulator state.
func fold(s *models.Snapshot, c *models.Checkin, loc *time.Location) {
	local := c.CheckedInAt.In(loc)

	s.TotalCheckins++
	s.Days[local.Format(dayLayout)]++
	s.Beers[int64(c.BeerID)]++

	foldFreq(s.Breweries, c.BreweryName, c.Rating)
	foldFreq(s.Styles, c.BeerStyle, c.Rating)
	foldFreq(s.Countries, c.BreweryCountry, c.Rating)
	if c.HasVenue() {
		foldFreq(s.Venues, c.VenueName, c.Rating)
	}

	foldPeriod(s.WeekdayAcc, int(local.Weekday()), c.Rating)
	foldPeriod(s.HourAcc, local.Hour(), c.Rating)
	foldPeriod(s.MonthAcc, int(local.Month()), c.Rating)
	foldPeriod(s.YearAcc, local.Year(), c.Rating)

	if c.CheckedInAt.After(s.HighWaterMark) {
		s.HighWaterMark = c.CheckedInAt
	}
}

func foldFreq(m map[string]*models.FrequencyAcc, key string, rating float64) {
	if key == "" {
		return
	}
	acc := m[key]
	if acc == nil {
		acc = &models.FrequencyAcc{}
		m[key] = acc
	}
	acc.Count++
	if rating > 0 {
		acc.RatingSum += rating
		acc.RatedCount++
	}
}

func foldPeriod(m map[int]*models.FrequencyAcc, key int, rating float64) {
	acc := m[key]
	if acc == nil {
		acc = &models.FrequencyAcc{}
		m[key] = acc
	}
	acc.Count++
	if rating > 0 {
		acc.RatingSum += rating
		acc.RatedCount++
	}
}

// derive recomputes every presentation view from the accumulator
// state. Views depend only on that state, which is what makes
// incremental application exact.
func derive(s *models.Snapshot, topN int) {
	s.DistinctBeers = len(s.Beers)
	s.DistinctBreweries = len(s.Breweries)
	s.DistinctStyles = len(s.Styles)
	s.DistinctVenues = len(s.Venues)
	s.DistinctCountries = len(s.Countries)

	s.TopBreweries = topEntries(s.Breweries, topN)
	s.TopStyles = topEntries(s.Styles, topN)
	s.TopVenues = topEntries(s.Venues, topN)
	s.TopCountries = topEntries(s.Countries, topN)

	s.Weekdays = periodRange(s.WeekdayAcc, 0, 6)
	s.Hours = periodRange(s.HourAcc, 0, 23)
	s.Months = periodRange(s.MonthAcc, 1, 12)
	s.Years = observedPeriods(s.YearAcc)

	s.Graph = cumulativeGraph(s.Days)
	s.CurrentStreak, s.LongestStreak = streaks(s.Days)
}

// topEntries returns the topN keys by count, ties broken by key for a
// stable ordering.
func topEntries(m map[string]*models.FrequencyAcc, topN int) []models.FrequencyEntry {
	entries := make([]models.FrequencyEntry, 0, len(m))
	for key, acc := range m {
		entries = append(entries, models.FrequencyEntry{
			Key:           key,
			Count:         acc.Count,
			AverageRating: acc.AverageRating(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}
	return entries
}

// periodRange emits one bucket per period in [lo, hi], zero-filled so
// chart consumers always get the full axis.
func periodRange(m map[int]*models.FrequencyAcc, lo, hi int) []models.PeriodStat {
	out := make([]models.PeriodStat, 0, hi-lo+1)
	for p := lo; p <= hi; p++ {
		stat := models.PeriodStat{Period: p}
		if acc := m[p]; acc != nil {
			stat.Count = acc.Count
			stat.AverageRating = acc.AverageRating()
		}
		out = append(out, stat)
	}
	return out
}

// observedPeriods emits only the periods that occurred, ascending.
// Used for years, where zero-filling an open range makes no sense.
func observedPeriods(m map[int]*models.FrequencyAcc) []models.PeriodStat {
	out := make([]models.PeriodStat, 0, len(m))
	for p, acc := range m {
		out = append(out, models.PeriodStat{
			Period:        p,
			Count:         acc.Count,
			AverageRating: acc.AverageRating(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// cumulativeGraph builds the running-total series over the observed
// days, one point per day with a checkin.
func cumulativeGraph(days map[string]int) []models.GraphPoint {
	keys := sortedDayKeys(days)
	graph := make([]models.GraphPoint, 0, len(keys))
	total := 0
	for _, day := range keys {
		total += days[day]
		graph = append(graph, models.GraphPoint{
			Date:     day,
			Count:    total,
			CountDay: days[day],
		})
	}
	return graph
}

// streaks computes the current and longest runs of consecutive
// calendar days with at least one checkin. The current streak is the
// run ending at the most recent checkin day.
func streaks(days map[string]int) (current, longest int) {
	keys := sortedDayKeys(days)
	if len(keys) == 0 {
		return 0, 0
	}

	run := 1
	longest = 1
	prev, _ := time.Parse(dayLayout, keys[0])
	for _, key := range keys[1:] {
		day, err := time.Parse(dayLayout, key)
		if err != nil {
			continue
		}
		if day.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}
	return run, longest
}

func sortedDayKeys(days map[string]int) []string {
	keys := make([]string, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Strings(keys)
	return keys
}
