// Copyright 2021 Silvio Böhler
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package date

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layout is the date layout used in ledger files.
const Layout = "2006-01-02"

// Interval is a time interval.
type Interval int

const (
	// Once represents the beginning of the interval.
	Once Interval = iota
	// Daily is a daily interval.
	Daily
	// Weekly is a weekly interval.
	Weekly
	// Monthly is a monthly interval.
	Monthly
	// Quarterly is a quarterly interval.
	Quarterly
	// Yearly is a yearly interval.
	Yearly
)

func (p Interval) String() string {
	switch p {
	case Once:
		return "once"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	}
	return ""
}

// Date creates a new UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time of day.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Parse parses a date in ledger layout.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Format formats a date in ledger layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// StartOf returns the first date in the given period which
// contains the receiver.
func StartOf(d time.Time, p Interval) time.Time {
	switch p {
	case Once:
		return d
	case Daily:
		return d
	case Weekly:
		x := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -x)
	case Monthly:
		return Date(d.Year(), d.Month(), 1)
	case Quarterly:
		return Date(d.Year(), ((d.Month()-1)/3*3)+1, 1)
	case Yearly:
		return Date(d.Year(), 1, 1)
	}
	return d
}

// EndOf returns the last date in the given period that contains
// the receiver.
func EndOf(d time.Time, p Interval) time.Time {
	switch p {
	case Once:
		return d
	case Daily:
		return d
	case Weekly:
		x := (7 - int(d.Weekday())) % 7
		return d.AddDate(0, 0, x)
	case Monthly:
		return StartOf(d, Monthly).AddDate(0, 1, -1)
	case Quarterly:
		return StartOf(d, Quarterly).AddDate(0, 3, 0).AddDate(0, 0, -1)
	case Yearly:
		return Date(d.Year(), 12, 31)
	}
	return d
}

// Today returns today's date.
func Today() time.Time {
	now := time.Now().Local()
	return Date(now.Year(), now.Month(), now.Day())
}

// Period is an inclusive range of dates.
type Period struct {
	Start, End time.Time
}

// Clip restricts the period to p2.
func (p Period) Clip(p2 Period) Period {
	if p2.Start.After(p.Start) {
		p.Start = p2.Start
	}
	if p2.End.Before(p.End) {
		p.End = p2.End
	}
	return p
}

// Contains returns whether t lies within the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Days returns the number of days in the period, both ends included.
func (p Period) Days() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// DaysLeft returns the number of days from today until the end of the
// period, both ends included. A period which has not yet started returns
// its full length.
func (p Period) DaysLeft(today time.Time) int {
	switch {
	case today.After(p.End):
		return 0
	case today.Before(p.Start):
		return p.Days()
	}
	return Period{Start: today, End: p.End}.Days()
}

var (
	monthRegex   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	quarterRegex = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	yearRegex    = regexp.MustCompile(`^(\d{4})$`)
)

// ParsePeriod resolves a named period: "2024-03" with Monthly, "2024-Q1"
// with Quarterly or "2024" with Yearly.
func ParsePeriod(interval Interval, value string) (Period, error) {
	switch interval {
	case Monthly:
		m := monthRegex.FindStringSubmatch(value)
		if m == nil {
			return Period{}, fmt.Errorf("invalid month %q, want YYYY-MM", value)
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("invalid month %q", value)
		}
		start := Date(year, time.Month(month), 1)
		return Period{Start: start, End: EndOf(start, Monthly)}, nil
	case Quarterly:
		m := quarterRegex.FindStringSubmatch(value)
		if m == nil {
			return Period{}, fmt.Errorf("invalid quarter %q, want YYYY-Qn", value)
		}
		year, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		start := Date(year, time.Month((q-1)*3+1), 1)
		return Period{Start: start, End: EndOf(start, Quarterly)}, nil
	case Yearly:
		m := yearRegex.FindStringSubmatch(value)
		if m == nil {
			return Period{}, fmt.Errorf("invalid year %q, want YYYY", value)
		}
		year, _ := strconv.Atoi(m[1])
		start := Date(year, 1, 1)
		return Period{Start: start, End: EndOf(start, Yearly)}, nil
	}
	return Period{}, fmt.Errorf("unsupported period interval %v", interval)
}
