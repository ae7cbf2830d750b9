// Package local provides time-zone-free calendar values and their ISO integer
// wire forms:
//
//	Date      YYYYMMDD           (int32)
//	Time      HHMMSSFFF          (int32)
//	Minute    HHMM               (int32)
//	DateTime  YYYYMMDDHHMMSSFFF  (int64)
//
// The zero value of each type is "unset" and encodes as 0.
package local

import (
	"fmt"
	"time"

	"github.com/teranos/strata/errors"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate validates and returns a date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	d := Date{Year: year, Month: month, Day: day}
	if !d.valid() {
		return Date{}, errors.NewPrecondition("invalid date %04d-%02d-%02d", year, int(month), day)
	}
	return d, nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) valid() bool {
	if d.Year < 1 || d.Year > 9999 {
		return false
	}
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	y, m, dd := t.Date()
	return y == d.Year && m == d.Month && dd == d.Day
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// ISOInt returns YYYYMMDD, or 0 for the zero date.
func (d Date) ISOInt() int32 {
	if d.IsZero() {
		return 0
	}
	return int32(d.Year*10000 + int(d.Month)*100 + d.Day)
}

// DateFromISOInt parses YYYYMMDD. Zero yields the zero date.
func DateFromISOInt(v int32) (Date, error) {
	if v == 0 {
		return Date{}, nil
	}
	return NewDate(int(v/10000), time.Month((v/100)%100), int(v%100))
}

// String returns YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time is a time of day with millisecond resolution.
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// NewTime validates and returns a time of day.
func NewTime(hour, minute, second, millisecond int) (Time, error) {
	t := Time{Hour: hour, Minute: minute, Second: second, Millisecond: millisecond}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 ||
		millisecond < 0 || millisecond > 999 {
		return Time{}, errors.NewPrecondition("invalid time %02d:%02d:%02d.%03d", hour, minute, second, millisecond)
	}
	return t, nil
}

// TimeOf returns the time of day of t in t's location, truncated to milliseconds.
func TimeOf(t time.Time) Time {
	return Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Millisecond: t.Nanosecond() / int(time.Millisecond)}
}

// ISOInt returns HHMMSSFFF.
func (t Time) ISOInt() int32 {
	return int32(t.Hour*10000000 + t.Minute*100000 + t.Second*1000 + t.Millisecond)
}

// TimeFromISOInt parses HHMMSSFFF.
func TimeFromISOInt(v int32) (Time, error) {
	if v < 0 {
		return Time{}, errors.NewPrecondition("invalid ISO time %d", v)
	}
	return NewTime(int(v/10000000), int((v/100000)%100), int((v/1000)%100), int(v%1000))
}

// String returns HH:MM:SS.FFF.
func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
}

// Minute is a time of day with minute resolution.
type Minute struct {
	Hour   int
	Minute int
}

// NewMinute validates and returns a minute of the day.
func NewMinute(hour, minute int) (Minute, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Minute{}, errors.NewPrecondition("invalid minute %02d:%02d", hour, minute)
	}
	return Minute{Hour: hour, Minute: minute}, nil
}

// ISOInt returns HHMM.
func (m Minute) ISOInt() int32 {
	return int32(m.Hour*100 + m.Minute)
}

// MinuteFromISOInt parses HHMM.
func MinuteFromISOInt(v int32) (Minute, error) {
	if v < 0 {
		return Minute{}, errors.NewPrecondition("invalid ISO minute %d", v)
	}
	return NewMinute(int(v/100), int(v%100))
}

// String returns HH:MM.
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", m.Hour, m.Minute)
}

// DateTime is a date and time of day without a time zone.
type DateTime struct {
	Date Date
	Time Time
}

// DateTimeOf returns the local date and time of t in t's location.
func DateTimeOf(t time.Time) DateTime {
	return DateTime{Date: DateOf(t), Time: TimeOf(t)}
}

// IsZero reports whether dt is unset.
func (dt DateTime) IsZero() bool {
	return dt.Date.IsZero() && dt.Time == Time{}
}

// ISOLong returns YYYYMMDDHHMMSSFFF, or 0 for the zero value.
func (dt DateTime) ISOLong() int64 {
	if dt.IsZero() {
		return 0
	}
	return int64(dt.Date.ISOInt())*1000000000 + int64(dt.Time.ISOInt())
}

// DateTimeFromISOLong parses YYYYMMDDHHMMSSFFF.
func DateTimeFromISOLong(v int64) (DateTime, error) {
	if v == 0 {
		return DateTime{}, nil
	}
	if v < 0 {
		return DateTime{}, errors.NewPrecondition("invalid ISO date-time %d", v)
	}
	d, err := DateFromISOInt(int32(v / 1000000000))
	if err != nil {
		return DateTime{}, err
	}
	t, err := TimeFromISOInt(int32(v % 1000000000))
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Date: d, Time: t}, nil
}

// In returns the instant of dt in loc.
func (dt DateTime) In(loc *time.Location) time.Time {
	return time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Millisecond*int(time.Millisecond), loc)
}

// String returns YYYY-MM-DDTHH:MM:SS.FFF.
func (dt DateTime) String() string {
	return dt.Date.String() + "T" + dt.Time.String()
}
