package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in UTC. Time of day is always midnight.
type Date struct {
	time.Time
}

// Period identifies a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	if y := d.Year(); y < 1 || y > MaxYear {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, y)
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// Period returns the month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// AddMonthClamped moves the date one calendar month forward, keeping the day
// of month when it exists and otherwise using the last day of that month.
func (d Date) AddMonthClamped() Date {
	target := d.Period().Next()
	day := d.Day()
	if last := target.LastDay(); day > last {
		day = last
	}
	return NewDate(target.Year, int(target.Month), day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MaxYear is the last year a Date or Period may carry.
const MaxYear = 9999

// NewPeriod validates year and month.
func NewPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d must be between 1 and 12", ErrInvalidInput, month)
	}
	if year < 1 || year > MaxYear {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrInvalidInput, year)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// Next returns the following month, wrapping December into January.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// LastDay returns the number of days in the month.
func (p Period) LastDay() int {
	return time.Date(p.Year, p.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Start is the first day of the month.
func (p Period) Start() Date {
	return NewDate(p.Year, int(p.Month), 1)
}

// End is the last day of the month, inclusive.
func (p Period) End() Date {
	return NewDate(p.Year, int(p.Month), p.LastDay())
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Optional distinguishes a field that was absent from one explicitly set to
// null. A JSON empty string is treated as null.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns a set optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns a set optional holding nothing.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		o.Value = nil
		return nil
	}
	if _, ok := any(o.Value).(*decimal.Decimal); ok {
		d, err := parseAmountJSON(data)
		if err != nil {
			return err
		}
		o.Value = any(d).(*T)
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}
