// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payrecord/internal/core"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// Period validates the params as a calendar month.
func (p MonthParams) Period() (core.Period, error) {
	return core.NewPeriod(p.Year, p.Month)
}

// ParseMonthParams extracts year and month from query parameters. Absent
// values default to the current month of now; non-numeric values are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}
	if err := parseIntParam(query, "year", &params.Year); err != nil {
		return MonthParams{}, err
	}
	if err := parseIntParam(query, "month", &params.Month); err != nil {
		return MonthParams{}, err
	}
	return params, nil
}

// ParseRequiredMonthParams is ParseMonthParams without defaults.
func ParseRequiredMonthParams(query url.Values) (MonthParams, error) {
	if strings.TrimSpace(query.Get("year")) == "" || strings.TrimSpace(query.Get("month")) == "" {
		return MonthParams{}, fmt.Errorf("%w: year and month are required", core.ErrInvalidInput)
	}
	return ParseMonthParams(query, time.Time{})
}

func parseIntParam(query url.Values, key string, dst *int) error {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s must be a number", core.ErrInvalidInput, key)
	}
	*dst = n
	return nil
}

// CloneRequest is the body of POST /api/bills/clone. sourceYear and
// sourceMonth are accepted in place of year and month.
type CloneRequest struct {
	Year        *wholeNumber `json:"year"`
	Month       *wholeNumber `json:"month"`
	SourceYear  *wholeNumber `json:"sourceYear"`
	SourceMonth *wholeNumber `json:"sourceMonth"`
}

// Source resolves the source month, preferring year/month over the aliases.
func (c CloneRequest) Source() (year, month int, err error) {
	y, m := c.Year, c.Month
	if y == nil {
		y = c.SourceYear
	}
	if m == nil {
		m = c.SourceMonth
	}
	if y == nil || m == nil {
		return 0, 0, fmt.Errorf("%w: year and month are required", core.ErrInvalidInput)
	}
	return int(*y), int(*m), nil
}

// wholeNumber is an integer sent either as a JSON number or as a quoted
// numeric string.
type wholeNumber int

func (n *wholeNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s is not a whole number", data)
	}
	*n = wholeNumber(v)
	return nil
}

// decodeJSON reads a size-limited JSON body into dst. Malformed bodies and
// values of the wrong type are reported as core.ErrInvalidInput, with date
// and amount errors kept distinguishable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", core.ErrInvalidInput)
		case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidAmount):
			return err
		default:
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
			}
			return fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidInput, err)
		}
	}
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
