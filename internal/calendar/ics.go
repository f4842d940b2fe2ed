// Package calendar renders bills as an iCalendar (RFC 5545) feed.
package calendar

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"payrecord/internal/core"
)

const (
	maxLineOctets = 75
	dateLayout    = "20060102"
	stampLayout   = "20060102T150405Z"
	uidDomain     = "payrecord"
)

// Options describe the calendar envelope.
type Options struct {
	Name     string
	Timezone string
	Now      time.Time
}

// Build renders one all-day VEVENT per bill.
func Build(opts Options, bills []core.Bill) string {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	stamp := now.UTC().Format(stampLayout)

	var b strings.Builder
	w := func(line string) {
		b.WriteString(fold(line))
		b.WriteString("\r\n")
	}

	w("BEGIN:VCALENDAR")
	w("VERSION:2.0")
	w("PRODID:-//payrecord//bills//EN")
	w("CALSCALE:GREGORIAN")
	w("METHOD:PUBLISH")
	if opts.Name != "" {
		w("NAME:" + escapeText(opts.Name))
		w("X-WR-CALNAME:" + escapeText(opts.Name))
	}
	if opts.Timezone != "" {
		w("X-WR-TIMEZONE:" + escapeText(opts.Timezone))
	}

	for _, bill := range bills {
		w("BEGIN:VEVENT")
		w("UID:" + bill.ID + "@" + uidDomain)
		w("DTSTAMP:" + stamp)
		w("DTSTART;VALUE=DATE:" + bill.Date.Format(dateLayout))
		w("DTEND;VALUE=DATE:" + bill.Date.AddDate(0, 0, 1).Format(dateLayout))
		w("SUMMARY:" + escapeText(Summary(bill)))
		w("DESCRIPTION:" + escapeText(Description(bill)))
		w("TRANSP:TRANSPARENT")
		w("END:VEVENT")
	}

	w("END:VCALENDAR")
	return b.String()
}

// Summary is the event title, e.g. "⭕ Pay: Landlord - 2000".
func Summary(b core.Bill) string {
	icon := "⭕"
	if b.IsPaid {
		icon = "✅"
	}
	payee := core.StringValue(b.Payee)
	if payee == "" {
		payee = "Unknown"
	}
	return fmt.Sprintf("%s Pay: %s - %s", icon, payee, core.FormatAmount(b.PayAmount))
}

// Description lists status, amount and notes on separate lines.
func Description(b core.Bill) string {
	status := "Unpaid"
	if b.IsPaid {
		status = "Paid"
	}
	return fmt.Sprintf("Status: %s\nAmount: %s\nNotes: %s", status, core.FormatAmount(b.PayAmount), core.StringValue(b.Notes))
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// fold splits a content line into chunks of at most 75 octets, continuing
// with CRLF and a single space. Multi-byte runes are never split.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var b strings.Builder
	limit := maxLineOctets
	n := 0
	for _, r := range line {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = len(string(utf8.RuneError))
		}
		if n+size > limit {
			b.WriteString("\r\n ")
			n = 0
			// The leading space counts towards the continuation line.
			limit = maxLineOctets - 1
		}
		b.WriteRune(r)
		n += size
	}
	return b.String()
}
