package whois

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	whoisparser "github.com/likexian/whois-parser"

	"github.com/Harvey-AU/site-report/internal/report"
)

type field int

const (
	fieldDomainName field = iota
	fieldCreationDate
	fieldExpirationDate
	fieldUpdatedDate
	fieldStatus
	fieldNameServer
	fieldRegistrar
)

// keyRule maps WHOIS keys to a record field. Rules are checked in order and
// the first whose synonym appears in the key wins.
type keyRule struct {
	field    field
	synonyms []string
	exclude  []string
}

// Registrar is checked last so that "Registrar Registration Expiration Date"
// lands on the expiration date.
var keyRules = []keyRule{
	{field: fieldDomainName, synonyms: []string{"domain name"}},
	{field: fieldCreationDate, synonyms: []string{"creation date", "created"}},
	{field: fieldExpirationDate, synonyms: []string{"expiration date", "expir"}},
	{field: fieldUpdatedDate, synonyms: []string{"updated date", "updated"}},
	{field: fieldStatus, synonyms: []string{"status"}},
	{field: fieldNameServer, synonyms: []string{"name server"}},
	{field: fieldRegistrar, synonyms: []string{"registrar"}, exclude: []string{"url", "whois", "iana", "abuse", "phone", "email", "handle"}},
}

var dateKeyMarkers = []string{"date", "created", "expir", "updated"}

// matchKey returns the field for key and whether the key is an exact synonym.
func matchKey(key string) (field, bool, bool) {
	for _, rule := range keyRules {
		for _, syn := range rule.synonyms {
			if !strings.Contains(key, syn) {
				continue
			}
			if excluded(key, rule.exclude) {
				break
			}
			return rule.field, key == syn, true
		}
	}
	return 0, false, false
}

func excluded(key string, words []string) bool {
	for _, w := range words {
		if strings.Contains(key, w) {
			return true
		}
	}
	return false
}

func isDateKey(key string) bool {
	for _, m := range dateKeyMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

// NormaliseDate reformats a parseable date as YYYY-MM-DD and returns other
// text unchanged.
func NormaliseDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return value
	}
	return t.Format(time.DateOnly)
}

// ParseText extracts registration fields from line-oriented WHOIS output.
//
// Scalar fields keep the first value seen, except that a key that is exactly
// a synonym replaces a value taken from a longer key. Status and name server
// lines accumulate in order.
func ParseText(raw string) report.WhoisRecord {
	var rec report.WhoisRecord
	exact := make(map[field]bool)

	setScalar := func(f field, isExact bool, value string, dst *string) {
		if *dst == "" || (isExact && !exact[f]) {
			*dst = value
			exact[f] = exact[f] || isExact
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ">>>") {
			continue
		}

		rawKey, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(rawKey))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}

		if isDateKey(key) {
			value = NormaliseDate(value)
		}

		f, isExact, ok := matchKey(key)
		if !ok {
			continue
		}

		switch f {
		case fieldDomainName:
			setScalar(f, isExact, value, &rec.DomainName)
		case fieldRegistrar:
			setScalar(f, isExact, value, &rec.Registrar)
		case fieldCreationDate:
			setScalar(f, isExact, value, &rec.CreationDate)
		case fieldExpirationDate:
			setScalar(f, isExact, value, &rec.ExpirationDate)
		case fieldUpdatedDate:
			setScalar(f, isExact, value, &rec.UpdatedDate)
		case fieldStatus:
			rec.Status.Add(value)
		case fieldNameServer:
			rec.NameServers.Add(strings.TrimSuffix(strings.ToLower(value), "."))
		}
	}

	return rec
}

// parseStructured runs the registry-aware parser over raw text. It handles
// layouts the line parser cannot, such as bracketed JPRS output.
func parseStructured(raw string) (report.WhoisRecord, error) {
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return report.WhoisRecord{}, err
	}

	var rec report.WhoisRecord
	if d := info.Domain; d != nil {
		rec.DomainName = d.Domain
		rec.CreationDate = NormaliseDate(d.CreatedDate)
		rec.ExpirationDate = NormaliseDate(d.ExpirationDate)
		rec.UpdatedDate = NormaliseDate(d.UpdatedDate)
		for _, s := range d.Status {
			rec.Status.Add(s)
		}
		for _, ns := range d.NameServers {
			rec.NameServers.Add(strings.TrimSuffix(strings.ToLower(ns), "."))
		}
	}
	if info.Registrar != nil {
		rec.Registrar = info.Registrar.Name
	}

	return rec, nil
}
