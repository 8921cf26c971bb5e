package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Veraticus/creditflow-etl/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

var (
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	nonDigits    = regexp.MustCompile(`[^0-9]`)
)

// fields reads typed values out of a raw row. The first problem found is
// kept and every later read becomes a no-op, so callers check err once.
type fields struct {
	raw    model.RawRow
	err    *Rejection
	entity model.Entity
	key    string
}

func newFields(entity model.Entity, raw model.RawRow, keyColumn string) *fields {
	f := &fields{raw: raw, entity: entity}
	f.key = strings.TrimSpace(raw.Get(keyColumn))
	if f.key == "" {
		f.fail(ReasonMissingNaturalKey, keyColumn, "natural key is empty")
	}
	return f
}

func (f *fields) fail(reason Reason, field, detail string) {
	if f.err == nil {
		f.err = Reject(f.entity, reason, f.key, field, detail).WithRow(f.raw)
	}
}

func (f *fields) ok() bool {
	return f.err == nil
}

func (f *fields) str(name string) string {
	v := strings.TrimSpace(f.raw.Get(name))
	switch strings.ToLower(v) {
	case "nan", "null", "none", "nat":
		return ""
	}
	return v
}

func (f *fields) required(name string) string {
	v := f.str(name)
	if v == "" {
		f.fail(ReasonMissingRequiredField, name, "value is empty")
	}
	return v
}

func (f *fields) float(name string, def float64) float64 {
	v := f.str(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		f.fail(ReasonInvalidFormat, name, "not a number: "+v)
		return def
	}
	return n
}

func (f *fields) requiredFloat(name string) float64 {
	if f.str(name) == "" {
		f.fail(ReasonMissingRequiredField, name, "value is empty")
		return 0
	}
	return f.float(name, 0)
}

func (f *fields) int(name string, def int) int {
	v := f.str(name)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	// Integers exported through float columns arrive as "42.0".
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n != math.Trunc(n) {
		f.fail(ReasonInvalidFormat, name, "not an integer: "+v)
		return def
	}
	return int(n)
}

func (f *fields) bool(name string) bool {
	switch strings.ToLower(f.str(name)) {
	case "", "0", "false", "f", "no", "n":
		return false
	case "1", "true", "t", "yes", "y", "1.0":
		return true
	default:
		f.fail(ReasonInvalidFormat, name, "not a boolean: "+f.str(name))
		return false
	}
}

func (f *fields) boolDefault(name string, def bool) bool {
	if f.str(name) == "" {
		return def
	}
	return f.bool(name)
}

func (f *fields) date(name string) *time.Time {
	v := f.str(name)
	if v == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			d := model.Day(t)
			return &d
		}
	}
	f.fail(ReasonInvalidFormat, name, "not a date: "+v)
	return nil
}

func (f *fields) requiredDate(name string) time.Time {
	d := f.date(name)
	if d == nil {
		f.fail(ReasonMissingRequiredField, name, "date is empty")
		return time.Time{}
	}
	return *d
}

func (f *fields) between(name string, v, lo, hi float64) {
	if v < lo || v > hi {
		f.fail(ReasonOutOfRange, name, strconv.FormatFloat(v, 'f', -1, 64)+" outside ["+
			strconv.FormatFloat(lo, 'f', -1, 64)+", "+strconv.FormatFloat(hi, 'f', -1, 64)+"]")
	}
}

func (f *fields) positive(name string, v float64) {
	if v <= 0 {
		f.fail(ReasonOutOfRange, name, "must be positive")
	}
}

// titleCase normalizes free-text categoricals such as "self_employed" to "Self Employed".
func titleCase(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return ""
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	first, size := utf8.DecodeRuneInString(lower)
	return string(unicode.ToUpper(first)) + lower[size:]
}

// normalizePhone keeps the last ten digits of a phone number.
func normalizePhone(s string) (string, bool) {
	digits := nonDigits.ReplaceAllString(s, "")
	if len(digits) < 10 {
		return digits, false
	}
	return digits[len(digits)-10:], true
}

func normalizeEmail(s string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(s))
	return e, emailPattern.MatchString(e)
}
