// Package marshal converts field values into byte strings whose lexicographic
// order matches the semantic order of the values. The encoded forms are stored
// in per-document value slots, so range queries and sorting can compare raw
// bytes without re-parsing the original values.
package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"time"

	xerrors "github.com/mydeco-dev-team/xappy/internal/errors"
)

// FloatWidth is the encoded width of a single float value. Multi-valued slots
// concatenate encodings, so decoders rely on this being fixed.
const FloatWidth = 8

// FloatToSortable encodes a float64 so that byte-lexicographic order of the
// encodings equals numeric order of the values: negative values sort before
// positive, and more-negative before less-negative.
//
// The encoding flips the sign bit for non-negative values and inverts all bits
// for negative ones, which makes the IEEE-754 representation monotonic under
// unsigned comparison.
func FloatToSortable(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, FloatWidth)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

// SortableToFloat reverses FloatToSortable.
func SortableToFloat(b []byte) (float64, error) {
	if len(b) != FloatWidth {
		return 0, xerrors.NewValueError("", fmt.Sprintf("%x", b),
			fmt.Sprintf("encoded float must be %d bytes, got %d", FloatWidth, len(b)))
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

var (
	yyyymmddRe = regexp.MustCompile(`^([0-9]{4})([0-9]{2})([0-9]{2})$`)
	yyyyMmDdRe = regexp.MustCompile(`^([0-9]{4})([-/.])([0-9]{2})([-/.])([0-9]{2})$`)
)

// ParseDate parses a date in YYYYMMDD form, or with '-', '/' or '.' separators
// (the separator must be used consistently). The date must be a real calendar
// date.
func ParseDate(value string) (time.Time, error) {
	var year, month, day string
	if mg := yyyymmddRe.FindStringSubmatch(value); mg != nil {
		year, month, day = mg[1], mg[2], mg[3]
	} else if mg := yyyyMmDdRe.FindStringSubmatch(value); mg != nil {
		if mg[2] != mg[4] {
			return time.Time{}, xerrors.NewValueError("", value, "mismatched date separators")
		}
		year, month, day = mg[1], mg[3], mg[5]
	} else {
		return time.Time{}, xerrors.NewValueError("", value, "unrecognised date format")
	}

	t, err := time.Parse("20060102", year+month+day)
	if err != nil {
		return time.Time{}, xerrors.NewValueError("", value, "not a valid calendar date")
	}
	return t, nil
}

// DateToSortable normalises a date string to fixed-width YYYYMMDD bytes, so
// that lexicographic order equals chronological order.
func DateToSortable(value string) ([]byte, error) {
	t, err := ParseDate(value)
	if err != nil {
		return nil, err
	}
	return []byte(t.Format("20060102")), nil
}

// SortableToDate reverses DateToSortable.
func SortableToDate(b []byte) (time.Time, error) {
	t, err := time.Parse("20060102", string(b))
	if err != nil {
		return time.Time{}, xerrors.NewValueError("", string(b), "not an encoded date")
	}
	return t, nil
}

// StringToSortable encodes a string for sorting. Strings already sort
// lexicographically, so this is the identity.
func StringToSortable(value string) []byte {
	return []byte(value)
}
