package encoding

import (
	"time"
)

// TIMESTAMP_SIZE is the on-disk size of a UDF timestamp.
const TIMESTAMP_SIZE = 12

// maxZoneOffsetMinutes bounds the timezone field, larger offsets are treated as unspecified.
const maxZoneOffsetMinutes = 24 * 60

// Timestamp is a raw 12 byte UDF timestamp.
//
//	bytes 0-1: type (bits 12-15) and signed 12-bit timezone offset in minutes
//	bytes 2-3: year
//	bytes 4-8: month, day, hour, minute, second
//	bytes 9-11: centiseconds, hundreds of microseconds, microseconds
type Timestamp [TIMESTAMP_SIZE]byte

// UnmarshalTimestamp copies a timestamp from data at offset.
func UnmarshalTimestamp(data []byte, offset int) (Timestamp, error) {
	var ts Timestamp
	raw, err := ReadBytes(data, offset, TIMESTAMP_SIZE)
	if err != nil {
		return ts, err
	}
	copy(ts[:], raw)
	return ts, nil
}

// ZoneOffset returns the timezone offset in minutes, or zero when it is out of range.
func (ts Timestamp) ZoneOffset() int {
	offset := int(Uint16(ts[:], 0) & 0x0FFF)
	if offset&0x0800 != 0 {
		offset -= 0x1000
	}
	if offset > maxZoneOffsetMinutes || offset < -maxZoneOffsetMinutes {
		return 0
	}
	return offset
}

// Time converts the timestamp. A timestamp that does not describe a real calendar date yields the
// current wall clock time.
func (ts Timestamp) Time() time.Time {
	year := int(Uint16(ts[:], 2))
	month, day := int(ts[4]), int(ts[5])
	hour, minute, second := int(ts[6]), int(ts[7]), int(ts[8])

	if year < 1 || month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || second > 59 {
		return time.Now()
	}
	if day > daysIn(time.Month(month), year) {
		return time.Now()
	}

	loc := time.UTC
	if offset := ts.ZoneOffset(); offset != 0 {
		loc = time.FixedZone("", offset*60)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
}

// MarshalTimestamp encodes t with its zone offset and the local-time type.
func MarshalTimestamp(t time.Time) Timestamp {
	var ts Timestamp
	_, offsetSec := t.Zone()
	offset := offsetSec / 60
	PutUint16(ts[:], 0, uint16(1<<12)|uint16(offset)&0x0FFF)
	PutUint16(ts[:], 2, uint16(t.Year()))
	ts[4] = byte(t.Month())
	ts[5] = byte(t.Day())
	ts[6] = byte(t.Hour())
	ts[7] = byte(t.Minute())
	ts[8] = byte(t.Second())
	return ts
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
