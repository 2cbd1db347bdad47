package storage

import (
	"strconv"
)

// MemoryID is a 64-bit memory identifier. It is a distinct type (rather than
// a bare int64) so that it can carry its own JSON encoding: wire payloads
// serialize it as a decimal string, since a raw JSON number loses precision
// once a client's numeric type is a float64 (every browser and most JSON
// libraries default to one).
type MemoryID int64

// String renders the ID in decimal, matching its JSON form.
func (id MemoryID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalJSON renders the ID as a quoted decimal string.
func (id MemoryID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number, so callers that still send numeric IDs are not broken.
func (id *MemoryID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*id = MemoryID(v)
	return nil
}
