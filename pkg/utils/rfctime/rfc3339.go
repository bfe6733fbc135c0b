package rfctime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Format string for date-time in RFC3339, disallowing Z as time-offset.
//
// Use it to stringify time.Time forcing timezone offset not to use "Z".
const RFC3339DateTimeFormat string = "2006-01-02T15:04:05.999-07:00"

// Format string for date-time in RFC3339, allowing Z as time-offset.
//
// Use it to parse RFC3339 date-time expression.
const RFC3339DateTimeFormatZ string = time.RFC3339Nano

// Format of dates in query parameters and entity documents: minute resolution, UTC.
const MinuteFormat string = "2006-01-02T15:04Z"

// date-time in https://www.ietf.org/rfc/rfc3339.txt .
// this is known as a subset of ISO8601 extended format.
//
// This type is useful to interchange timestamps via network/file.
//
// On unmarshalling, MinuteFormat is also accepted.
type RFC3339 time.Time

func (rfctime RFC3339) Time() time.Time {
	return time.Time(rfctime)
}

func (rfctime *RFC3339) Equal(other *RFC3339) bool {
	if (rfctime == nil) != (other == nil) {
		return false
	}
	return rfctime == nil || rfctime.Time().Equal(other.Time())
}

// Ref converts a optional time.
//
// nil is nil.
func Ref(t *time.Time) *RFC3339 {
	if t == nil {
		return nil
	}
	r := RFC3339(*t)
	return &r
}

// get string expression.
//
// It formatted by RFC3339DateTimeFormat.
func (t RFC3339) String() string {
	return time.Time(t).Format(RFC3339DateTimeFormat)
}

// Parse string to ISO8601 time.
func ParseRFC3339DateTime(s string) (RFC3339, error) {
	t, _, err := ParseMultipleFormats(s, RFC3339DateTimeFormatZ, MinuteFormat)
	return t, err
}

// when you need to parse multiple formats, use
func ParseMultipleFormats(s string, formats ...string) (RFC3339, string, error) {
	var err error
	var t time.Time
	for _, format := range formats {
		t, err = time.Parse(format, s)
		if err == nil {
			return RFC3339(t), format, nil
		}
	}
	return *new(RFC3339), "", fmt.Errorf("failed to parse %s", s)
}

// implement encoding/json.Marshaller
func (t RFC3339) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, t)), nil
}

// implement encoding/json.Unmarshaller
func (t *RFC3339) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	ret, err := ParseRFC3339DateTime(s)
	if err != nil {
		return err
	}

	*t = ret

	return nil
}

// implement yaml.Marshaler
func (t RFC3339) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// implement yaml.Unmarshaler
func (t *RFC3339) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	ret, err := ParseRFC3339DateTime(s)
	if err != nil {
		return err
	}
	*t = ret
	return nil
}
