package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FlexBool accepts true/false, yes/no, on/off, 1/0 and numbers in YAML.
// Quoted and unquoted forms are treated alike.
type FlexBool bool

// UnmarshalYAML implements the yaml.Unmarshaler interface for FlexBool.
func (fb *FlexBool) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: cannot unmarshal %s into FlexBool", value.Line, value.Tag)
	}
	b, err := parseFlexBool(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*fb = FlexBool(b)
	return nil
}

func parseFlexBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "off", "n":
		return false, nil
	case "true", "yes", "on", "y":
		return true, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("cannot read %q as a boolean", s)
}

// Date is a calendar date read from "2006-01-02" or an RFC 3339 timestamp.
// Dates are in UTC.
type Date struct {
	time.Time
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Date.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot unmarshal %q into Date: want YYYY-MM-DD", value.Value)
}

// MarshalYAML implements the yaml.Marshaler interface for Date.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format("2006-01-02"), nil
}
