// Package layout loads ITF field-definition files and slices fixed-width
// records according to them.
//
// An ITF file describes a record as an ordered list of named fields, each a
// fixed number of ASCII bytes wide. Two dialects exist in the wild: a flat
// sequence of NAME=/LENGTH= lines, and [FIELD...] blocks carrying KEY=VALUE
// attributes. Both load into the same FrameLayout.
package layout

import (
	"fmt"
	"strings"
)

// FieldDefinition is one fixed-width field. Order within a FrameLayout
// defines its byte offset.
type FieldDefinition struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

// FrameLayout is an ordered list of fields. A loaded layout always has at
// least one field and no zero-length fields; it is not modified after load.
type FrameLayout struct {
	Fields []FieldDefinition `json:"fields"`
}

// TotalLength returns the sum of all field lengths.
func (l FrameLayout) TotalLength() int {
	total := 0
	for _, f := range l.Fields {
		total += f.Length
	}
	return total
}

// Names returns the field names in layout order.
func (l FrameLayout) Names() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate reports whether the layout satisfies the load invariants.
func (l FrameLayout) Validate() error {
	if len(l.Fields) == 0 {
		return fmt.Errorf("layout has no fields")
	}
	for i, f := range l.Fields {
		if f.Length <= 0 {
			return fmt.Errorf("field %d (%q) has non-positive length %d", i+1, f.Name, f.Length)
		}
	}
	return nil
}

func (l FrameLayout) String() string {
	parts := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		parts[i] = fmt.Sprintf("%s:%d", f.Name, f.Length)
	}
	return fmt.Sprintf("FrameLayout[%d bytes]{%s}", l.TotalLength(), strings.Join(parts, ", "))
}

// ConfigError is returned when a layout file cannot produce a usable layout.
// It is fatal at startup: nothing can be decoded without a layout.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("layout %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("layout %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RTDLayout returns the OmniSport 2000 real-time-data record used by the
// Ethernet (UDP) feed. Lane fields carry "name time" text in nine bytes.
func RTDLayout() FrameLayout {
	fields := []FieldDefinition{
		{Name: "running_time", Length: 9},
		{Name: "event_title_1", Length: 30},
		{Name: "event_title_2", Length: 30},
		{Name: "event_number", Length: 3},
		{Name: "heat_number", Length: 3},
	}
	for lane := 1; lane <= 8; lane++ {
		fields = append(fields, FieldDefinition{Name: fmt.Sprintf("lane_%d", lane), Length: 9})
	}
	return FrameLayout{Fields: fields}
}
