package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexibleTime accepts an RFC 3339 string or epoch milliseconds, which is
// what browser sensors send from Date.now().
type FlexibleTime struct {
	time.Time
}

func (ft *FlexibleTime) UnmarshalJSON(data []byte) error {
	if ft == nil {
		return fmt.Errorf("FlexibleTime: nil receiver")
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("FlexibleTime: %w", err)
		}
		ft.Time = t.UTC()
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		ms, err := num.Int64()
		if err != nil {
			return fmt.Errorf("FlexibleTime: expected integer milliseconds, got %s", num)
		}
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	return fmt.Errorf("FlexibleTime: expected string or number, got %s", string(data))
}

// Ptr returns nil for the zero time.
func (ft *FlexibleTime) Ptr() *time.Time {
	if ft == nil || ft.IsZero() {
		return nil
	}
	t := ft.Time
	return &t
}
