package controllers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleTime(t *testing.T) {
	want := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	var body struct {
		At FlexibleTime `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"2026-03-02T10:30:00+01:00"}`), &body))
	assert.True(t, want.Equal(body.At.Time))
	assert.Equal(t, time.UTC, body.At.Location())

	require.NoError(t, json.Unmarshal([]byte(`{"at":1772443800000}`), &body))
	assert.True(t, want.Equal(body.At.Time))

	body.At = FlexibleTime{}
	require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &body))
	assert.Nil(t, body.At.Ptr())

	assert.Error(t, json.Unmarshal([]byte(`{"at":"yesterday"}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"at":true}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"at":1.5}`), &body))
}
