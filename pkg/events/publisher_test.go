package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "timetable.change_request.approved", Subject(DefaultSubjectPrefix, "change_request.approved"))
	assert.Equal(t, "change_request.approved", Subject("", "change_request.approved"))
}

func TestEncodeEnvelope(t *testing.T) {
	at := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	raw, err := Encode("change_request.rejected", map[string]string{"id": "req-1"}, at)
	require.NoError(t, err)

	var decoded struct {
		Type      string            `json:"type"`
		Data      map[string]string `json:"data"`
		Timestamp time.Time         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "change_request.rejected", decoded.Type)
	assert.Equal(t, "req-1", decoded.Data["id"])
	assert.True(t, at.Equal(decoded.Timestamp))
}

func TestNopPublisher(t *testing.T) {
	var p NopPublisher
	assert.NoError(t, p.Publish(context.Background(), "anything", nil))
	p.Close()
}
