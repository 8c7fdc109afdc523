package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/scrapedash/errors"
)

func TestDecode_URLAdd(t *testing.T) {
	raw := `{"message":"url_add","payload":{"uuid":"a","url":"http://x","status":"downloading","title":null,"h1":null,"image_src":null,"image_path":null,"error":null}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	add, ok := msg.(*URLAdd)
	require.True(t, ok)
	assert.Equal(t, KindURLAdd, add.Kind())
	assert.Equal(t, "a", add.JobID())
	assert.Equal(t, "http://x", add.Record.URL)
	assert.Equal(t, StatusDownloading, add.Record.Status)
	assert.Nil(t, add.Record.Title)
}

func TestDecode_StatusChange(t *testing.T) {
	raw := `{"message":"status_change","payload":{"uuid":"a","status":"done_parsing","title":"T","h1":"H","image_src":"s.png"}}`

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	change, ok := msg.(*StatusChange)
	require.True(t, ok)
	assert.Equal(t, "a", change.JobID())
	assert.Equal(t, StatusParsingDone, change.Status)
	assert.Equal(t, "T", Value(change.Fields.Title))
	assert.Equal(t, "H", Value(change.Fields.Heading))
	assert.Equal(t, "s.png", Value(change.Fields.ImageSource))
	assert.Nil(t, change.Fields.ImagePath)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown kind", `{"message":"url_remove","payload":{"uuid":"a"}}`},
		{"missing payload", `{"message":"status_change"}`},
		{"null payload", `{"message":"url_add","payload":null}`},
		{"status change without id", `{"message":"status_change","payload":{"status":"done"}}`},
		{"status change bad status", `{"message":"status_change","payload":{"uuid":"a","status":"exploded"}}`},
		{"url add without url", `{"message":"url_add","payload":{"uuid":"a","status":"downloading"}}`},
		{"url add wrong shape", `{"message":"url_add","payload":["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	img := "images/a.png"
	raw, err := Encode(&StatusChange{ID: "a", Status: StatusDone, Fields: Fields{ImagePath: &img}})
	require.NoError(t, err)

	msg, err := Decode(raw)
	require.NoError(t, err)
	change := msg.(*StatusChange)
	assert.Equal(t, StatusDone, change.Status)
	assert.Equal(t, img, Value(change.Fields.ImagePath))
}

func TestWire_RecordGatesFields(t *testing.T) {
	title := "early title"
	path := "images/early.png"
	w := Wire{ID: "a", URL: "http://x", Status: "downloaded", Title: &title, ImagePath: &path, Date: "2026-10-17T10:00:00Z"}

	rec, err := w.Record()
	require.NoError(t, err)
	assert.Nil(t, rec.Title)
	assert.Nil(t, rec.ImagePath)
	assert.Equal(t, time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC), rec.ScheduledAt)

	back := ToWire(rec)
	assert.Equal(t, "a", back.ID)
	assert.Equal(t, "downloaded", back.Status)
	assert.Equal(t, "2026-10-17T10:00:00Z", back.Date)
}

func TestRecord_CloneIsIndependent(t *testing.T) {
	title := "T"
	rec := Record{ID: "a", Title: &title}

	c := rec.Clone()
	*c.Title = "changed"
	assert.Equal(t, "T", *rec.Title)
}
