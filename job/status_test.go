package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"downloading", StatusDownloading, true},
		{"parsing_done", StatusParsingDone, true},
		{"done_parsing", StatusParsingDone, true},
		{"cancelled", StatusCancel, true},
		{" done ", StatusDone, true},
		{"queued", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusDone, StatusError, StatusCancel, StatusFailToCancel} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Cancellable(), s)
	}
	for _, s := range []Status{StatusDownloading, StatusDownloaded, StatusParsing, StatusParsingDone, StatusImageLoad} {
		assert.False(t, s.Terminal(), s)
		assert.True(t, s.Cancellable(), s)
	}
}

func TestStatus_Active(t *testing.T) {
	assert.True(t, StatusDownloading.Active())
	assert.True(t, StatusDownloaded.Active())
	assert.False(t, StatusParsing.Active())
	assert.False(t, StatusParsingDone.Active())
	assert.False(t, StatusError.Active())
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDownloading, StatusDownloaded, true},
		{StatusDownloading, StatusParsingDone, true},
		{StatusDownloaded, StatusDone, true},
		{StatusParsingDone, StatusDownloaded, false},
		{StatusDownloaded, StatusDownloaded, false},
		{StatusParsing, StatusError, true},
		{StatusImageLoad, StatusCancel, true},
		{StatusDownloading, StatusFailToCancel, true},
		{StatusDone, StatusError, false},
		{StatusError, StatusDone, false},
		{StatusCancel, StatusFailToCancel, false},
		{StatusFailToCancel, StatusDownloading, false},
		{StatusDownloading, Status("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

// Any sequence of applied transitions is non-decreasing on the main line and
// frozen after a terminal status.
func TestStatus_MonotonicSequence(t *testing.T) {
	events := []Status{
		StatusDownloaded, StatusDownloading, StatusParsing, StatusDownloaded,
		StatusParsingDone, StatusParsing, StatusDone, StatusError, StatusDownloading,
	}

	current := StatusDownloading
	observed := []Status{current}
	for _, next := range events {
		if current.CanTransition(next) {
			current = next
			observed = append(observed, current)
		}
	}

	assert.Equal(t, []Status{StatusDownloading, StatusDownloaded, StatusParsing, StatusParsingDone, StatusDone}, observed)
	for i := 1; i < len(observed); i++ {
		assert.Greater(t, progress[observed[i]], progress[observed[i-1]])
	}
}

func TestFields_Gate(t *testing.T) {
	title, h1, src, img := "T", "H", "s.png", "images/a.png"
	f := Fields{Title: &title, Heading: &h1, ImageSource: &src, ImagePath: &img}

	early := f.Gate(StatusDownloaded)
	assert.Nil(t, early.Title)
	assert.Nil(t, early.Heading)
	assert.Nil(t, early.ImageSource)
	assert.Nil(t, early.ImagePath)

	parsed := f.Gate(StatusParsingDone)
	assert.Equal(t, "T", Value(parsed.Title))
	assert.Equal(t, "H", Value(parsed.Heading))
	assert.Equal(t, "s.png", Value(parsed.ImageSource))
	assert.Nil(t, parsed.ImagePath)

	done := f.Gate(StatusDone)
	assert.Equal(t, "images/a.png", Value(done.ImagePath))

	failed := f.Gate(StatusError)
	assert.True(t, failed.Empty())
}
