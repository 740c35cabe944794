package widget

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

type recordingPublisher struct {
	sent [][]byte
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, payload)
	return nil
}

func sampleNext(name prayer.Name, ts int64) *prayer.NextPrayer {
	return &prayer.NextPrayer{
		Entry:       prayer.Entry{Name: name, DisplayTime: "18:30", Timestamp: ts},
		RemainingMs: 60_000,
	}
}

func TestBuildPayload(t *testing.T) {
	s := &prayer.Schedule{
		Timezone: "Asia/Baghdad",
		City:     &prayer.City{Name: "Karbala", Country: "Iraq"},
	}
	p := BuildPayload(s, sampleNext(prayer.Maghrib, 1710084600000), "ar", "dark")

	assert.Equal(t, "Maghrib", p.NextPrayer)
	assert.Equal(t, int64(1710084600000), p.FireAt)
	assert.Equal(t, "18:30", p.DisplayTime)
	assert.Equal(t, "Asia/Baghdad", p.Timezone)
	assert.Equal(t, "Karbala, Iraq", p.CityLabel)
	assert.Equal(t, "ar", p.Language)
	assert.Equal(t, DarkTheme, p.Theme)
}

func TestPayload_FlatJSON(t *testing.T) {
	data, err := json.Marshal(BuildPayload(nil, sampleNext(prayer.Isha, 1), "en", "light"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	colors := 0
	for k, v := range m {
		if len(k) > 5 && k[:5] == "color" {
			colors++
			assert.Regexp(t, `^#[0-9A-F]{6}$`, v)
		}
	}
	assert.Equal(t, 8, colors, "exactly eight theme colors at the top level")
	assert.Equal(t, "Isha", m["nextPrayer"])
}

func TestThemeNamed(t *testing.T) {
	assert.Equal(t, DarkTheme, ThemeNamed("dark"))
	assert.Equal(t, LightTheme, ThemeNamed("light"))
	assert.Equal(t, LightTheme, ThemeNamed(""))
}

func TestBridge_PushesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	b := NewBridge(pub)

	p := BuildPayload(nil, sampleNext(prayer.Asr, 100), "en", "light")

	sent, err := b.Push(ctx, p)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = b.Push(ctx, p)
	require.NoError(t, err)
	assert.False(t, sent, "identical payload is not re-sent")

	// Theme change is a change.
	p.Theme = DarkTheme
	sent, err = b.Push(ctx, p)
	require.NoError(t, err)
	assert.True(t, sent)

	// Next prayer change is a change.
	sent, err = b.Push(ctx, BuildPayload(nil, sampleNext(prayer.Maghrib, 200), "en", "dark"))
	require.NoError(t, err)
	assert.True(t, sent)

	assert.Len(t, pub.sent, 3)
}

func TestBridge_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	b := NewBridge(pub)
	p := BuildPayload(nil, sampleNext(prayer.Asr, 100), "en", "light")

	_, err := b.Push(ctx, p)
	require.Error(t, err)
	_, ok := b.Last()
	assert.False(t, ok)

	pub.err = nil
	sent, err := b.Push(ctx, p)
	require.NoError(t, err)
	assert.True(t, sent, "a failed push must be retried with the same payload")

	last, ok := b.Last()
	assert.True(t, ok)
	assert.Equal(t, p, last)
}

func TestBridge_NilPublisher(t *testing.T) {
	b := NewBridge(nil)
	sent, err := b.Push(context.Background(), BuildPayload(nil, nil, "en", "light"))
	require.NoError(t, err)
	assert.True(t, sent)
}
