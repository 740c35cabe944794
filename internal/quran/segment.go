// Package quran maps recitation playback positions to ayahs.
//
// Reciter audio may come with verse-level timestamps. When it does they are
// used as given. When it does not, ayah boundaries are estimated by splitting
// the audio duration in proportion to each ayah's letter count. The estimate
// is approximate: recitation pace varies and there is nothing client-side to
// check it against.
package quran

import (
	"errors"
	"fmt"
	"sort"
	"unicode"
)

// Ayah is one verse of a surah.
type Ayah struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Timestamp is a verse timing supplied with the audio.
type Timestamp struct {
	Ayah   int   `json:"ayah"`
	FromMs int64 `json:"fromMs"`
	ToMs   int64 `json:"toMs"`
}

// Segment is the playback window of one ayah, [StartMs, EndMs).
type Segment struct {
	Ayah    int   `json:"ayah"`
	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// Timeline is the segmentation of one recitation.
type Timeline struct {
	Segments []Segment `json:"segments"`
	// Estimated is set when the boundaries come from text length.
	Estimated bool `json:"estimated"`
}

var (
	ErrNoAyahs    = errors.New("no ayahs to segment")
	ErrNoDuration = errors.New("audio duration must be positive")
)

// Segments builds the timeline for ayahs. Usable timestamps win; otherwise
// durationMs is split by letter count.
func Segments(ayahs []Ayah, durationMs int64, timestamps []Timestamp) (Timeline, error) {
	if len(ayahs) == 0 {
		return Timeline{}, ErrNoAyahs
	}
	if segs, ok := fromTimestamps(ayahs, timestamps); ok {
		return Timeline{Segments: segs}, nil
	}
	if durationMs <= 0 {
		return Timeline{}, ErrNoDuration
	}
	return Timeline{Segments: estimate(ayahs, durationMs), Estimated: true}, nil
}

// fromTimestamps accepts timestamps only when every ayah has one with a
// non-empty window.
func fromTimestamps(ayahs []Ayah, timestamps []Timestamp) ([]Segment, bool) {
	if len(timestamps) == 0 {
		return nil, false
	}
	byAyah := make(map[int]Timestamp, len(timestamps))
	for _, ts := range timestamps {
		byAyah[ts.Ayah] = ts
	}

	segs := make([]Segment, 0, len(ayahs))
	for _, a := range ayahs {
		ts, ok := byAyah[a.Number]
		if !ok || ts.ToMs <= ts.FromMs || ts.FromMs < 0 {
			return nil, false
		}
		segs = append(segs, Segment{Ayah: a.Number, StartMs: ts.FromMs, EndMs: ts.ToMs})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].StartMs < segs[j].StartMs })
	return segs, true
}

func estimate(ayahs []Ayah, durationMs int64) []Segment {
	weights := make([]int64, len(ayahs))
	var total int64
	for i, a := range ayahs {
		weights[i] = letterCount(a.Text)
		total += weights[i]
	}

	segs := make([]Segment, len(ayahs))
	var cum int64
	start := int64(0)
	for i, a := range ayahs {
		cum += weights[i]
		end := durationMs * cum / total
		if i == len(ayahs)-1 {
			end = durationMs
		}
		segs[i] = Segment{Ayah: a.Number, StartMs: start, EndMs: end}
		start = end
	}
	return segs
}

// letterCount counts letters and digits, skipping whitespace, punctuation and
// combining marks such as tashkeel. Every ayah weighs at least one.
func letterCount(text string) int64 {
	var n int64
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return max(n, 1)
}

// AyahAt returns the ayah playing at positionMs.
func (t Timeline) AyahAt(positionMs int64) (int, bool) {
	segs := t.Segments
	i := sort.Search(len(segs), func(i int) bool { return segs[i].EndMs > positionMs })
	if i == len(segs) || positionMs < segs[i].StartMs {
		return 0, false
	}
	return segs[i].Ayah, true
}

// Window returns the segment of ayah.
func (t Timeline) Window(ayah int) (Segment, error) {
	for _, s := range t.Segments {
		if s.Ayah == ayah {
			return s, nil
		}
	}
	return Segment{}, fmt.Errorf("ayah %d not in timeline", ayah)
}
