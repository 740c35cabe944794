package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const timingsBody = `{
  "code": 200,
  "status": "OK",
  "data": {
    "timings": {
      "Fajr": "04:48 (+03)",
      "Sunrise": "06:07 (+03)",
      "Dhuhr": "12:05 (+03)",
      "Asr": "15:28 (+03)",
      "Sunset": "18:03 (+03)",
      "Maghrib": "18:20 (+03)",
      "Isha": "19:13 (+03)",
      "Imsak": "04:38 (+03)",
      "Midnight": "23:48 (+03)"
    },
    "date": {
      "readable": "10 Mar 2024",
      "timestamp": "1710054000",
      "hijri": {
        "date": "29-08-1445",
        "day": "29",
        "month": {"number": 8, "en": "Shaʿbān", "ar": "شَعْبان"},
        "year": "1445",
        "designation": {"abbreviated": "AH", "expanded": "Anno Hegirae"}
      },
      "gregorian": {
        "date": "10-03-2024",
        "day": "10",
        "weekday": {"en": "Sunday"},
        "month": {"number": 3, "en": "March"},
        "year": "2024"
      }
    },
    "meta": {
      "latitude": 32.616,
      "longitude": 44.0249,
      "timezone": "Asia/Baghdad",
      "method": {"id": 0, "name": "Shia Ithna-Ansari"},
      "school": "STANDARD"
    }
  }
}`

func TestResponseDecode(t *testing.T) {
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(timingsBody), &resp))

	assert.Equal(t, 200, resp.Code)
	assert.Len(t, resp.Data.Timings, 9)
	assert.Equal(t, "04:48 (+03)", resp.Data.Timings["Fajr"], "zone suffix is left for the schedule builder")

	d := resp.Data.Date
	assert.Equal(t, "10-03-2024", d.Gregorian.Date)
	assert.Equal(t, "Sunday", d.Gregorian.Weekday.En)
	assert.Equal(t, 3, d.Gregorian.Month.Number)
	assert.Equal(t, 8, d.Hijri.Month.Number)
	assert.Equal(t, "29 Shaʿbān 1445 AH", d.Hijri.Format())

	m := resp.Data.Meta
	assert.Equal(t, "Asia/Baghdad", m.Timezone)
	assert.Equal(t, 0, m.Method.ID)
	assert.InDelta(t, 32.616, m.Latitude, 1e-9)
}

func TestHijriDateFormat(t *testing.T) {
	ramadan := HijriMonth{Number: 9, En: "Ramaḍān", Ar: "رَمَضان"}

	cases := map[string]struct {
		h    HijriDate
		want string
	}{
		"designation from api": {
			h:    HijriDate{Day: "01", Month: ramadan, Year: "1445", Designation: HijriDesignation{Abbreviated: "AH"}},
			want: "01 Ramaḍān 1445 AH",
		},
		"designation defaults": {
			h:    HijriDate{Day: "14", Month: ramadan, Year: "1445"},
			want: "14 Ramaḍān 1445 AH",
		},
		"arabic name alone is not enough": {
			h:    HijriDate{Day: "14", Month: HijriMonth{Number: 9, Ar: "رَمَضان"}, Year: "1445"},
			want: "",
		},
		"no day":  {h: HijriDate{Month: ramadan, Year: "1445"}},
		"no year": {h: HijriDate{Day: "14", Month: ramadan}},
		"zero":    {},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.h.Format())
		})
	}
}
