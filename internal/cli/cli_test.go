package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/display"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// isolate points config and data directories at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	display.SetEnabled(false)
	return dir
}

// execute runs the CLI in-process with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// fakePrayerAPI serves a UTC day dated today.
func fakePrayerAPI(t *testing.T, status int) *int {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if status != http.StatusOK {
			http.Error(w, "upstream down", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code":   200,
			"status": "OK",
			"data": map[string]any{
				"timings": map[string]string{
					"Fajr": "05:03", "Sunrise": "06:20", "Dhuhr": "12:10",
					"Asr": "15:45", "Maghrib": "18:30", "Isha": "19:50",
				},
				"date": map[string]any{
					"gregorian": map[string]any{"date": time.Now().UTC().Format("02-01-2006")},
				},
				"meta": map[string]any{"timezone": "UTC"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	apiBaseURL = srv.URL
	t.Cleanup(func() { apiBaseURL = "" })
	return calls
}

var coords = []string{"--latitude", "33.3152", "--longitude", "44.3661"}

func TestMethodsSubcommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "", "methods")
	require.NoError(t, err)

	for _, m := range []string{"ISNA", "Muslim World League", "Umm Al-Qura", "Jafari", "Ministry of Awqaf, Jordan"} {
		assert.Contains(t, out, m)
	}
}

func TestConfig_SetGetShowReset(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "config", "set", "city", "Karbala")
	require.NoError(t, err)
	assert.Equal(t, "Set city = Karbala\n", out)

	out, err = execute(t, "", "config", "get", "city")
	require.NoError(t, err)
	assert.Equal(t, "Karbala\n", out)

	out, err = execute(t, "", "config", "set", "redis_password", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	out, err = execute(t, "", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "Karbala")
	assert.Contains(t, out, "0 (Shia Ithna-Ashari (Jafari))")
	assert.NotContains(t, out, "hunter2")

	_, err = execute(t, "", "config", "set", "school", "7")
	assert.Error(t, err)

	_, err = execute(t, "", "config", "reset")
	require.NoError(t, err)
	out, err = execute(t, "", "config", "get", "city")
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestConfigSet_DoesNotPersistEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PRAYER_NOTIFY_COUNTRY", "Iraq")

	_, err := execute(t, "", "config", "set", "city", "Najaf")
	require.NoError(t, err)

	path, err := config.Path()
	require.NoError(t, err)
	onDisk, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Najaf", onDisk.City)
	assert.Empty(t, onDisk.Country)
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)
	out, err := execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config", "prayer-notify", "config.json")+"\n", out)
}

func TestEffectiveConfig_CityFlagClearsCoordinates(t *testing.T) {
	isolate(t)
	t.Setenv("PRAYER_NOTIFY_LATITUDE", "32.6")

	out, err := execute(t, "", "config", "get", "latitude")
	require.NoError(t, err)
	assert.Equal(t, "32.6\n", out)

	out, err = execute(t, "", "config", "get", "latitude", "--city", "Najaf")
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestNext_Formats(t *testing.T) {
	isolate(t)
	fakePrayerAPI(t, http.StatusOK)

	out, err := execute(t, "", append([]string{"next", "--format", "name-and-time"}, coords...)...)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^(Fajr|Sunrise|Dhuhr|Asr|Maghrib|Isha) \d{2}:\d{2}$`), out)

	out, err = execute(t, "", append([]string{"next", "--prayers", "fajr", "--format", "name-and-time"}, coords...)...)
	require.NoError(t, err)
	assert.Equal(t, "Fajr 05:03", out)

	out, err = execute(t, "", append([]string{"next", "--prayers", "Isha", "--format", "{{.ShortName}}@{{.Time}}", "--time-format", "12h"}, coords...)...)
	require.NoError(t, err)
	assert.Equal(t, "I@7:50 PM", out)
}

func TestNext_UsesStoredSchedule(t *testing.T) {
	isolate(t)
	calls := fakePrayerAPI(t, http.StatusOK)

	for i := 0; i < 3; i++ {
		_, err := execute(t, "", append([]string{"next"}, coords...)...)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *calls)
}

func TestNext_UnknownPrayer(t *testing.T) {
	isolate(t)
	_, err := execute(t, "", append([]string{"next", "--prayers", "Fajr,Witr"}, coords...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown prayer "Witr"`)
}

func TestQuery(t *testing.T) {
	isolate(t)
	fakePrayerAPI(t, http.StatusOK)

	out, err := execute(t, "", append([]string{"query", "asr"}, coords...)...)
	require.NoError(t, err)
	assert.Equal(t, "Asr 15:45\n", out)

	out, err = execute(t, "", append([]string{"query", "maghrib", "--json"}, coords...)...)
	require.NoError(t, err)
	var q queryJSON
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, "Maghrib", q.Prayer)
	assert.Equal(t, "UTC", q.Timezone)
	assert.True(t, strings.HasSuffix(q.DateTimeISO, "T18:30:00.000Z"), q.DateTimeISO)

	_, err = execute(t, "", append([]string{"query", "witr"}, coords...)...)
	assert.Error(t, err)
}

func TestToday(t *testing.T) {
	isolate(t)
	fakePrayerAPI(t, http.StatusOK)

	out, err := execute(t, "", coords...)
	require.NoError(t, err)
	assert.Contains(t, out, "Prayer Times")
	assert.Contains(t, out, "33.3152, 44.3661")
	assert.Contains(t, out, "Maghrib  18:30")

	out, err = execute(t, "", append([]string{"--json"}, coords...)...)
	require.NoError(t, err)
	var got todayJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.NotNil(t, got.Schedule)
	assert.Len(t, got.Schedule.Prayers, len(prayer.Names))
	assert.NotNil(t, got.Next)
}

func TestToday_UpstreamFailure(t *testing.T) {
	isolate(t)
	fakePrayerAPI(t, http.StatusInternalServerError)

	_, err := execute(t, "", coords...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prayer times unavailable")
}

func TestCities(t *testing.T) {
	isolate(t)
	t.Setenv("PRAYER_NOTIFY_GEONAMES_USER", "demo")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/searchJSON", r.URL.Path)
		assert.Equal(t, "demo", r.URL.Query().Get("username"))
		assert.Equal(t, "10", r.URL.Query().Get("startRow"))
		w.Write([]byte(`{"totalResultsCount": 25, "geonames": [
			{"name": "Karbala", "countryName": "Iraq", "lat": "32.61603", "lng": "44.02488",
			 "population": 434450, "timezone": {"timeZoneId": "Asia/Baghdad"}}]}`))
	}))
	t.Cleanup(srv.Close)
	geonamesURL = srv.URL
	t.Cleanup(func() { geonamesURL = "" })

	out, err := execute(t, "", "cities", "karbala", "--page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Karbala")
	assert.Contains(t, out, "32.6160")
	assert.Contains(t, out, "Asia/Baghdad")
	assert.Contains(t, out, "More with --page 3.")
}

func TestCities_BadPage(t *testing.T) {
	isolate(t)
	_, err := execute(t, "", "cities", "karbala", "--page", "0")
	assert.Error(t, err)
}

func TestNotificationsStatus_WithoutDaemon(t *testing.T) {
	isolate(t)
	t.Setenv("PRAYER_NOTIFY_LISTEN_ADDR", "127.0.0.1:1")
	t.Setenv("PRAYER_NOTIFY_ALERT_FAJR", "false")

	out, err := execute(t, "", "notifications", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon not running at 127.0.0.1:1.")
	assert.Regexp(t, `Fajr\s+off`, out)
	assert.Regexp(t, `Isha\s+on`, out)
	assert.Contains(t, out, "Last sync issued 0 notification(s).")
}

func TestNotificationsStatus_FromDaemon(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		w.Write([]byte(`{"enabled": true, "meta": {"scheduleKey": "k", "notificationIds": ["a"]},
			"pending": [{"id": "a", "tag": "athan-2024-03-10", "title": "Asr", "fireAt": "2024-03-10T12:45:00Z"}]}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("PRAYER_NOTIFY_LISTEN_ADDR", strings.TrimPrefix(srv.URL, "http://"))

	out, err := execute(t, "", "notifications", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "athan-2024-03-10")
	assert.Regexp(t, `Enabled\s+on`, out)
}

func TestQuranSegment(t *testing.T) {
	isolate(t)
	in := `{"durationMs": 10000, "ayahs": [{"number": 1, "text": "aaaa"}, {"number": 2, "text": "aa"}, {"number": 3, "text": "aaaa"}]}`

	out, err := execute(t, in, "quran", "segment")
	require.NoError(t, err)
	assert.Contains(t, out, "0:04.000")
	assert.Contains(t, out, "0:10.000")
	assert.Contains(t, out, "approximate")

	out, err = execute(t, in, "quran", "segment", "--duration", "20s", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"endMs": 20000`)
	assert.Contains(t, out, `"estimated": true`)
}

func TestDaemonPrefs(t *testing.T) {
	cfg := daemonPrefs(config.Defaults(), true, "0.0.0.0:9000")
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)

	cfg = daemonPrefs(config.Defaults(), false, "")
	assert.False(t, cfg.NotificationsEnabled())
	assert.Equal(t, config.Defaults().ListenAddr, cfg.ListenAddr)
}

func TestParsePrayers(t *testing.T) {
	names, err := parsePrayers(" fajr, ,Maghrib ")
	require.NoError(t, err)
	assert.Equal(t, []prayer.Name{prayer.Fajr, prayer.Maghrib}, names)

	names, err = parsePrayers("")
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestFilterEntries(t *testing.T) {
	entries := []prayer.Entry{{Name: prayer.Fajr}, {Name: prayer.Dhuhr}, {Name: prayer.Isha}}
	assert.Equal(t, entries, filterEntries(entries, nil))
	assert.Equal(t, []prayer.Entry{{Name: prayer.Isha}}, filterEntries(entries, []prayer.Name{prayer.Isha}))
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:00.000", clock(0))
	assert.Equal(t, "1:05.250", clock(65250))
}

// buildBinary compiles the prayer-notify binary to a temp directory.
func buildBinary(t *testing.T, ldflags string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "prayer-notify")

	args := []string{"build"}
	if ldflags != "" {
		args = append(args, "-ldflags", ldflags)
	}
	args = append(args, "-o", binPath, "../../cmd/prayer-notify")

	cmd := exec.Command("go", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}
	return binPath
}

func TestVersionFlag(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binPath := buildBinary(t, "-X main.version=v1.2.3-test")

	out, err := exec.Command(binPath, "--version").Output()
	require.NoError(t, err)
	assert.Equal(t, "prayer-notify version v1.2.3-test", strings.TrimSpace(string(out)))
}
