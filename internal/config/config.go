// Package config provides persistent configuration for prayer-notify.
//
// Configuration is stored as JSON at $XDG_CONFIG_HOME/prayer-notify/config.json.
// Every key can be overridden from the environment as PRAYER_NOTIFY_<KEY>.
// The merge priority is: CLI flags > environment > config file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

const (
	appDirName     = "prayer-notify"
	configFileName = "config.json"
	storeFileName  = "state.db"

	// EnvPrefix prefixes environment overrides, e.g. PRAYER_NOTIFY_CITY.
	EnvPrefix = "PRAYER_NOTIFY"
)

// ValidKeys lists all config keys that can be set via `config set`.
var ValidKeys = []string{
	"city", "country",
	"latitude", "longitude",
	"method", "school",
	"time_format", "language", "theme",
	"prayers",
	"notifications", "athan_sound",
	"alert_fajr", "alert_dhuhr", "alert_asr", "alert_maghrib", "alert_isha",
	"store", "store_dsn", "redis_addr", "redis_password",
	"mqtt_broker", "mqtt_topic",
	"geonames_user",
	"listen_addr",
	"cache_dir",
}

// Config holds all user-configurable settings.
// Zero values mean "not set" (use defaults or auto-detect).
type Config struct {
	City       string  `json:"city,omitempty" mapstructure:"city"`
	Country    string  `json:"country,omitempty" mapstructure:"country"`
	Latitude   float64 `json:"latitude,omitempty" mapstructure:"latitude"`
	Longitude  float64 `json:"longitude,omitempty" mapstructure:"longitude"`
	Method     *int    `json:"method,omitempty" mapstructure:"method"` // pointer so we can distinguish "not set" from 0
	School     *int    `json:"school,omitempty" mapstructure:"school"`
	TimeFormat string  `json:"time_format,omitempty" mapstructure:"time_format"` // "12h" or "24h"
	Language   string  `json:"language,omitempty" mapstructure:"language"`
	Theme      string  `json:"theme,omitempty" mapstructure:"theme"`
	Prayers    string  `json:"prayers,omitempty" mapstructure:"prayers"` // comma-separated display filter

	Notifications *bool  `json:"notifications,omitempty" mapstructure:"notifications"`
	AthanSound    string `json:"athan_sound,omitempty" mapstructure:"athan_sound"`
	AlertFajr     *bool  `json:"alert_fajr,omitempty" mapstructure:"alert_fajr"`
	AlertDhuhr    *bool  `json:"alert_dhuhr,omitempty" mapstructure:"alert_dhuhr"`
	AlertAsr      *bool  `json:"alert_asr,omitempty" mapstructure:"alert_asr"`
	AlertMaghrib  *bool  `json:"alert_maghrib,omitempty" mapstructure:"alert_maghrib"`
	AlertIsha     *bool  `json:"alert_isha,omitempty" mapstructure:"alert_isha"`

	Store         string `json:"store,omitempty" mapstructure:"store"` // sqlite, postgres or redis
	StoreDSN      string `json:"store_dsn,omitempty" mapstructure:"store_dsn"`
	RedisAddr     string `json:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty" mapstructure:"redis_password"`
	MQTTBroker    string `json:"mqtt_broker,omitempty" mapstructure:"mqtt_broker"`
	MQTTTopic     string `json:"mqtt_topic,omitempty" mapstructure:"mqtt_topic"`
	GeonamesUser  string `json:"geonames_user,omitempty" mapstructure:"geonames_user"`
	ListenAddr    string `json:"listen_addr,omitempty" mapstructure:"listen_addr"`
	CacheDir      string `json:"cache_dir,omitempty" mapstructure:"cache_dir"`
}

// Defaults returns a Config with all default values applied.
func Defaults() Config {
	method := 0 // Shia Ithna-Ashari (Jafari)
	school := -1
	off := false
	return Config{
		Method:        &method,
		School:        &school,
		TimeFormat:    string(prayer.Format24h),
		Language:      "en",
		Theme:         "light",
		Notifications: &off,
		AthanSound:    string(notify.SoundDefault),
		Store:         "sqlite",
		MQTTTopic:     "prayer-notify/widget",
		ListenAddr:    "127.0.0.1:8765",
	}
}

// WithDefaults returns a copy of c with every unset field taken from Defaults.
func (c Config) WithDefaults() Config {
	d := Defaults()
	if c.Method == nil {
		c.Method = d.Method
	}
	if c.School == nil {
		c.School = d.School
	}
	if c.Notifications == nil {
		c.Notifications = d.Notifications
	}
	orDefault(&c.TimeFormat, d.TimeFormat)
	orDefault(&c.Language, d.Language)
	orDefault(&c.Theme, d.Theme)
	orDefault(&c.AthanSound, d.AthanSound)
	orDefault(&c.Store, d.Store)
	orDefault(&c.MQTTTopic, d.MQTTTopic)
	orDefault(&c.ListenAddr, d.ListenAddr)
	return c
}

func orDefault(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// Dir returns the config directory path under $XDG_CONFIG_HOME.
func Dir() (string, error) {
	if xdg.ConfigHome == "" {
		return "", errors.New("cannot determine config home directory")
	}
	return filepath.Join(xdg.ConfigHome, appDirName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// StorePath returns the SQLite file used when no store_dsn is configured:
// cache_dir if set, otherwise $XDG_DATA_HOME/prayer-notify.
func (c *Config) StorePath() string {
	dir := c.CacheDir
	if dir == "" {
		dir = filepath.Join(xdg.DataHome, appDirName)
	}
	return filepath.Join(dir, storeFileName)
}

// Load reads the config file from disk and applies environment overrides.
// If the file does not exist, it returns the overrides alone (not an error).
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	return LoadFrom(path)
}

// LoadFrom reads the config from a specific file path, then applies
// PRAYER_NOTIFY_* environment overrides. Invalid values are rejected with
// the same messages as Set.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range ValidKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadFile reads only the config file, without environment overrides. A
// missing file yields an empty Config.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every set key as Set would.
func (c *Config) Validate() error {
	var scratch Config
	for _, key := range ValidKeys {
		value, err := c.Get(key)
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}
		if err := scratch.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return c.SaveTo(path)
}

// SaveTo writes the config to a specific file path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Reset deletes the config file.
func Reset() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return ResetAt(path)
}

// ResetAt deletes the config file at a specific path.
func ResetAt(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// Set sets a config key to the given value.
// It validates the key name and parses the value into the correct type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "city":
		c.City = value
	case "country":
		c.Country = value
	case "latitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: must be a number", value)
		}
		if v < -90 || v > 90 {
			return fmt.Errorf("invalid latitude %q: must be between -90 and 90", value)
		}
		c.Latitude = v
	case "longitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: must be a number", value)
		}
		if v < -180 || v > 180 {
			return fmt.Errorf("invalid longitude %q: must be between -180 and 180", value)
		}
		c.Longitude = v
	case "method":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid method %q: must be an integer", value)
		}
		if v < 0 || v > 23 {
			return fmt.Errorf("invalid method %q: must be between 0 and 23", value)
		}
		c.Method = &v
	case "school":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid school %q: must be an integer", value)
		}
		if v != 0 && v != 1 {
			return fmt.Errorf("invalid school %q: must be 0 (Shafi) or 1 (Hanafi)", value)
		}
		c.School = &v
	case "time_format":
		if value != string(prayer.Format12h) && value != string(prayer.Format24h) {
			return fmt.Errorf("invalid time_format %q: must be \"12h\" or \"24h\"", value)
		}
		c.TimeFormat = value
	case "language":
		if value != "en" && value != "ar" {
			return fmt.Errorf("invalid language %q: must be \"en\" or \"ar\"", value)
		}
		c.Language = value
	case "theme":
		if value != "light" && value != "dark" {
			return fmt.Errorf("invalid theme %q: must be \"light\" or \"dark\"", value)
		}
		c.Theme = value
	case "prayers":
		for _, n := range strings.Split(value, ",") {
			if _, ok := prayer.ParseName(n); !ok {
				return fmt.Errorf("invalid prayer name %q in prayers list", strings.TrimSpace(n))
			}
		}
		c.Prayers = value
	case "notifications":
		return setBool(&c.Notifications, key, value)
	case "athan_sound":
		if !notify.ValidSound(value) {
			return fmt.Errorf("invalid athan_sound %q: must be one of %s", value, strings.Join(notify.SoundNames(), ", "))
		}
		c.AthanSound = value
	case "alert_fajr":
		return setBool(&c.AlertFajr, key, value)
	case "alert_dhuhr":
		return setBool(&c.AlertDhuhr, key, value)
	case "alert_asr":
		return setBool(&c.AlertAsr, key, value)
	case "alert_maghrib":
		return setBool(&c.AlertMaghrib, key, value)
	case "alert_isha":
		return setBool(&c.AlertIsha, key, value)
	case "store":
		if value != "sqlite" && value != "postgres" && value != "redis" {
			return fmt.Errorf("invalid store %q: must be sqlite, postgres or redis", value)
		}
		c.Store = value
	case "store_dsn":
		c.StoreDSN = value
	case "redis_addr":
		c.RedisAddr = value
	case "redis_password":
		c.RedisPassword = value
	case "mqtt_broker":
		c.MQTTBroker = value
	case "mqtt_topic":
		c.MQTTTopic = value
	case "geonames_user":
		c.GeonamesUser = value
	case "listen_addr":
		c.ListenAddr = value
	case "cache_dir":
		c.CacheDir = value
	default:
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(ValidKeys, ", "))
	}

	return nil
}

func setBool(dst **bool, key, value string) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: must be true or false", key, value)
	}
	*dst = &v
	return nil
}

func getBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

// Get returns the string value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "city":
		return c.City, nil
	case "country":
		return c.Country, nil
	case "latitude":
		if c.Latitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Latitude, 'f', -1, 64), nil
	case "longitude":
		if c.Longitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Longitude, 'f', -1, 64), nil
	case "method":
		if c.Method == nil {
			return "", nil
		}
		return strconv.Itoa(*c.Method), nil
	case "school":
		if c.School == nil {
			return "", nil
		}
		return strconv.Itoa(*c.School), nil
	case "time_format":
		return c.TimeFormat, nil
	case "language":
		return c.Language, nil
	case "theme":
		return c.Theme, nil
	case "prayers":
		return c.Prayers, nil
	case "notifications":
		return getBool(c.Notifications), nil
	case "athan_sound":
		return c.AthanSound, nil
	case "alert_fajr":
		return getBool(c.AlertFajr), nil
	case "alert_dhuhr":
		return getBool(c.AlertDhuhr), nil
	case "alert_asr":
		return getBool(c.AlertAsr), nil
	case "alert_maghrib":
		return getBool(c.AlertMaghrib), nil
	case "alert_isha":
		return getBool(c.AlertIsha), nil
	case "store":
		return c.Store, nil
	case "store_dsn":
		return c.StoreDSN, nil
	case "redis_addr":
		return c.RedisAddr, nil
	case "redis_password":
		return c.RedisPassword, nil
	case "mqtt_broker":
		return c.MQTTBroker, nil
	case "mqtt_topic":
		return c.MQTTTopic, nil
	case "geonames_user":
		return c.GeonamesUser, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "cache_dir":
		return c.CacheDir, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// MethodOrDefault returns the method value, falling back to the given default.
func (c *Config) MethodOrDefault(def int) int {
	if c.Method != nil {
		return *c.Method
	}
	return def
}

// SchoolOrDefault returns the school value, falling back to the given default.
func (c *Config) SchoolOrDefault(def int) int {
	if c.School != nil {
		return *c.School
	}
	return def
}

// NotificationsEnabled reports the master notification switch. Off unless set.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications != nil && *c.Notifications
}

// Format returns the configured time format, 24h unless set to 12h.
func (c *Config) Format() prayer.TimeFormat {
	if c.TimeFormat == string(prayer.Format12h) {
		return prayer.Format12h
	}
	return prayer.Format24h
}

// Sound returns the configured Athan sound.
func (c *Config) Sound() notify.SoundKey {
	if c.AthanSound == "" {
		return notify.SoundDefault
	}
	return notify.SoundKey(c.AthanSound)
}

// PrayerAlerts returns the per-prayer notification flags for every
// notifiable prayer. Unset flags are on.
func (c *Config) PrayerAlerts() map[prayer.Name]bool {
	flags := map[prayer.Name]*bool{
		prayer.Fajr:    c.AlertFajr,
		prayer.Dhuhr:   c.AlertDhuhr,
		prayer.Asr:     c.AlertAsr,
		prayer.Maghrib: c.AlertMaghrib,
		prayer.Isha:    c.AlertIsha,
	}
	out := make(map[prayer.Name]bool, len(flags))
	for name, f := range flags {
		out[name] = f == nil || *f
	}
	return out
}

// PrayerFilter returns the prayers named by the display filter, or nil for
// all of them.
func (c *Config) PrayerFilter() []prayer.Name {
	if strings.TrimSpace(c.Prayers) == "" {
		return nil
	}
	var names []prayer.Name
	for _, s := range strings.Split(c.Prayers, ",") {
		if n, ok := prayer.ParseName(s); ok {
			names = append(names, n)
		}
	}
	return names
}
