package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned by LoadAPIKey when the key file is absent or empty.
var ErrMissingAPIKey = errors.New("missing directions API key")

const defaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions"

type Config struct {
	APIKeyFile    string
	RidesFile     string
	DirectionsURL string

	ArchiveRoot  string
	ArchiveTag   string
	ErrorLog     string
	ProgressFile string
	OutputFile   string
	HourlyFile   string

	APICallRate    float64 // calls per second
	FetchWorkers   int
	FetchRetries   int // retries on 429/500/503
	RequestTimeout time.Duration

	SourceUTCOffset int // hours, zone the trip data was recorded in
	LocalUTCOffset  int // hours, zone epoch conversion is anchored to
	TargetWeek      time.Time
	TargetWeekSet   bool // TARGET_WEEK given rather than defaulted

	MaxDurationMinutes int // 0 disables the long-tail trim

	DatabaseURL       string
	ResultsDBName     string
	NATSURL           string
	NATSSubjectPrefix string
	MetricsAddr       string

	LogLevel  string
	LogFormat string
}

// ArchiveDir is the per-run directory holding one <id>.json per fetched trip.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.ArchiveRoot, c.ArchiveTag)
}

// Load reads .env (if present) at the given paths and then the environment.
func Load(envFiles ...string) (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		APIKeyFile:        getenvDefault("API_KEY_FILE", "api-key.txt"),
		RidesFile:         getenvDefault("RIDES_FILE", "rides.csv"),
		DirectionsURL:     strings.TrimRight(getenvDefault("DIRECTIONS_BASE_URL", defaultDirectionsURL), "/"),
		ArchiveRoot:       getenvDefault("ARCHIVE_ROOT", "."),
		ArchiveTag:        getenvDefault("ARCHIVE_TAG", "new_archive"),
		ErrorLog:          getenvDefault("ERROR_LOG", "bad coordinates.txt"),
		ProgressFile:      getenvDefault("PROGRESS_FILE", "temp_transit_duration.csv"),
		OutputFile:        getenvDefault("OUTPUT_FILE", "transit_durations.csv"),
		HourlyFile:        getenvDefault("HOURLY_OUTPUT_FILE", "time_splits_by_hour.csv"),
		DatabaseURL:       firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")),
		ResultsDBName:     os.Getenv("RESULTS_DB_NAME"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "transit.trips"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         strings.ToLower(getenvDefault("LOG_FORMAT", "text")),
	}

	if v := os.Getenv("API_CALL_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid API_CALL_RATE: %q", v)
		}
		cfg.APICallRate = f
	} else {
		cfg.APICallRate = 25
	}

	if v := os.Getenv("FETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_WORKERS: %q", v)
		}
		cfg.FetchWorkers = n
	} else {
		cfg.FetchWorkers = 1
	}

	cfg.FetchRetries = 2
	if v := os.Getenv("FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FETCH_RETRIES: %q", v)
		}
		cfg.FetchRetries = n
	}

	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT_SEC: %q", v)
		}
		cfg.RequestTimeout = time.Duration(sec) * time.Second
	} else {
		cfg.RequestTimeout = 10 * time.Second
	}

	var err error
	if cfg.SourceUTCOffset, err = offsetHours("SOURCE_UTC_OFFSET", -6); err != nil {
		return nil, err
	}
	if cfg.LocalUTCOffset, err = offsetHours("LOCAL_UTC_OFFSET", -5); err != nil {
		return nil, err
	}

	// Target week: any date inside the week all trips get remapped onto.
	if v := os.Getenv("TARGET_WEEK"); v != "" {
		t, err := ParseTargetWeek(v, cfg.LocalZone())
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_WEEK: %q", v)
		}
		cfg.TargetWeek = t
		cfg.TargetWeekSet = true
	} else {
		cfg.TargetWeek = time.Now().In(cfg.LocalZone()).AddDate(0, 0, 7)
	}

	if v := os.Getenv("REPORT_MAX_DURATION_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REPORT_MAX_DURATION_MIN: %q", v)
		}
		cfg.MaxDurationMinutes = n
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

// DateLayout is the TARGET_WEEK format.
const DateLayout = "2006-01-02"

// ParseTargetWeek parses a YYYY-MM-DD date in loc, anchored at noon.
func ParseTargetWeek(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(12 * time.Hour), nil
}

// LocalZone is the fixed-offset zone epoch conversion is anchored to.
func (c *Config) LocalZone() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.LocalUTCOffset), c.LocalUTCOffset*3600)
}

// LoadAPIKey reads the directions API key from path. The key is trimmed of
// surrounding whitespace; a missing or empty file is a configuration error.
func LoadAPIKey(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrMissingAPIKey, path)
		}
		return "", fmt.Errorf("read API key: %w", err)
	}
	key := strings.TrimSpace(string(content))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingAPIKey, path)
	}
	return key, nil
}

func offsetHours(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	h, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || h < -12 || h > 14 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return h, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
