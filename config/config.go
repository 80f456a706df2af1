package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go-scooterscan/discovery"
	"go-scooterscan/geoquery"
)

// Config is everything a scan or the server needs from the environment.
type Config struct {
	Provider        string
	YandexBaseURL   string
	UrentBaseURL    string
	CredentialsFile string

	CellSize      float64
	SizeThreshold int
	ShrinkRadius  float64
	CoarseZoom    float64
	CellZoom      float64
	ZoomStep      float64
	MaxZoom       float64

	Delay      time.Duration
	Retries    int
	RetryDelay time.Duration

	OutputDir  string
	CitiesFile string
	Schedule   string
	Targets    []string

	MapsCredentials     string
	FirebaseCredentials string

	Port string
}

// FromEnv reads SCAN_* and related variables, falling back to defaults for
// anything unset. Unparseable values are reported rather than ignored.
func FromEnv() (Config, error) {
	d := discovery.DefaultOptions()
	c := Config{
		Provider:            envString("SCAN_PROVIDER", geoquery.YandexProvider),
		YandexBaseURL:       envString("YANDEX_BASE_URL", geoquery.DefaultYandexURL),
		UrentBaseURL:        envString("URENT_BASE_URL", geoquery.DefaultUrentURL),
		CredentialsFile:     envString("SCAN_CONFIG_FILE", "config.json"),
		OutputDir:           envString("SCAN_OUTPUT_DIR", "output"),
		Schedule:            os.Getenv("SCAN_SCHEDULE"),
		MapsCredentials:     os.Getenv("MAPS_CREDENTIALS"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS"),
		Port:                envString("PORT", "8080"),
	}
	c.CitiesFile = envString("SCAN_CITIES_FILE", c.OutputDir+"/cities.geojson")
	for _, t := range strings.Split(os.Getenv("SCAN_TARGETS"), ";") {
		if t = strings.TrimSpace(t); t != "" {
			c.Targets = append(c.Targets, t)
		}
	}

	p := parser{}
	c.CellSize = p.float("SCAN_CELL_SIZE", d.CellSize)
	c.SizeThreshold = p.int("SCAN_MIN_CLUSTER", d.SizeThreshold)
	c.ShrinkRadius = p.float("SCAN_SHRINK_RADIUS", d.ShrinkRadius)
	c.CoarseZoom = p.float("SCAN_COARSE_ZOOM", d.CoarseZoom)
	c.CellZoom = p.float("SCAN_CELL_ZOOM", d.CellZoom)
	c.ZoomStep = p.float("SCAN_EXPAND_ZOOM_STEP", d.ZoomStep)
	c.MaxZoom = p.float("SCAN_MAX_ZOOM", d.MaxZoom)
	c.Delay = p.duration("SCAN_DELAY", 100*time.Millisecond)
	c.Retries = p.int("SCAN_RETRIES", d.Retry.MaxAttempts)
	c.RetryDelay = p.duration("SCAN_RETRY_DELAY", d.Retry.InitialDelay)
	if err := errors.Join(p.errs...); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects settings a discovery run cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.Provider != geoquery.YandexProvider && c.Provider != geoquery.UrentProvider {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if !(c.CellSize >= discovery.MinCellSize) || math.IsInf(c.CellSize, 0) {
		errs = append(errs, fmt.Errorf("cell size must be at least %g degrees, got %g", discovery.MinCellSize, c.CellSize))
	}
	if !(c.ShrinkRadius > 0) {
		errs = append(errs, fmt.Errorf("shrink radius must be positive, got %g", c.ShrinkRadius))
	}
	if c.SizeThreshold < 1 {
		errs = append(errs, fmt.Errorf("cluster threshold must be at least 1, got %d", c.SizeThreshold))
	}
	if !(c.ZoomStep > 0) {
		errs = append(errs, fmt.Errorf("zoom step must be positive, got %g", c.ZoomStep))
	}
	if c.MaxZoom < c.CellZoom {
		errs = append(errs, fmt.Errorf("max zoom %g is below cell zoom %g", c.MaxZoom, c.CellZoom))
	}
	if c.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be at least 1, got %d", c.Retries))
	}
	if c.Delay < 0 || c.RetryDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

// Options converts the tuning values into discovery options.
func (c Config) Options() discovery.Options {
	opts := discovery.DefaultOptions()
	opts.CellSize = c.CellSize
	opts.SizeThreshold = c.SizeThreshold
	opts.ShrinkRadius = c.ShrinkRadius
	opts.CoarseZoom = c.CoarseZoom
	opts.CellZoom = c.CellZoom
	opts.ZoomStep = c.ZoomStep
	opts.MaxZoom = c.MaxZoom
	opts.Retry.MaxAttempts = c.Retries
	opts.Retry.InitialDelay = c.RetryDelay
	if opts.Retry.MaxDelay < c.RetryDelay {
		opts.Retry.MaxDelay = c.RetryDelay
	}
	return opts
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type parser struct{ errs []error }

func (p *parser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// duration accepts Go durations ("250ms") or plain seconds ("0.5").
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
