package module

import (
	"time"

	"github.com/go-playground/validator/v10"

	"ghdistill/internal/platform/config"
	perr "ghdistill/internal/platform/errors"
)

// Options holds configuration options for the ingest service
type Options struct {
	DataDir      string        `validate:"required"`
	BaseURL      string        `validate:"required,url"`
	FetchTimeout time.Duration `validate:"gt=0"`
	MaxRetries   int           `validate:"gte=1,lte=10"`
	RetryBase    time.Duration `validate:"gt=0"`

	// optional on-disk archive cache; empty disables caching
	CacheDir      string
	CacheMaxAge   time.Duration `validate:"gte=0"`
	CacheMaxBytes int64         `validate:"gte=0"`
}

// FromConfig reads the ingest options from config with CORE_INGEST_ prefix
func FromConfig(cfg config.Conf) Options {
	ing := cfg.Prefix("CORE_INGEST_")
	return Options{
		DataDir:       ing.MayString("DATA_DIR", "data/dataset"),
		BaseURL:       ing.MayString("BASE_URL", "https://data.gharchive.org"),
		FetchTimeout:  ing.MayDuration("FETCH_TIMEOUT", 10*time.Minute),
		MaxRetries:    ing.MayInt("RETRIES", 3),
		RetryBase:     ing.MayDuration("RETRY_BASE", 500*time.Millisecond),
		CacheDir:      ing.MayString("CACHE_DIR", ""),
		CacheMaxAge:   ing.MayDuration("CACHE_MAX_AGE", 0),
		CacheMaxBytes: ing.MayInt64("CACHE_MAX_BYTES", 0),
	}
}

var validate = validator.New()

// Validate checks the options for consistency
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "ingest options")
	}
	return nil
}
