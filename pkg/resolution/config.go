package resolution

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Config is the engine configuration. It is copied on construction and on Reconfigure.
type Config struct {
	BlockingKeys []models.BlockingKey `validate:"required,min=1,dive"`
	FieldWeights map[string]float64   `validate:"dive,gte=0"`

	MaxBlockSize             int     `validate:"gte=0"`
	MinConfidence            float64 `validate:"gte=0,lte=1"`
	AutoMergeThreshold       float64 `validate:"gte=0,lte=1"`
	ManualReviewThreshold    float64 `validate:"gte=0,lte=1"`
	EnableTransitiveMatching bool

	FetchLimit          int `validate:"gte=0"`
	FindDuplicatesLimit int `validate:"gte=0"`
	CompareWorkers      int `validate:"gte=1"`

	ConfidenceBoost     float64               `validate:"gte=0,lte=1"`
	ConflictPolicy      models.ConflictPolicy `validate:"oneof=survivor most_recent"`
	DeleteRetryAttempts int                   `validate:"gte=1"`
	DeleteRetryDelay    time.Duration         `validate:"gte=0"`

	// SessionTimeout bounds one ResolveAll run. Zero disables the bound.
	SessionTimeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		BlockingKeys:             models.DefaultBlockingKeys(),
		FieldWeights:             models.DefaultFieldWeights(),
		MaxBlockSize:             1000,
		MinConfidence:            0.5,
		AutoMergeThreshold:       0.9,
		ManualReviewThreshold:    0.7,
		EnableTransitiveMatching: true,
		FetchLimit:               10000,
		FindDuplicatesLimit:      1000,
		CompareWorkers:           4,
		ConfidenceBoost:          0.1,
		ConflictPolicy:           models.ConflictPolicySurvivor,
		DeleteRetryAttempts:      3,
		DeleteRetryDelay:         100 * time.Millisecond,
		SessionTimeout:           30 * time.Minute,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges, threshold ordering and blocking key definitions
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid resolution config: %w", err)
	}
	if c.ManualReviewThreshold > c.AutoMergeThreshold {
		return fmt.Errorf("invalid resolution config: manual review threshold %v exceeds auto merge threshold %v",
			c.ManualReviewThreshold, c.AutoMergeThreshold)
	}
	if err := blocking.ValidateKeys(c.BlockingKeys); err != nil {
		return fmt.Errorf("invalid resolution config: %w", err)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.BlockingKeys = make([]models.BlockingKey, len(c.BlockingKeys))
	for i, k := range c.BlockingKeys {
		k.Fields = append([]string(nil), k.Fields...)
		if k.Params != nil {
			params := make(map[string]any, len(k.Params))
			for pk, pv := range k.Params {
				params[pk] = pv
			}
			k.Params = params
		}
		out.BlockingKeys[i] = k
	}
	out.FieldWeights = make(map[string]float64, len(c.FieldWeights))
	for k, v := range c.FieldWeights {
		out.FieldWeights[k] = v
	}
	return out
}

func (c Config) matcherConfig() matching.Config {
	return matching.Config{
		MinConfidence:         c.MinConfidence,
		AutoMergeThreshold:    c.AutoMergeThreshold,
		ManualReviewThreshold: c.ManualReviewThreshold,
		FieldWeights:          c.FieldWeights,
	}
}

func (c Config) mergeConfig() merging.Config {
	return merging.Config{
		ConfidenceBoost:     c.ConfidenceBoost,
		ConflictPolicy:      c.ConflictPolicy,
		DeleteRetryAttempts: c.DeleteRetryAttempts,
		RetryBaseDelay:      c.DeleteRetryDelay,
	}
}
