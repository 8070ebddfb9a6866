package reconciliation

// Config tunes the matching engine. Weights cap the per-factor score; the
// maximum possible total is the sum of the four weights.
type Config struct {
	AmountWeight      float64 `envconfig:"RECON_AMOUNT_WEIGHT" default:"40"`
	DateWeight        float64 `envconfig:"RECON_DATE_WEIGHT" default:"30"`
	ReferenceWeight   float64 `envconfig:"RECON_REFERENCE_WEIGHT" default:"20"`
	DescriptionWeight float64 `envconfig:"RECON_DESCRIPTION_WEIGHT" default:"10"`

	// AmountToleranceFixed is the absolute difference still counted as exact.
	AmountToleranceFixed float64 `envconfig:"RECON_AMOUNT_TOLERANCE_FIXED" default:"0.01"`
	// AmountTolerancePercent bounds a "close" amount as a fraction of the
	// bank amount. Inside it the amount score decays linearly.
	AmountTolerancePercent float64 `envconfig:"RECON_AMOUNT_TOLERANCE_PERCENT" default:"0.01"`
	// DateToleranceDays is where the date score reaches zero.
	DateToleranceDays int `envconfig:"RECON_DATE_TOLERANCE_DAYS" default:"7"`

	// EnableDescriptionScoring toggles the fuzzy description factor.
	EnableDescriptionScoring bool `envconfig:"RECON_DESCRIPTION_SCORING" default:"true"`

	MinimumMatchScore         float64 `envconfig:"RECON_MIN_MATCH_SCORE" default:"50"`
	HighConfidenceThreshold   float64 `envconfig:"RECON_HIGH_CONFIDENCE" default:"85"`
	MediumConfidenceThreshold float64 `envconfig:"RECON_MEDIUM_CONFIDENCE" default:"65"`

	// MaxCombinationSize caps multi-transaction combinations. Kept small:
	// candidate sets of a few hundred rows explode combinatorially past 3.
	MaxCombinationSize int `envconfig:"RECON_MAX_COMBINATION" default:"3"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AmountWeight:              40,
		DateWeight:                30,
		ReferenceWeight:           20,
		DescriptionWeight:         10,
		AmountToleranceFixed:      0.01,
		AmountTolerancePercent:    0.01,
		DateToleranceDays:         7,
		EnableDescriptionScoring:  true,
		MinimumMatchScore:         50,
		HighConfidenceThreshold:   85,
		MediumConfidenceThreshold: 65,
		MaxCombinationSize:        3,
	}
}

// MaxScore is the ceiling a suggestion can reach under this config.
func (c Config) MaxScore() float64 {
	return c.AmountWeight + c.DateWeight + c.ReferenceWeight + c.DescriptionWeight
}
