package models

// Complexity is the estimated clinical complexity of a transcript.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityCritical Complexity = "critical"
)

// Urgency is derived from complexity and red flags.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ModelTier is a cost/capability level of the completion service.
type ModelTier string

const (
	// TierStandard is the low-cost tier used for routine notes.
	TierStandard ModelTier = "standard"
	// TierAdvanced is the high-capability tier used when risk is detected.
	TierAdvanced ModelTier = "advanced"
)

// ModelSelection is the router's decision for one transcript.
type ModelSelection struct {
	ModelTier     ModelTier `json:"model_tier"`
	Reason        string    `json:"reason"`
	EstimatedCost float64   `json:"estimated_cost"`
	Confidence    float64   `json:"confidence"`
}

// ComplexityAnalysis is the classifier output consumed once by the router.
type ComplexityAnalysis struct {
	Complexity          Complexity     `json:"complexity"`
	RedFlags            []string       `json:"red_flags"`
	Urgency             Urgency        `json:"urgency"`
	Specialty           string         `json:"specialty"`
	Confidence          float64        `json:"confidence"`
	ModelRecommendation ModelSelection `json:"model_recommendation"`

	IndicatorMatches int  `json:"indicator_matches"`
	WordCount        int  `json:"word_count"`
	Fallback         bool `json:"fallback,omitempty"`
}
