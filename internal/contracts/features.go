package contracts

import "time"

// Point is one entry of an indicator's stored series
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Feature windows
const (
	WindowShort  = 20
	WindowMedium = 250
	WindowLong   = 1250
	ZScoreWindow = 20
	SlopeWindow  = 5
)

// FeatureVector is the statistical context of an indicator's latest value
type FeatureVector struct {
	Value          *float64 `json:"value"`
	Percentile20   float64  `json:"percentile_20"`
	Percentile250  float64  `json:"percentile_250"`
	Percentile1250 float64  `json:"percentile_1250"`
	ZScore         float64  `json:"z_score"`
	Slope          float64  `json:"slope"`
	Samples        int      `json:"samples"`
}

// NeutralFeatures is returned when no series exists yet
func NeutralFeatures() FeatureVector {
	return FeatureVector{
		Percentile20:   50,
		Percentile250:  50,
		Percentile1250: 50,
	}
}
