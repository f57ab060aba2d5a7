package domain

import "time"

// RiskLevel buckets a behavioral risk score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Recommendation is what the scorer advises the verifier to do.
type Recommendation string

const (
	RecommendAllow   Recommendation = "ALLOW"
	RecommendMonitor Recommendation = "MONITOR"
	RecommendBlock   Recommendation = "BLOCK"
)

// Behavioral risk factors.
const (
	FactorNewIP         = "NEW_IP_ADDRESS"
	FactorNoHistory     = "NO_HISTORICAL_DATA"
	FactorHighFrequency = "HIGH_FREQUENCY_REQUESTS"
	FactorUnusualTime   = "UNUSUAL_TIME_PATTERN"
	FactorAnalysisError = "ANALYSIS_ERROR"
)

// BehavioralObservation is one append-only data point in a subject's request
// history. Retained for at least 24h, pruned by housekeeping.
type BehavioralObservation struct {
	ID                string
	SubjectID         string
	ClientIP          string
	Timestamp         time.Time
	FingerprintPrefix string // first 8 hex chars only
	RiskScore         float64
	RiskLevel         RiskLevel
	Factors           []string
}

// RiskAssessment is the derived output of scoring a verification attempt.
type RiskAssessment struct {
	Score          float64
	Level          RiskLevel
	Factors        []string
	Recommendation Recommendation
}

// AssessRisk buckets a clamped score into level and recommendation using the
// fixed thresholds: >=0.7 HIGH/BLOCK, >=0.4 MEDIUM/MONITOR, else LOW/ALLOW.
func AssessRisk(score float64, factors []string) RiskAssessment {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	a := RiskAssessment{Score: score, Factors: factors}
	switch {
	case score >= 0.7:
		a.Level = RiskLevelHigh
		a.Recommendation = RecommendBlock
	case score >= 0.4:
		a.Level = RiskLevelMedium
		a.Recommendation = RecommendMonitor
	default:
		a.Level = RiskLevelLow
		a.Recommendation = RecommendAllow
	}
	return a
}

// TrustLevel maps a risk level to the inverse identity security level:
// low risk means high trust.
func (a RiskAssessment) TrustLevel() SecurityLevel {
	switch a.Level {
	case RiskLevelLow:
		return SecurityLevelHigh
	case RiskLevelMedium:
		return SecurityLevelMedium
	default:
		return SecurityLevelLow
	}
}
