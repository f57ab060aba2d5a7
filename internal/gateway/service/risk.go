package service

import (
	"context"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/pkg/idx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
)

const (
	riskHistoryWindow = 24 * time.Hour
	riskSampleCap     = 100

	highFreqWindow = 5 * time.Minute
	highFreqCount  = 10

	weightNewIP         = 0.30
	weightNoHistory     = 0.20
	weightHighFrequency = 0.40
	weightUnusualTime   = 0.20

	// minorityShare is the "rarely seen" cutoff for the ip and time-of-day
	// signals.
	minorityShare = 0.10
)

// RiskService scores a verification attempt against the subject's recent
// request history. Scoring is fail secure: if history cannot be read or the
// new observation cannot be written, the caller gets HIGH/BLOCK with the
// ANALYSIS_ERROR factor.
type RiskService struct {
	Store store.Store
	Audit *AuditService

	now func() time.Time
}

func NewRiskService(st store.Store, audit *AuditService) *RiskService {
	return &RiskService{Store: st, Audit: audit, now: time.Now}
}

// Score evaluates the attempt and persists it as a new observation.
func (s *RiskService) Score(ctx context.Context, subjectID, clientIP, fingerprintPrefix string) domain.RiskAssessment {
	now := s.now().UTC()

	history, err := s.Store.Observations().ListRecentBySubject(ctx, subjectID, now.Add(-riskHistoryWindow), riskSampleCap)
	if err != nil {
		return s.failSecure(ctx, subjectID, clientIP, err)
	}

	var (
		score   float64
		factors []string
	)

	if len(history) == 0 {
		// A subject we have never seen carries only the no-history signal.
		// The other factors need history to mean anything.
		score = weightNoHistory
		factors = append(factors, domain.FactorNoHistory)
	} else {
		if ipShare(history, clientIP) < minorityShare {
			score += weightNewIP
			factors = append(factors, domain.FactorNewIP)
		}
		if countSince(history, now.Add(-highFreqWindow)) > highFreqCount {
			score += weightHighFrequency
			factors = append(factors, domain.FactorHighFrequency)
		}
		if timeOfDayShare(history, now) < minorityShare {
			score += weightUnusualTime
			factors = append(factors, domain.FactorUnusualTime)
		}
	}

	assessment := domain.AssessRisk(score, factors)

	obs := domain.BehavioralObservation{
		ID:                idx.New().String(),
		SubjectID:         subjectID,
		ClientIP:          clientIP,
		Timestamp:         now,
		FingerprintPrefix: fingerprintPrefix,
		RiskScore:         assessment.Score,
		RiskLevel:         assessment.Level,
		Factors:           assessment.Factors,
	}
	if err := s.Store.Observations().AppendObservation(ctx, obs); err != nil {
		return s.failSecure(ctx, subjectID, clientIP, err)
	}

	if assessment.Recommendation != domain.RecommendAllow {
		s.Audit.Emit(ctx, domain.SecurityEvent{
			Level:     domain.EventWarn,
			EventType: domain.EventBehavioralAnomaly,
			SubjectID: subjectID,
			ClientIP:  clientIP,
			Attributes: map[string]string{
				"risk_level":     string(assessment.Level),
				"recommendation": string(assessment.Recommendation),
			},
		})
	}

	return assessment
}

func (s *RiskService) failSecure(ctx context.Context, subjectID, clientIP string, err error) domain.RiskAssessment {
	slogx.FromContext(ctx).Error("risk analysis failed", "subject_id", subjectID, "error", err)
	s.Audit.Emit(ctx, domain.SecurityEvent{
		Level:     domain.EventError,
		EventType: domain.EventBehavioralAnomaly,
		SubjectID: subjectID,
		ClientIP:  clientIP,
		Attributes: map[string]string{
			"factor": domain.FactorAnalysisError,
		},
	})
	return domain.AssessRisk(1, []string{domain.FactorAnalysisError})
}

// ipShare is the fraction of history seen from ip.
func ipShare(history []domain.BehavioralObservation, ip string) float64 {
	if ip == "" {
		return 1 // no signal, do not penalize
	}
	matches := 0
	for _, o := range history {
		if o.ClientIP == ip {
			matches++
		}
	}
	return float64(matches) / float64(len(history))
}

func countSince(history []domain.BehavioralObservation, since time.Time) int {
	n := 0
	for _, o := range history {
		if o.Timestamp.After(since) {
			n++
		}
	}
	return n
}

// timeOfDayShare is the fraction of history whose time of day falls within
// one hour of now's, wrapping around midnight.
func timeOfDayShare(history []domain.BehavioralObservation, now time.Time) float64 {
	nowMin := now.Hour()*60 + now.Minute()
	matches := 0
	for _, o := range history {
		ts := o.Timestamp.UTC()
		diff := abs(ts.Hour()*60 + ts.Minute() - nowMin)
		if diff > 12*60 {
			diff = 24*60 - diff
		}
		if diff <= 60 {
			matches++
		}
	}
	return float64(matches) / float64(len(history))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
