package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/idp"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
)

const (
	// DefaultVerifyBudget is the hard wall-clock limit for a whole
	// verification, all steps included.
	DefaultVerifyBudget = 5 * time.Second

	maxSessionAge    = 24 * time.Hour
	maxCredentialAge = 1 * time.Hour
)

// VerifyResult is a successful verification: the decoded identity with its
// computed trust level, plus the behavioral assessment that produced it.
type VerifyResult struct {
	Identity domain.Identity
	Risk     domain.RiskAssessment
}

// VerifierService runs the full credential verification pipeline: shape
// check, provider verification with revocation, claim checks, replay check,
// behavioral scoring and fingerprint consumption. Order matters; nothing
// returns success before the fingerprint is recorded.
type VerifierService struct {
	IdP      idp.Adapter
	Replay   *ReplayGuard
	Audit    *AuditService
	Audience string
	Budget   time.Duration

	now func() time.Time
}

func NewVerifierService(adapter idp.Adapter, replay *ReplayGuard, audit *AuditService, audience string) *VerifierService {
	return &VerifierService{
		IdP:      adapter,
		Replay:   replay,
		Audit:    audit,
		Audience: audience,
		Budget:   DefaultVerifyBudget,
		now:      time.Now,
	}
}

// Verify authenticates a raw bearer credential. Every failure path returns a
// *faults.Fault; any uncertainty rejects.
func (s *VerifierService) Verify(ctx context.Context, rawCredential, clientIP, userAgent string) (VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Budget)
	defer cancel()

	res, err := s.verify(ctx, rawCredential, clientIP)
	if err != nil {
		f := faults.Classify(err)
		s.Audit.Emit(ctx, domain.SecurityEvent{
			Level:     domain.EventWarn,
			EventType: domain.EventAuthFailure,
			ClientIP:  clientIP,
			Attributes: map[string]string{
				"kind":       string(f.Kind),
				"user_agent": userAgent,
			},
		})
		return VerifyResult{}, f
	}

	s.Audit.Emit(ctx, domain.SecurityEvent{
		EventType: domain.EventAuthSuccess,
		SubjectID: res.Identity.SubjectID,
		ClientIP:  clientIP,
		Attributes: map[string]string{
			"security_level": string(res.Identity.SecurityLevel),
			"sign_in_method": res.Identity.SignInMethod,
		},
	})
	return res, nil
}

func (s *VerifierService) verify(ctx context.Context, rawCredential, clientIP string) (VerifyResult, error) {
	now := s.now().UTC()

	// 1. shape
	if err := validateCredentialShape(rawCredential, now); err != nil {
		return VerifyResult{}, err
	}

	// 2. provider verification with revocation check
	identity, err := s.IdP.VerifyToken(ctx, rawCredential, true)
	if err != nil {
		return VerifyResult{}, mapProviderError(err)
	}

	// 3. claim checks
	if err := s.checkClaims(identity, now); err != nil {
		return VerifyResult{}, err
	}

	// 4. replay check
	fingerprint := credentialFingerprint(identity)
	check, err := s.Replay.Check(ctx, fingerprint, identity.SubjectID, clientIP)
	if err != nil {
		return VerifyResult{}, faults.Wrap(faults.KindReplayDetected, err, "replay check unavailable")
	}
	if check.Blacklisted {
		return VerifyResult{}, faults.New(faults.KindReplayDetected,
			"credential %s consumed at %s", prefix(fingerprint), check.Since.Format(time.RFC3339))
	}

	// 5. behavioral gate
	if check.Risk.Recommendation == domain.RecommendBlock {
		return VerifyResult{}, faults.New(faults.KindBehavioralAnomaly,
			"risk %s for subject %s", check.Risk.Level, identity.SubjectID)
	}

	// 6. consume the fingerprint. Success without this recorded would let
	// another replica accept the same credential.
	if err := s.Replay.Record(ctx, fingerprint, identity.SubjectID, domain.BlacklistReasonConsumed); err != nil {
		return VerifyResult{}, faults.Wrap(faults.KindReplayDetected, err, "fingerprint record failed")
	}

	// 7. low risk means high trust
	identity.SecurityLevel = check.Risk.TrustLevel()
	return VerifyResult{Identity: identity, Risk: check.Risk}, nil
}

func (s *VerifierService) checkClaims(id domain.Identity, now time.Time) error {
	if id.SubjectID == "" || id.Email == "" {
		return faults.New(faults.KindAuthRequired, "credential missing subject or email")
	}
	if !domain.ValidSubjectID(id.SubjectID) {
		return faults.New(faults.KindAuthRequired, "subject id out of range")
	}
	if s.Audience != "" && !slices.Contains(id.Audience, s.Audience) {
		return faults.New(faults.KindAuthRequired, "audience mismatch")
	}
	if !id.EmailVerified {
		return faults.New(faults.KindEmailNotVerified, "subject %s email unverified", id.SubjectID)
	}
	if !id.AuthTime.IsZero() && now.Sub(id.AuthTime) > maxSessionAge {
		return faults.New(faults.KindAuthExpired, "sign-in older than %s", maxSessionAge)
	}
	if !id.IssuedAt.IsZero() && now.Sub(id.IssuedAt) > maxCredentialAge {
		return faults.New(faults.KindAuthExpired, "credential older than %s", maxCredentialAge)
	}
	return nil
}

func mapProviderError(err error) error {
	switch {
	case errors.Is(err, idp.ErrTokenExpired):
		return faults.Wrap(faults.KindAuthExpired, err, "provider reports expiry")
	case errors.Is(err, idp.ErrTokenRevoked):
		return faults.Wrap(faults.KindAuthRevoked, err, "provider reports revocation")
	case errors.Is(err, idp.ErrTokenMalformed), errors.Is(err, idp.ErrTokenInvalid):
		return faults.Wrap(faults.KindAuthRequired, err, "provider rejected credential")
	case errors.Is(err, context.DeadlineExceeded):
		return faults.Wrap(faults.KindTimeout, err, "provider verification timed out")
	default:
		return faults.Wrap(faults.KindAuthRequired, err, "provider verification failed")
	}
}

// credentialFingerprint hashes the stable per-issue identifier: the jti when
// present, else issued-at concatenated with the subject. Never the raw
// credential.
func credentialFingerprint(id domain.Identity) string {
	source := id.CredentialID
	if source == "" {
		source = fmt.Sprintf("%d:%s", id.IssuedAt.Unix(), id.SubjectID)
	}
	return cryptox.Fingerprint(source)
}

// validateCredentialShape rejects obviously malformed input before any
// network or store work. Only JWT-shaped strings get the deep payload check;
// opaque tokens are the provider's problem.
func validateCredentialShape(raw string, now time.Time) error {
	if strings.TrimSpace(raw) == "" {
		return faults.New(faults.KindAuthRequired, "empty credential")
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return faults.New(faults.KindAuthRequired, "invalid token format")
	}

	var claims struct {
		Iss string `json:"iss"`
		Aud any    `json:"aud"`
		Exp int64  `json:"exp"`
		Iat int64  `json:"iat"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return faults.New(faults.KindAuthRequired, "invalid token format")
	}
	if claims.Iss == "" || claims.Aud == nil || claims.Exp == 0 || claims.Iat == 0 {
		return faults.New(faults.KindAuthRequired, "invalid token format")
	}
	if now.Unix() >= claims.Exp {
		return faults.New(faults.KindAuthExpired, "exp %d in the past", claims.Exp)
	}
	return nil
}
