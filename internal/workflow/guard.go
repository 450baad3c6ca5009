package workflow

import (
	"context"
	"strings"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

// DefaultSignatureThreshold is the minimum similarity accepted for a signature.
const DefaultSignatureThreshold = 0.35

type OTPVerifier interface {
	Verify(ctx context.Context, u *user.User, code, ip string) error
}

// OTPGuard requires a valid one-time code on every routing action.
type OTPGuard struct {
	verifier OTPVerifier
}

func NewOTPGuard(verifier OTPVerifier) *OTPGuard {
	return &OTPGuard{verifier: verifier}
}

func (g *OTPGuard) Check(ctx context.Context, actor *user.User, in ActInput) error {
	code := strings.TrimSpace(in.Payload.OTPCode)
	if code == "" {
		return apperrors.ErrOTPRequired
	}
	return g.verifier.Verify(ctx, actor, code, apperrors.ClientIPFromContext(ctx))
}

// SignatureVerifier scores a submitted signature against the actor's reference.
type SignatureVerifier interface {
	Similarity(ctx context.Context, actor *user.User, signature string) (float64, error)
}

// SignatureGuard checks the approver's signature on approve.
type SignatureGuard struct {
	verifier  SignatureVerifier
	threshold float64
}

func NewSignatureGuard(verifier SignatureVerifier, threshold float64) *SignatureGuard {
	if threshold <= 0 {
		threshold = DefaultSignatureThreshold
	}
	return &SignatureGuard{verifier: verifier, threshold: threshold}
}

func (g *SignatureGuard) Check(ctx context.Context, actor *user.User, in ActInput) error {
	if in.Action != approval.ActionApprove {
		return nil
	}
	if in.Payload.Signature == "" {
		return apperrors.NewValidationFieldError("signature", "a signature is required to approve", apperrors.ErrCodeValidationFailed)
	}
	score, err := g.verifier.Similarity(ctx, actor, in.Payload.Signature)
	if err != nil {
		return apperrors.NewExternalError("signature verification unavailable", apperrors.ErrCodeVerificationUnavailable, err)
	}
	if score < g.threshold {
		return apperrors.ErrSignatureMismatch.WithDetails(map[string]interface{}{"score": score})
	}
	return nil
}
