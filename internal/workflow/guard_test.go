package workflow_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/internal/workflow"
)

type stubOTP struct {
	code, ip string
	err      error
}

func (s *stubOTP) Verify(_ context.Context, _ *user.User, code, ip string) error {
	s.code, s.ip = code, ip
	return s.err
}

type stubSignature struct {
	score float64
	err   error
}

func (s stubSignature) Similarity(context.Context, *user.User, string) (float64, error) {
	return s.score, s.err
}

func appCode(err error) apperrors.ErrorCode {
	appErr, ok := apperrors.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr.Code
}

var _ = Describe("Guards", func() {
	actor := &user.User{ID: 5, Role: approval.RoleTransportManager}

	Describe("OTPGuard", func() {
		It("demands a code before calling the verifier", func() {
			verifier := &stubOTP{}
			err := workflow.NewOTPGuard(verifier).Check(context.Background(), actor, workflow.ActInput{Action: approval.ActionForward})
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeOTPRequired))
			Expect(verifier.code).To(BeEmpty())
		})

		It("verifies the trimmed code with the caller address", func() {
			verifier := &stubOTP{}
			ctx := apperrors.ContextWithClientIP(context.Background(), "10.0.0.9")
			in := workflow.ActInput{Action: approval.ActionForward, Payload: workflow.ActPayload{OTPCode: " 123456 "}}

			Expect(workflow.NewOTPGuard(verifier).Check(ctx, actor, in)).To(Succeed())
			Expect(verifier.code).To(Equal("123456"))
			Expect(verifier.ip).To(Equal("10.0.0.9"))
		})

		It("passes verifier failures through", func() {
			verifier := &stubOTP{err: apperrors.ErrOTPLocked}
			in := workflow.ActInput{Payload: workflow.ActPayload{OTPCode: "111111"}}
			Expect(workflow.NewOTPGuard(verifier).Check(context.Background(), actor, in)).To(MatchError(apperrors.ErrOTPLocked))
		})
	})

	Describe("SignatureGuard", func() {
		approve := func(sig string) workflow.ActInput {
			return workflow.ActInput{Action: approval.ActionApprove, Payload: workflow.ActPayload{Signature: sig}}
		}

		It("only inspects approvals", func() {
			guard := workflow.NewSignatureGuard(stubSignature{score: 0}, 0)
			Expect(guard.Check(context.Background(), actor, workflow.ActInput{Action: approval.ActionForward})).To(Succeed())
		})

		It("requires a signature", func() {
			err := workflow.NewSignatureGuard(stubSignature{score: 1}, 0).Check(context.Background(), actor, approve(""))
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeValidationFailed))
		})

		It("accepts scores at the default threshold and refuses below it", func() {
			Expect(workflow.NewSignatureGuard(stubSignature{score: workflow.DefaultSignatureThreshold}, 0).
				Check(context.Background(), actor, approve("sig"))).To(Succeed())

			err := workflow.NewSignatureGuard(stubSignature{score: 0.2}, 0).Check(context.Background(), actor, approve("sig"))
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeSignatureMismatch))
		})

		It("reports an unavailable verifier as an external failure", func() {
			err := workflow.NewSignatureGuard(stubSignature{err: errors.New("timeout")}, 0.5).Check(context.Background(), actor, approve("sig"))
			Expect(appCode(err)).To(Equal(apperrors.ErrCodeVerificationUnavailable))
		})
	})
})
