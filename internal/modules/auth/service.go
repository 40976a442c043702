// README: Auth service: OTP login and the code → token → password-update reset flow.
package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dishpatch/internal/config"
	"dishpatch/internal/modules/verification"
	"dishpatch/internal/types"
)

// Sender delivers a code to the user out of band (SMS, email). Optional in
// development; a nil sender logs the code instead.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type Service struct {
	store     *Store
	codes     *verification.Service
	sender    Sender
	jwtSecret string
	tokenTTL  time.Duration
	otpCfg    config.CodePolicyConfig
	resetCfg  config.CodePolicyConfig
	resetTTL  time.Duration
	log       *slog.Logger
}

func NewService(store *Store, codes *verification.Service, sender Sender, cfg config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		codes:     codes,
		sender:    sender,
		jwtSecret: cfg.Auth.JWTSecret,
		tokenTTL:  cfg.Auth.TokenTTL,
		otpCfg:    cfg.Codes.AuthOTP,
		resetCfg:  cfg.Codes.PasswordReset,
		resetTTL:  cfg.Codes.ResetTokenTTL,
		log:       log,
	}
}

// RequestLoginOTP issues a login code for a known phone number. A send
// failure deletes the stored code so the user is not locked out of retrying
// with a code they never received.
func (s *Service) RequestLoginOTP(ctx context.Context, phone string) error {
	if _, err := s.store.GetByPhone(ctx, phone); err != nil {
		return err
	}
	res, err := s.codes.Issue(ctx, verification.TypeAuthOTP, phone, s.otpCfg.TTL, verification.ExclusiveCreate)
	if err != nil {
		return err
	}
	return s.send(ctx, verification.TypeAuthOTP, phone, res.Code)
}

// VerifyLoginOTP exchanges a valid code for a signed token.
func (s *Service) VerifyLoginOTP(ctx context.Context, phone, code string) (string, error) {
	u, err := s.store.GetByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	if err := s.codes.Verify(ctx, verification.TypeAuthOTP, phone, code, s.otpCfg.MaxAttempts); err != nil {
		return "", err
	}
	return GenerateToken(s.jwtSecret, types.Actor{ID: u.ID, Role: u.Role}, s.tokenTTL)
}

// ForgotPassword starts the reset flow by issuing a reset-purpose code.
func (s *Service) ForgotPassword(ctx context.Context, phone string) error {
	if _, err := s.store.GetByPhone(ctx, phone); err != nil {
		return err
	}
	res, err := s.codes.Issue(ctx, verification.TypePasswordResetOTP, phone, s.resetCfg.TTL, verification.ExclusiveCreate)
	if err != nil {
		return err
	}
	return s.send(ctx, verification.TypePasswordResetOTP, phone, res.Code)
}

// VerifyResetCode trades a valid reset code for a longer-lived reset token.
func (s *Service) VerifyResetCode(ctx context.Context, phone, code string) (string, error) {
	if err := s.codes.Verify(ctx, verification.TypePasswordResetOTP, phone, code, s.resetCfg.MaxAttempts); err != nil {
		return "", err
	}
	return s.codes.CreateResetToken(ctx, phone, s.resetTTL)
}

// ResetPassword completes the flow: the reset token authorises the password
// update and is consumed afterwards.
func (s *Service) ResetPassword(ctx context.Context, phone, token, newPassword string) error {
	ok, err := s.codes.CheckResetToken(ctx, phone, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, phone, string(hash)); err != nil {
		return err
	}
	return s.codes.ConsumeResetToken(ctx, phone, token)
}

func (s *Service) send(ctx context.Context, codeType, phone, code string) error {
	if s.sender == nil {
		s.log.Info("code issued (no sender configured)", "type", codeType, "phone", phone)
		return nil
	}
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		// Clean up so the slot is not occupied by a code nobody received.
		_ = s.codes.Delete(ctx, codeType, phone)
		s.log.Error("send code", "type", codeType, "phone", phone, "err", err)
		return ErrSendFailed
	}
	return nil
}
