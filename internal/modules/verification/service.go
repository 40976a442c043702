// README: Verification service: TTL-bound code issuance/verification shared by OTP, reset and delivery flows.
package verification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"time"

	"dishpatch/internal/metrics"
	"dishpatch/internal/types"
)

const codeDigits = 6

// Issuance rate limit: per identifier, per namespace.
const (
	issueLimit  = 5
	issueWindow = time.Hour
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Issue generates and stores an n-digit code for the key. Under
// ExclusiveCreate an outstanding code makes the call fail with ErrExists and
// the remaining TTL in the result; under IdempotentRetrieve the outstanding
// code itself is returned.
func (s *Service) Issue(ctx context.Context, codeType, identifier string, ttl time.Duration, policy Policy) (IssueResult, error) {
	// Idempotent-retrieve callers legitimately repeat within the TTL, so the
	// issuance window only caps exclusive-create namespaces.
	if policy == ExclusiveCreate {
		allowed, err := s.store.AllowIssue(ctx, codeType, identifier, issueLimit, issueWindow)
		if err != nil {
			return IssueResult{}, err
		}
		if !allowed {
			return IssueResult{}, ErrRateLimited
		}
	}

	code := generateCode(codeDigits)
	ok, err := s.store.SetCodeNX(ctx, codeType, identifier, code, ttl)
	if err != nil {
		return IssueResult{}, err
	}
	if !ok {
		existing, remaining, found, err := s.store.GetCodeWithTTL(ctx, codeType, identifier)
		if err != nil {
			return IssueResult{}, err
		}
		if !found {
			// The old code expired between SETNX and GET; claim the slot now.
			if ok, err := s.store.SetCodeNX(ctx, codeType, identifier, code, ttl); err != nil || !ok {
				if err == nil {
					err = ErrExists
				}
				return IssueResult{}, err
			}
		} else {
			if policy == ExclusiveCreate {
				return IssueResult{TTL: remaining}, ErrExists
			}
			return IssueResult{Code: existing, TTL: remaining, Retrieved: true}, nil
		}
	}

	if err := s.store.InitAttempts(ctx, codeType, identifier, ttl); err != nil {
		return IssueResult{}, err
	}
	return IssueResult{Code: code, TTL: ttl}, nil
}

// Verify checks a submitted code. A match deletes the code and its attempts
// counter so the code is single-use; a mismatch burns one attempt.
func (s *Service) Verify(ctx context.Context, codeType, identifier, submitted string, maxAttempts int) error {
	code, attempts, found, err := s.store.GetCodeAndAttempts(ctx, codeType, identifier)
	if err != nil {
		return err
	}
	if !found {
		metrics.CodeVerificationsTotal.WithLabelValues("expired").Inc()
		return ErrExpired
	}
	if attempts >= int64(maxAttempts) {
		metrics.CodeVerificationsTotal.WithLabelValues("blocked").Inc()
		return ErrBlocked
	}
	if code == submitted {
		if err := s.store.DeleteCode(ctx, codeType, identifier); err != nil {
			return err
		}
		metrics.CodeVerificationsTotal.WithLabelValues("ok").Inc()
		return nil
	}

	n, err := s.store.IncrAttempts(ctx, codeType, identifier)
	if err != nil {
		return err
	}
	if n >= int64(maxAttempts) {
		metrics.CodeVerificationsTotal.WithLabelValues("blocked").Inc()
		return ErrBlocked
	}
	metrics.CodeVerificationsTotal.WithLabelValues("invalid").Inc()
	return ErrInvalid
}

// Delete removes an outstanding code, e.g. when the downstream send failed
// and the user could never receive it.
func (s *Service) Delete(ctx context.Context, codeType, identifier string) error {
	return s.store.DeleteCode(ctx, codeType, identifier)
}

// CreateResetToken mints a high-entropy token stored by presence. It is only
// called after a successful reset-purpose code verification.
func (s *Service) CreateResetToken(ctx context.Context, identifier string, ttl time.Duration) (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b[:])
	if err := s.store.SetToken(ctx, TypeResetToken, identifier, token, ttl); err != nil {
		return "", err
	}
	return token, nil
}

// CheckResetToken reports whether the token is still outstanding.
func (s *Service) CheckResetToken(ctx context.Context, identifier, token string) (bool, error) {
	return s.store.CheckToken(ctx, TypeResetToken, identifier, token)
}

// ConsumeResetToken deletes the token after the password update completes.
func (s *Service) ConsumeResetToken(ctx context.Context, identifier, token string) error {
	return s.store.DeleteToken(ctx, TypeResetToken, identifier, token)
}

// generateCode draws each digit uniformly. Not cryptographically
// unpredictable, which is acceptable for attempt-capped single-use codes.
func generateCode(digits int) string {
	b := make([]byte, digits)
	for i := range b {
		b[i] = byte('0' + mrand.Intn(10))
	}
	return string(b)
}

// DeliveryCodes adapts the service to the order module's handoff-code needs,
// keying codes by (rider, vendor, order) with the idempotent-retrieve policy.
type DeliveryCodes struct {
	svc         *Service
	ttl         time.Duration
	maxAttempts int
}

func NewDeliveryCodes(svc *Service, p CodePolicy) *DeliveryCodes {
	return &DeliveryCodes{svc: svc, ttl: p.TTL, maxAttempts: p.MaxAttempts}
}

func deliveryIdentifier(orderID, riderID, vendorID types.ID) string {
	return fmt.Sprintf("%s:%s:%s", riderID, vendorID, orderID)
}

func (d *DeliveryCodes) IssueDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID) (string, error) {
	res, err := d.svc.Issue(ctx, TypeDeliveryOC, deliveryIdentifier(orderID, riderID, vendorID), d.ttl, IdempotentRetrieve)
	if err != nil {
		return "", err
	}
	return res.Code, nil
}

func (d *DeliveryCodes) VerifyDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID, code string) error {
	return d.svc.Verify(ctx, TypeDeliveryOC, deliveryIdentifier(orderID, riderID, vendorID), code, d.maxAttempts)
}

func (d *DeliveryCodes) DeleteDeliveryCode(ctx context.Context, orderID, riderID, vendorID types.ID) error {
	return d.svc.Delete(ctx, TypeDeliveryOC, deliveryIdentifier(orderID, riderID, vendorID))
}
