package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const codeLength = 6

// Sender delivers an issued code to its owner.
type Sender interface {
	SendCode(ctx context.Context, email, code string) error
}

// LogSender writes masked deliveries to the log. Used where no mail
// integration is configured.
type LogSender struct {
	log *zap.SugaredLogger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.GetLogger().Named("verification_sender")}
}

func (s *LogSender) SendCode(_ context.Context, email, code string) error {
	s.log.Infow("Verification code issued",
		"email", logger.MaskEmail(email),
		"code", logger.MaskCode(code))
	return nil
}

// Issued describes a code that was sent.
type Issued struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service struct {
	store    CodeStore
	limiter  services.RateLimiterInterface
	sender   Sender
	ttl      time.Duration
	limit    int
	window   time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
	validate *validator.Validate
}

func NewService(store CodeStore, limiter services.RateLimiterInterface, sender Sender,
	verifyCfg config.VerificationConfig, rateCfg config.RateLimitConfig) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		sender:  sender,
		ttl:     verifyCfg.CodeTTL(),
		limit:   rateCfg.CodeRequestsPerWindow,
		window:  rateCfg.Window(),
		now:     time.Now,
		log:     logger.GetLogger().Named("verification"),

		validate: validator.New(),
	}
}

// Issue generates a fresh code for email, replacing any pending one, and sends it.
func (s *Service) Issue(ctx context.Context, email string) (Issued, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return Issued{}, apperrors.ValidationFailed("invalid email address", "")
	}

	if s.limiter != nil {
		allowed, retryAfter, err := s.limiter.CheckLimit(ctx, "verification:"+email, s.limit, s.window)
		switch {
		case err != nil:
			// Redis trouble must not lock members out of verification.
			s.log.Warnw("Rate limit check failed, allowing request", "error", err)
		case !allowed:
			return Issued{}, apperrors.RateLimited("Too many code requests. Please try again later.",
				int(math.Ceil(retryAfter.Seconds())))
		}
	}

	code, err := generateCode()
	if err != nil {
		return Issued{}, apperrors.Wrap(err, apperrors.ServerError, "failed to generate verification code")
	}

	if err := s.store.Put(ctx, email, code, s.ttl); err != nil {
		return Issued{}, apperrors.Wrap(err, apperrors.ServerError, "failed to store verification code")
	}

	if err := s.sender.SendCode(ctx, email, code); err != nil {
		_, _ = s.store.Delete(ctx, email)
		return Issued{}, apperrors.Wrap(err, apperrors.ServerError, "failed to send verification code")
	}

	return Issued{Email: email, ExpiresAt: s.now().Add(s.ttl)}, nil
}

// Verify checks code against the pending one for email. A matching code is
// consumed; a wrong code leaves the pending one in place.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	invalid := apperrors.ValidationFailed("invalid or expired verification code", "")

	if email == "" || len(code) != codeLength {
		return invalid
	}

	stored, err := s.store.Get(ctx, email)
	if apperrors.IsNotFound(err) {
		return invalid
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ServerError, "failed to read verification code")
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.log.Infow("Verification code mismatch", "email", logger.MaskEmail(email))
		return invalid
	}

	// Only the caller that actually removes the code succeeds.
	removed, err := s.store.Delete(ctx, email)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ServerError, "failed to consume verification code")
	}
	if !removed {
		return invalid
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(math.Pow10(codeLength))))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}
