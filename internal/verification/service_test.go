package verification

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/NomadCrew/dojo-portal/config"
	apperrors "github.com/NomadCrew/dojo-portal/errors"
	"github.com/NomadCrew/dojo-portal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (c *captureSender) SendCode(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[email] = code
	return nil
}

type failingLimiter struct{}

func (failingLimiter) CheckLimit(context.Context, string, int, time.Duration) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func newTestService(limiter services.RateLimiterInterface, sender Sender) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	svc := NewService(store, limiter, sender,
		config.VerificationConfig{CodeTTLSeconds: 600},
		config.RateLimitConfig{CodeRequestsPerWindow: 3, WindowSeconds: 600})
	return svc, store
}

func TestService_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, _ := newTestService(services.NewLocalRateLimiter(), sender)

	issued, err := svc.Issue(ctx, " Hana@Dojo.ph")
	require.NoError(t, err)
	assert.Equal(t, "hana@dojo.ph", issued.Email)

	code := sender.codes["hana@dojo.ph"]
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = svc.Verify(ctx, "hana@dojo.ph", wrong)
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError))

	require.NoError(t, svc.Verify(ctx, "HANA@dojo.ph", code), "a wrong guess does not burn the code")

	err = svc.Verify(ctx, "hana@dojo.ph", code)
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError), "codes are single use")
}

func TestService_VerifyExpiredCode(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	svc, store := newTestService(nil, sender)

	now := start
	store.now = func() time.Time { return now }

	_, err := svc.Issue(ctx, "hana@dojo.ph")
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	err = svc.Verify(ctx, "hana@dojo.ph", sender.codes["hana@dojo.ph"])
	assert.True(t, apperrors.IsType(err, apperrors.ValidationError))
}

func TestService_IssueIsRateLimited(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(services.NewLocalRateLimiter(), &captureSender{})

	for i := 0; i < 3; i++ {
		_, err := svc.Issue(ctx, "hana@dojo.ph")
		require.NoError(t, err)
	}

	_, err := svc.Issue(ctx, "hana@dojo.ph")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.RateLimitedError, appErr.Type)
	assert.Equal(t, 429, appErr.GetHTTPStatus())

	_, err = svc.Issue(ctx, "kenji@dojo.ph")
	assert.NoError(t, err, "limits are per address")
}

func TestService_LimiterFailureAllowsIssue(t *testing.T) {
	svc, _ := newTestService(failingLimiter{}, &captureSender{})
	_, err := svc.Issue(context.Background(), "hana@dojo.ph")
	assert.NoError(t, err)
}

func TestService_IssueRejectsInvalidEmail(t *testing.T) {
	svc, _ := newTestService(nil, &captureSender{})

	for _, email := range []string{
		"", "hana", "@dojo.ph", "hana@", "ha na@dojo.ph",
		"a@b@c", "@@x", "a@.", "a<b>@c", "a@b,c",
	} {
		_, err := svc.Issue(context.Background(), email)
		assert.True(t, apperrors.IsType(err, apperrors.ValidationError), email)
	}
}

func TestService_SendFailureDropsCode(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp unavailable")}
	svc, store := newTestService(nil, sender)

	_, err := svc.Issue(context.Background(), "hana@dojo.ph")
	require.Error(t, err)
	assert.Zero(t, store.Len())
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, codeLength)
	}
}
