package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retryIf func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		RetryIf:     retryIf,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastPolicy(nil), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastPolicy(nil), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), fastPolicy(nil), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	retryIf := func(err error) bool { return !errors.Is(err, fatal) }

	_, err := Do(context.Background(), fastPolicy(retryIf), func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Minute,
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDelay_Caps(t *testing.T) {
	p := Policy{
		BaseDelay: time.Second,
		MaxDelay:  4 * time.Second,
	}

	assert.Equal(t, time.Second, p.delay(2))
	assert.Equal(t, 2*time.Second, p.delay(3))
	assert.Equal(t, 4*time.Second, p.delay(4))
	assert.Equal(t, 4*time.Second, p.delay(5))
}
