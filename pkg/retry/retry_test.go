package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

var errRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 5 {
		t.Errorf("expected MaxRetries=5, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 200*time.Millisecond {
		t.Errorf("expected InitialDelay=200ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(3), nil, "connect", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "ok" {
		t.Errorf("expected result ok, got %q", got)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterTransientErrors(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(3), nil, "connect", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errRefused
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("expected no error after retries, got %v", err)
	}
	if got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(2), nil, "connect", func(context.Context) (int, error) {
		calls++
		return 0, errRefused
	})
	if !errors.Is(err, errRefused) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	permanent := errors.New("password authentication failed for user \"tenantsql\"")
	calls := 0
	_, err := Do(context.Background(), fastConfig(3), nil, "connect", func(context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	_, err := Do(ctx, cfg, nil, "connect", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errRefused
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_NilConfig(t *testing.T) {
	got, err := Do(context.Background(), nil, nil, "connect", func(context.Context) (bool, error) {
		return true, nil
	})
	if err != nil || !got {
		t.Errorf("expected success with nil config, got %v, %v", got, err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errRefused, true},
		{"wrapped connection reset", fmt.Errorf("ping: %w", errors.New("read: connection reset by peer")), true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"starting up", &pgconn.PgError{Code: "57P03", Message: "the database system is starting up"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"auth failure", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, false},
		{"unknown database", &pgconn.PgError{Code: "3D000"}, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("connect: %w", context.DeadlineExceeded), false},
		{"syntax", errors.New("syntax error at or near \"SELEC\""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
