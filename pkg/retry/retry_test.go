package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo(t *testing.T) {
	boom := errors.New("boom")
	fatal := errors.New("fatal")

	tests := []struct {
		name      string
		failTimes int
		failErr   error
		attempts  int
		wantCalls int
		wantErr   error
	}{
		{"first try succeeds", 0, boom, 3, 1, nil},
		{"succeeds on last attempt", 2, boom, 3, 3, nil},
		{"exhausts attempts", 5, boom, 3, 3, boom},
		{"zero attempts runs once", 5, boom, 0, 1, boom},
		{"stop error is not retried", 5, fatal, 3, 1, fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), tt.attempts, time.Millisecond, func(ctx context.Context) error {
				calls++
				if calls <= tt.failTimes {
					return tt.failErr
				}
				return nil
			}, func(err error) bool { return errors.Is(err, fatal) })

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 5, time.Hour, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
