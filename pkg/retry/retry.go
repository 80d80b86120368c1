package retry

import (
	"context"
	"time"
)

// Do 最多执行 attempts 次 fn，两次之间固定等待 backoff；返回最后一次的错误
// stop 返回 true 的错误不再重试
func Do(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error, stop ...func(error) bool) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		for _, s := range stop {
			if s(err) {
				return err
			}
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
