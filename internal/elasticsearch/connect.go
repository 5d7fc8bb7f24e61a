package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Connect creates a client and waits for the cluster to answer a ping,
// retrying with exponential backoff capped at 30s.
func Connect(ctx context.Context, addr, index string, log *slog.Logger, maxRetries int) (*Client, error) {
	client, err := New(addr, index, log)
	if err != nil {
		return nil, err
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	retryDelay := 2 * time.Second
	var pingErr error
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = client.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			client.log.Info("connected to elasticsearch", slog.String("addr", addr))
			return client, nil
		}
		if i == maxRetries-1 {
			break
		}

		client.log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", pingErr),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, fmt.Errorf("connect elasticsearch after %d attempts: %w", maxRetries, pingErr)
}
