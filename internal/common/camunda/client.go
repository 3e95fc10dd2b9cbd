// internal/common/camunda/client.go
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"ctp-notifications/internal/common/config"
	"ctp-notifications/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultTopologyTimeout = 10 * time.Second

// Client owns the gateway connection the document-written workers poll through.
type Client struct {
	zb      zbc.Client
	timeout time.Duration
}

// NewClient dials the gateway and fails unless the broker answers a topology request.
func NewClient(cfg config.CamundaConfig) (*Client, error) {
	zb, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: !cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTopologyTimeout
	}
	c := &Client{zb: zb, timeout: timeout}
	if err := c.HealthCheck(context.Background()); err != nil {
		zb.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) GetClient() zbc.Client { return c.zb }

func (c *Client) Close() error { return c.zb.Close() }

// HealthCheck asks the gateway for the broker topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.zb.NewTopologyCommand().Send(ctx); err != nil {
		return classify(err, "topology")
	}
	return nil
}

// IsRetryable reports whether a gateway error is worth another attempt. gRPC status codes
// decide when present; bare transport errors fall back to their message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		default:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection refused", "connection reset", "broken pipe", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func classify(err error, operation string) error {
	wrapped := fmt.Errorf("Zeebe operation '%s' failed: %w", operation, err)

	code := status.Code(err)
	switch {
	case code == codes.DeadlineExceeded || stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeoutError("zeebe", wrapped)
	case code == codes.PermissionDenied || code == codes.Unauthenticated:
		return errors.NewAuthenticationError(wrapped.Error())
	}
	stdErr := errors.NewExternalServiceError("zeebe", wrapped)
	stdErr.Retryable = IsRetryable(err)
	return stdErr
}
