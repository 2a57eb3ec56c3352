package extraction

import (
	"context"
	"errors"
	"io"

	"github.com/arteita/fretebot/pkg/logging"
)

// FallbackClient retries a failed completion on a second backend.
type FallbackClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackClient wraps primary; a nil fallback makes it a passthrough.
func NewFallbackClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil || c.fallback == nil {
		return resp, err
	}
	if ctx.Err() != nil {
		return LLMResponse{}, err
	}

	c.logger.Warn("primary oracle backend failed, attempting fallback", "error", err)
	// the fallback backend picks its own model
	req.Model = ""
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback oracle backend also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return LLMResponse{}, fallbackErr
	}
	return fallbackResp, nil
}

// Close releases whichever backends hold resources.
func (c *FallbackClient) Close() error {
	return errors.Join(closeClient(c.primary), closeClient(c.fallback))
}

func closeClient(client LLMClient) error {
	if closer, ok := client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
