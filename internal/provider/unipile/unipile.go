// Package unipile talks to LinkedIn through the Unipile API.
package unipile

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/utils"
	"go.uber.org/zap"
)

const (
	apiURL    = "https://api.unipile.com"
	userAgent = "spigell/tener-recruiter"
	name      = "unipile"
	// Max value for search limit.
	maxSearchLimit = 100
)

type Client struct {
	apiKey     string
	accountID  string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string

	wait func(ctx context.Context, d time.Duration) error
}

func New(logger *zap.Logger, apiKey, accountID string, timeout time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:    strings.TrimSpace(apiKey),
		accountID: strings.TrimSpace(accountID),
		APIURL:    apiURL,
		HTTPClient: &http.Client{
			Timeout: provider.ClampTimeout(timeout),
		},
		logger:    logger.With(zap.String("provider", name)),
		UserAgent: userAgent,
		wait:      utils.WaitFor,
	}
}

func (c *Client) Name() string {
	return name
}

var (
	_ provider.Channel        = (*Client)(nil)
	_ provider.InboundFetcher = (*Client)(nil)
)
