package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	defaultTimeout   = 10 * time.Second
)

// Options configures a relay Client.
type Options struct {
	URL        string
	Provider   shield.Provider
	AuthKey    *ecdsa.PrivateKey // signs X-Flashbots-Signature
	AuthHeader string            // Authorization header for other relays
	RateLimit  float64           // requests per second, <= 0 unlimited
	Timeout    time.Duration
}

// Client submits protected envelopes to a relay.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Receipt is what the relay acknowledged. TxHash falls back to the signature
// hash when the relay only returns a bundle hash.
type Receipt struct {
	TxHash     common.Hash `json:"txHash"`
	BundleHash common.Hash `json:"bundleHash,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewClient creates a relay client. A nil httpClient uses one bounded by
// opts.Timeout.
func NewClient(opts Options, httpClient *http.Client, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return &Client{
		httpClient: httpClient,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Submit posts the payload body to the relay. Transport failures, non-200
// responses and JSON-RPC errors are RelaySubmissionError.
func (c *Client) Submit(ctx context.Context, payload shield.ProviderPayload) (Receipt, error) {
	if !payload.Protected() {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", fmt.Errorf("payload has no relay envelope"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(payload.Body))
	if err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	if err := c.authenticate(req, payload); err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit",
			fmt.Errorf("%s request failed: status %d: %s", payload.Provider, resp.StatusCode, string(body)))
	}

	receipt, err := parseReceipt(body, payload.TxHash)
	if err != nil {
		return Receipt{}, types.NewError(types.KindRelaySubmission, "submit", err)
	}

	c.logger.Info("Submitted to relay",
		zap.String("provider", payload.Provider.String()),
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.String("root", payload.Root.Hex()))
	return receipt, nil
}

func (c *Client) authenticate(req *http.Request, payload shield.ProviderPayload) error {
	if payload.Provider == shield.Flashbots {
		if c.opts.AuthKey == nil {
			return fmt.Errorf("flashbots relay requires a signing key")
		}
		header, err := FlashbotsSignature(payload.Body, c.opts.AuthKey)
		if err != nil {
			return err
		}
		req.Header.Add(flashbotsXHeader, header)
		return nil
	}
	if c.opts.AuthHeader != "" {
		req.Header.Add("Authorization", c.opts.AuthHeader)
	}
	return nil
}

// FlashbotsSignature returns "address:signature" where signature signs the
// text hash of hex(keccak256(body)).
func FlashbotsSignature(body []byte, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body)))),
		key,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(key.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

// parseReceipt extracts the tracked hash: a string result, then result.txHash,
// result.tx_hash, and finally result.bundleHash with fallback as the tx hash.
func parseReceipt(body []byte, fallback common.Hash) (Receipt, error) {
	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Receipt{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return Receipt{}, fmt.Errorf("relay error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	receipt := Receipt{TxHash: fallback}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return receipt, nil
	}

	var str string
	if err := json.Unmarshal(resp.Result, &str); err == nil {
		if str != "" {
			receipt.TxHash = common.HexToHash(str)
		}
		return receipt, nil
	}

	var obj struct {
		TxHash     string `json:"txHash"`
		TxHashAlt  string `json:"tx_hash"`
		BundleHash string `json:"bundleHash"`
	}
	if err := json.Unmarshal(resp.Result, &obj); err != nil {
		return receipt, nil
	}
	switch {
	case obj.TxHash != "":
		receipt.TxHash = common.HexToHash(obj.TxHash)
	case obj.TxHashAlt != "":
		receipt.TxHash = common.HexToHash(obj.TxHashAlt)
	}
	if obj.BundleHash != "" {
		receipt.BundleHash = common.HexToHash(obj.BundleHash)
	}
	return receipt, nil
}
