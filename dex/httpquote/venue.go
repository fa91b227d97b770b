package httpquote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/types"
	"golang.org/x/time/rate"
)

// DefaultGasEstimate is used when the API omits gasEstimate.
const DefaultGasEstimate = 150000

// Venue quotes through a JSON quote API:
//
//	GET {base}/quote?tokenIn=&tokenOut=&amountIn=  ->  {"amountOut": "...", "gasEstimate": n}
type Venue struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type quoteResponse struct {
	AmountOut   string `json:"amountOut"`
	GasEstimate uint64 `json:"gasEstimate"`
}

// New creates an HTTP venue. requestsPerSecond <= 0 disables rate limiting.
func New(name, baseURL string, requestsPerSecond float64, client *http.Client) *Venue {
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Venue{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Name returns the venue name
func (v *Venue) Name() string {
	return v.name
}

// Quote fetches a quote. Non-200 responses and malformed bodies are
// QuoteUnavailable errors.
func (v *Venue) Quote(ctx context.Context, req dex.QuoteRequest) (*types.Quote, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("invalid input amount"))
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("rate limiter: %w", err))
	}

	q := url.Values{}
	q.Set("tokenIn", req.TokenIn.Hex())
	q.Set("tokenOut", req.TokenOut.Hex())
	q.Set("amountIn", req.AmountIn.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name,
			fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body)))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("failed to decode response: %w", err))
	}
	out, ok := new(big.Int).SetString(parsed.AmountOut, 10)
	if !ok || out.Sign() < 0 {
		return nil, types.NewError(types.KindQuoteUnavailable, v.name, fmt.Errorf("invalid amountOut %q", parsed.AmountOut))
	}
	gas := parsed.GasEstimate
	if gas == 0 {
		gas = DefaultGasEstimate
	}

	return &types.Quote{
		VenueID:     v.name,
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    new(big.Int).Set(req.AmountIn),
		AmountOut:   out,
		Price:       dex.PriceOf(req.AmountIn, out),
		GasEstimate: gas,
		ObservedAt:  v.now(),
	}, nil
}
