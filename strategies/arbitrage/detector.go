package arbitrage

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/arbpipeline/types"
	"go.uber.org/zap"
)

// Detector finds two-venue price discrepancies in a set of quotes.
type Detector struct {
	oracle       PriceOracle
	minProfitUSD float64
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// NewDetector creates a new arbitrage detector
func NewDetector(oracle PriceOracle, minProfitUSD float64, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		oracle:       oracle,
		minProfitUSD: minProfitUSD,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// candidate keeps discovery position next to the opportunity for stable sorting.
type candidate struct {
	opp    types.Opportunity
	profit *big.Int
}

// Detect compares every unordered pair of quotes on the same token pair and
// returns the pairs whose profit net of gas reaches the minimum, most
// profitable first. Equal profits keep discovery order. No opportunities is
// not an error.
func (d *Detector) Detect(quotes []types.Quote) []types.Opportunity {
	var found []candidate

	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			qa, qb := quotes[i], quotes[j]
			if qa.AmountIn == nil || !qa.SamePair(qb) || qa.AmountOut == nil || qb.AmountOut == nil {
				continue
			}

			// buy where the output is lower, sell where it is higher
			buy, sell := qa, qb
			if qa.AmountOut.Cmp(qb.AmountOut) > 0 {
				buy, sell = qb, qa
			}
			gross := new(big.Int).Sub(sell.AmountOut, buy.AmountOut)

			gasUnits := buy.GasEstimate
			if sell.GasEstimate > gasUnits {
				gasUnits = sell.GasEstimate
			}
			gasCost, err := d.oracle.GasCost(qa.TokenOut, gasUnits)
			if err != nil {
				d.logger.Warn("Failed to price gas",
					zap.String("buy", buy.VenueID),
					zap.String("sell", sell.VenueID),
					zap.Error(err))
				continue
			}

			net := new(big.Int).Sub(gross, gasCost)
			if net.Sign() < 0 {
				continue
			}
			usd, err := d.oracle.ToUSD(qa.TokenOut, net)
			if err != nil {
				d.logger.Warn("Failed to convert profit to USD",
					zap.String("buy", buy.VenueID),
					zap.String("sell", sell.VenueID),
					zap.Error(err))
				continue
			}
			if usd < d.minProfitUSD {
				continue
			}

			found = append(found, candidate{
				profit: net,
				opp: types.Opportunity{
					ID:                   d.newID(),
					Path:                 []common.Address{qa.TokenIn, qa.TokenOut},
					Venues:               []string{buy.VenueID, sell.VenueID},
					ExpectedProfitNative: net,
					ExpectedProfitUSD:    usd,
					GasEstimate:          gasUnits,
					InputAmount:          new(big.Int).Set(qa.AmountIn),
					OutputAmount:         new(big.Int).Set(sell.AmountOut),
					DetectedAt:           d.now(),
				},
			})
		}
	}

	sort.SliceStable(found, func(a, b int) bool {
		return found[a].profit.Cmp(found[b].profit) > 0
	})

	opportunities := make([]types.Opportunity, len(found))
	for i, c := range found {
		opportunities[i] = c.opp
	}

	if len(opportunities) > 0 {
		best := opportunities[0]
		d.logger.Info("Detected arbitrage opportunities",
			zap.Int("count", len(opportunities)),
			zap.String("buy", best.Venues[0]),
			zap.String("sell", best.Venues[1]),
			zap.Float64("profitUsd", best.ExpectedProfitUSD))
	}
	return opportunities
}
