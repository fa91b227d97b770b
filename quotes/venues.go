package quotes

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbpipeline/config"
	"github.com/michaelpento.lv/arbpipeline/dex"
	"github.com/michaelpento.lv/arbpipeline/dex/httpquote"
	"github.com/michaelpento.lv/arbpipeline/dex/sushiswap"
	"github.com/michaelpento.lv/arbpipeline/dex/uniswap"
)

// DefaultVenues is the offline venue set used when none are configured.
func DefaultVenues() []dex.Venue {
	return []dex.Venue{
		dex.NewStaticVenue("venue-a", 100, 150000),
		dex.NewStaticVenue("venue-b", 101, 150000),
		dex.NewStaticVenue("venue-c", 99, 150000),
		dex.NewStaticVenue("venue-d", 102, 150000),
	}
}

// BuildVenues constructs venues from configuration. caller is required only
// for router venues.
func BuildVenues(cfgs []config.VenueConfig, caller ethereum.ContractCaller, client *http.Client) ([]dex.Venue, error) {
	if len(cfgs) == 0 {
		return DefaultVenues(), nil
	}

	venues := make([]dex.Venue, 0, len(cfgs))
	for _, c := range cfgs {
		var router common.Address
		if c.Router != "" {
			if !common.IsHexAddress(c.Router) {
				return nil, fmt.Errorf("venue %s: invalid router address %q", c.Name, c.Router)
			}
			router = common.HexToAddress(c.Router)
		}

		switch c.Kind {
		case "static":
			venues = append(venues, dex.NewStaticVenue(c.Name, c.Rate, c.GasEstimate))
		case "uniswap":
			if caller == nil {
				return nil, fmt.Errorf("venue %s: router venues need an RPC connection", c.Name)
			}
			if router == (common.Address{}) {
				router = uniswap.MainnetRouter
			}
			venues = append(venues, uniswap.NewRouterVenue(c.Name, router, caller, c.GasEstimate))
		case "sushiswap":
			if caller == nil {
				return nil, fmt.Errorf("venue %s: router venues need an RPC connection", c.Name)
			}
			venues = append(venues, sushiswap.NewRouterVenue(c.Name, router, caller, c.GasEstimate))
		case "http":
			venues = append(venues, httpquote.New(c.Name, c.URL, c.RateLimit, client))
		default:
			return nil, fmt.Errorf("venue %s: unknown kind %q", c.Name, c.Kind)
		}
	}
	return venues, nil
}
