package bankapi

import (
	"errors"
	"fmt"

	"syntax/internal/domain/bank"
)

// NewRegistry creates a gateway for every bank with a base URL in baseURLs,
// keyed by bank id. cfg supplies the shared settings; its BaseURL is ignored.
func NewRegistry(baseURLs map[string]string, cfg Config) (bank.Registry, error) {
	gateways := make([]bank.Gateway, 0, len(baseURLs))
	for _, id := range bank.All() {
		baseURL := baseURLs[id.String()]
		if baseURL == "" {
			continue
		}
		c := cfg
		c.BaseURL = baseURL
		gw, err := New(id, c)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gateway: %w", id, err)
		}
		gateways = append(gateways, gw)
	}
	if len(gateways) == 0 {
		return nil, errors.New("no bank base URLs configured")
	}
	return bank.NewRegistry(gateways...), nil
}
