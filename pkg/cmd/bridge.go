package cmd

import (
	"log/slog"

	"github.com/dukex/chatflow/pkg/bridge"
)

// NewBridge routes every capability to the HTTP gateway at bridgeURL, with
// scheduling requests checked by the scheduling adapter first. Without a
// URL the router has no adapters and integration nodes fail as unsupported.
func NewBridge(bridgeURL string, logger *slog.Logger) (*bridge.Router, error) {
	router := bridge.NewRouter(logger)

	if bridgeURL == "" {
		logger.Warn("No bridge URL configured; integration nodes will fail")

		return router, nil
	}

	gateway, err := bridge.NewHTTPAdapter(bridge.HTTPConfig{BaseURL: bridgeURL}, logger)
	if err != nil {
		return nil, err
	}

	router.
		Handle(bridge.CapabilitySchedulingCreate, bridge.NewSchedulingAdapter(gateway)).
		Fallback(gateway)

	return router, nil
}
