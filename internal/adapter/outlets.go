package adapter

import (
	"fmt"
	"log/slog"

	"github.com/habergo/habergo/internal/config"
)

// Build constructs one adapter per configured outlet. Adding an outlet
// means adding a config entry, not touching the orchestrator.
func Build(cfg *config.Config, gate Gate, fetcher Fetcher, logger *slog.Logger) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfg.Outlets))
	for _, o := range cfg.Outlets {
		switch o.Kind {
		case "feed":
			adapters = append(adapters, NewFeedAdapter(o, gate, fetcher, logger))
		case "listing":
			adapters = append(adapters, NewListingAdapter(o, gate, fetcher, logger))
		default:
			return nil, fmt.Errorf("outlet %q: unknown kind %q", o.Name, o.Kind)
		}
	}
	return adapters, nil
}
