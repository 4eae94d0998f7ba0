package backend

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkoval/paperfetch/internal/model"
)

// New builds the searcher for a backend config, selecting the implementation
// by kind.
func New(cfg model.BackendConfig, httpCfg model.HTTPConfig, limiter Limiter, logger zerolog.Logger) (Searcher, error) {
	switch cfg.SearcherKind() {
	case "scholar":
		return NewScholar(cfg, httpCfg, limiter, logger), nil
	case "mirror":
		return NewMirror(cfg, httpCfg, limiter, logger), nil
	case "openalex":
		return NewOpenAlex(cfg, httpCfg, limiter, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q for %q (supported: scholar, mirror, openalex)",
			cfg.SearcherKind(), cfg.ID)
	}
}
