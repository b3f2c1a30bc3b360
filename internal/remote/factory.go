package remote

import (
	"fmt"
	"net/http"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// NewServiceFromConfig creates a RemoteService implementation based on the remote config type.
func NewServiceFromConfig(cfg config.RemoteConfig, logger docchat.Logger) (docchat.RemoteService, error) {
	switch cfg.Type {
	case "http", "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http remote requires base_url to be set")
		}
		return NewHTTPService(cfg.BaseURL, &http.Client{}, logger), nil
	case "memory":
		return NewMemoryService(docchat.RealClock{}, docchat.UUIDGenerator{}), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
