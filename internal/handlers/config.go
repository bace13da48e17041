package handlers

import (
	"net/http"

	"github.com/jikku/jomi-links/internal/config"
)

// ConfigHandler returns the effective deep-link configuration (development only)
func ConfigHandler(cfg *config.Config, article *ArticleHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if !cfg.IsDevelopment() {
			http.NotFound(w, r)
			return
		}

		sanitized := map[string]interface{}{
			"server": map[string]interface{}{
				"port": cfg.Server.Port,
				"env":  cfg.Server.Env,
			},
			"links":   article.Describe(),
			"handoff": cfg.Handoff,
			"tls": map[string]interface{}{
				"enabled": cfg.TLSEnabled(),
				"domain":  cfg.TLS.Domain,
			},
		}

		writeJSON(w, http.StatusOK, sanitized)
	}
}
