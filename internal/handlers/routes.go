package handlers

import (
	"net/http"

	"github.com/jikku/jomi-links/internal/middleware"
)

// ArticlePrefixes are the path prefixes the article handler answers on.
// /api/article/ is the path used by the earlier serverless deployment.
var ArticlePrefixes = []string{"/article/", "/api/article/"}

// RegisterArticleRoutes mounts the article handler on mux. An empty id
// (/article/) reaches the handler too so it can answer 400.
func RegisterArticleRoutes(mux *http.ServeMux, article http.Handler) {
	guarded := middleware.AllowMethods(http.MethodGet, http.MethodHead)(article)

	for _, prefix := range ArticlePrefixes {
		mux.Handle(prefix+"{articleId}", guarded)
		mux.Handle(prefix+"{$}", guarded)
	}
}

// NewMux builds the application router. checks back the /health endpoint.
func NewMux(article *ArticleHandler, configHandler http.Handler, checks ...HealthChecker) *http.ServeMux {
	mux := http.NewServeMux()

	RegisterArticleRoutes(mux, article)
	mux.Handle("GET /health", HealthHandler(checks...))
	if configHandler != nil {
		mux.Handle("/api/config", configHandler)
	}

	return mux
}
