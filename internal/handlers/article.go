package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jikku/jomi-links/internal/config"
	"github.com/jikku/jomi-links/internal/deeplink"
	"github.com/jikku/jomi-links/internal/pages"
)

// ArticleIDMessage is the body text for requests without an article id
const ArticleIDMessage = "Article ID is required"

// Query keys read by the article handler
const (
	PublicationIDKey = "pubId"
	SlugKey          = "slug"
)

// ArticleConfig parameterises the article handler for a deployment
type ArticleConfig struct {
	AppScheme       string
	WebBaseURL      string
	ErrorFormat     config.ErrorFormat
	LegacyAliasKeys []string
	ScannableCode   bool
	Timing          pages.Timing
}

// ArticleConfigFrom maps the loaded configuration onto handler settings
func ArticleConfigFrom(cfg *config.Config) ArticleConfig {
	return ArticleConfig{
		AppScheme:       cfg.Links.AppScheme,
		WebBaseURL:      cfg.Links.WebBaseURL,
		ErrorFormat:     cfg.Links.ErrorFormat,
		LegacyAliasKeys: cfg.Links.LegacyAliasKeys,
		ScannableCode:   cfg.Links.ScannableCode,
		Timing: pages.Timing{
			DirectNavDelay: cfg.Handoff.DirectNavDelay,
			FallbackDelay:  cfg.Handoff.FallbackDelay,
			SafetyDelay:    cfg.Handoff.SafetyDelay,
			RevealDelay:    cfg.Handoff.RevealDelay,
		},
	}
}

// ArticleHandler serves GET /article/{articleId}. It holds no mutable state
// and is safe for concurrent use.
type ArticleHandler struct {
	linker      deeplink.Linker
	pages       *pages.Renderer
	errorFormat config.ErrorFormat
	aliasKeys   []string
	scannable   bool
	logger      *zap.Logger
}

// NewArticleHandler builds the handler and its page renderer
func NewArticleHandler(cfg ArticleConfig, logger *zap.Logger) (*ArticleHandler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ErrorFormat == "" {
		cfg.ErrorFormat = config.ErrorFormatHTML
	}

	renderer, err := pages.New(pages.Options{Timing: cfg.Timing, ScannableCode: cfg.ScannableCode})
	if err != nil {
		return nil, err
	}

	return &ArticleHandler{
		linker:      deeplink.NewLinker(cfg.AppScheme, cfg.WebBaseURL),
		pages:       renderer,
		errorFormat: cfg.ErrorFormat,
		aliasKeys:   append([]string(nil), cfg.LegacyAliasKeys...),
		scannable:   cfg.ScannableCode,
		logger:      logger,
	}, nil
}

// ParseRequest extracts the deep-link inputs from an HTTP request.
// The publication id comes from pubId, then from each legacy alias in order.
func (h *ArticleHandler) ParseRequest(r *http.Request) deeplink.Request {
	q := r.URL.Query()

	pubID := q.Get(PublicationIDKey)
	for _, key := range h.aliasKeys {
		if pubID != "" {
			break
		}
		pubID = q.Get(key)
	}

	return deeplink.Request{
		ArticleID:     r.PathValue("articleId"),
		PublicationID: pubID,
		Slug:          q.Get(SlugKey),
		UserAgent:     r.UserAgent(),
	}
}

func (h *ArticleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := h.ParseRequest(r)

	links, err := h.linker.Derive(req)
	if err != nil {
		h.writeInvalid(w, err)
		return
	}

	if deeplink.ClassifyUserAgent(req.UserAgent) == deeplink.DeviceDesktop {
		if links.HasWeb() {
			w.Header().Set("Location", links.Web)
			w.WriteHeader(http.StatusFound)
			return
		}
		h.writePage(w, r, "desktop", func(buf *bytes.Buffer) error {
			return h.pages.Desktop(buf, links.App)
		})
		return
	}

	h.writePage(w, r, "mobile", func(buf *bytes.Buffer) error {
		return h.pages.Mobile(buf, links.App, links.Web)
	})
}

// writeInvalid answers a request that failed validation
func (h *ArticleHandler) writeInvalid(w http.ResponseWriter, err error) {
	if !errors.Is(err, deeplink.ErrArticleIDRequired) {
		h.logger.Error("unexpected deep link error", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if h.errorFormat == config.ErrorFormatJSON {
		if err := writeJSON(w, http.StatusBadRequest, map[string]string{"error": ArticleIDMessage}); err != nil {
			h.logger.Warn("failed to write error response", zap.Error(err))
		}
		return
	}

	var buf bytes.Buffer
	if err := h.pages.Error(&buf, ArticleIDMessage); err != nil {
		h.logger.Error("failed to render error page", zap.Error(err))
		http.Error(w, ArticleIDMessage, http.StatusBadRequest)
		return
	}
	writeHTML(w, http.StatusBadRequest, buf.Bytes())
}

// writePage renders into a buffer so a template error can still become a 500
func (h *ArticleHandler) writePage(w http.ResponseWriter, r *http.Request, page string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.Error("failed to render page",
			zap.String("page", page),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, buf.Bytes())
}

// Describe returns the effective settings for the config endpoint
func (h *ArticleHandler) Describe() map[string]interface{} {
	return map[string]interface{}{
		"app_scheme":        h.linker.AppScheme,
		"web_base_url":      h.linker.WebBaseURL,
		"error_format":      h.errorFormat,
		"legacy_alias_keys": h.aliasKeys,
		"scannable_code":    h.scannable,
		"example_app_link":  h.linker.AppLink("{articleId}"),
		"example_web_link":  fmt.Sprintf("%s/article/{publicationId}/{slug}", h.linker.WebBaseURL),
	}
}
