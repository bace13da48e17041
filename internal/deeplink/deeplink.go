// Package deeplink derives app and web links for an article request.
package deeplink

import (
	"errors"
	"net/url"
	"strings"
)

// ErrArticleIDRequired is returned when a request has no usable article id.
var ErrArticleIDRequired = errors.New("article id is required")

// Default link settings for the production Jomi app and site
const (
	DefaultAppScheme  = "jomi"
	DefaultWebBaseURL = "https://jomi.com"
)

// Request holds the inputs of a single deep-link resolution
type Request struct {
	ArticleID     string
	PublicationID string
	Slug          string
	UserAgent     string
}

// Validate checks that the request carries an article id
func (r Request) Validate() error {
	if strings.TrimSpace(r.ArticleID) == "" {
		return ErrArticleIDRequired
	}
	return nil
}

// Links are the targets computed for a request.
// Web is empty when the request lacks a publication id or slug.
type Links struct {
	App string `json:"app_link"`
	Web string `json:"web_link,omitempty"`
}

// HasWeb reports whether a web fallback exists
func (l Links) HasWeb() bool {
	return l.Web != ""
}

// Linker builds links for a given app scheme and web host
type Linker struct {
	AppScheme  string
	WebBaseURL string
}

// NewLinker returns a Linker, filling blanks with the production defaults
func NewLinker(appScheme, webBaseURL string) Linker {
	if appScheme == "" {
		appScheme = DefaultAppScheme
	}
	if webBaseURL == "" {
		webBaseURL = DefaultWebBaseURL
	}
	return Linker{
		AppScheme:  appScheme,
		WebBaseURL: strings.TrimRight(webBaseURL, "/"),
	}
}

// Derive validates the request and computes its links.
//
// The app link carries the article id verbatim. Web link segments are path
// escaped because the web link ends up in a Location header.
func (l Linker) Derive(r Request) (Links, error) {
	if err := r.Validate(); err != nil {
		return Links{}, err
	}

	links := Links{App: l.AppLink(r.ArticleID)}

	pubID := strings.TrimSpace(r.PublicationID)
	slug := strings.TrimSpace(r.Slug)
	if pubID != "" && slug != "" {
		links.Web = l.WebBaseURL + "/article/" + url.PathEscape(pubID) + "/" + url.PathEscape(slug)
	}

	return links, nil
}

// AppLink returns the custom-scheme link for an article
func (l Linker) AppLink(articleID string) string {
	return l.AppScheme + "://article/" + articleID
}
