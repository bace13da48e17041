// Package pages renders the HTML documents served by the deep-link handler.
package pages

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed assets/handoff.js
var handoffScript string

// RevealID is the element id of the manual "Open in App" button on mobile pages
const RevealID = "open-app"

// QR code settings for desktop pages
const (
	qrSize  = 200
	qrLevel = qrcode.High
)

// Timing controls the client handoff timers
type Timing struct {
	DirectNavDelay time.Duration
	FallbackDelay  time.Duration
	SafetyDelay    time.Duration
	RevealDelay    time.Duration
}

// DefaultTiming returns the standard handoff delays
func DefaultTiming() Timing {
	return Timing{
		DirectNavDelay: 100 * time.Millisecond,
		FallbackDelay:  1500 * time.Millisecond,
		SafetyDelay:    3 * time.Second,
		RevealDelay:    2 * time.Second,
	}
}

// Options configures a Renderer
type Options struct {
	Timing        Timing
	ScannableCode bool
}

// Renderer executes the embedded page templates. It is safe for concurrent use.
type Renderer struct {
	tmpl      *template.Template
	timing    Timing
	scannable bool
}

// handoffOptions is serialized into the mobile page script
type handoffOptions struct {
	AppLink          string `json:"appLink"`
	WebLink          string `json:"webLink,omitempty"`
	RevealID         string `json:"revealId"`
	DirectNavDelayMs int64  `json:"directNavDelayMs"`
	FallbackDelayMs  int64  `json:"fallbackDelayMs"`
	SafetyDelayMs    int64  `json:"safetyDelayMs"`
	RevealDelayMs    int64  `json:"revealDelayMs"`
}

type mobileData struct {
	AppLink  template.URL
	WebLink  string
	RevealID string
	Script   template.JS
	Handoff  handoffOptions
}

type desktopData struct {
	AppLink     template.URL
	AppLinkText string
	QRCode      template.URL
}

type errorData struct {
	Message string
}

// New parses the embedded templates
func New(opts Options) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}

	return &Renderer{
		tmpl:      tmpl,
		timing:    opts.Timing,
		scannable: opts.ScannableCode,
	}, nil
}

// HandoffScript returns the client state machine source embedded in mobile pages
func HandoffScript() string {
	return handoffScript
}

// Mobile renders the app-open attempt page. webLink may be empty.
//
// appLink is built by the server from a fixed scheme, so it is marked as a
// trusted URL; html/template would otherwise replace a non-http scheme.
func (r *Renderer) Mobile(w io.Writer, appLink, webLink string) error {
	data := mobileData{
		AppLink:  template.URL(appLink),
		WebLink:  webLink,
		RevealID: RevealID,
		Script:   template.JS(handoffScript),
		Handoff: handoffOptions{
			AppLink:          appLink,
			WebLink:          webLink,
			RevealID:         RevealID,
			DirectNavDelayMs: r.timing.DirectNavDelay.Milliseconds(),
			FallbackDelayMs:  r.timing.FallbackDelay.Milliseconds(),
			SafetyDelayMs:    r.timing.SafetyDelay.Milliseconds(),
			RevealDelayMs:    r.timing.RevealDelay.Milliseconds(),
		},
	}
	return r.execute(w, "mobile", data)
}

// Desktop renders the "Open in App" page shown when no web link exists
func (r *Renderer) Desktop(w io.Writer, appLink string) error {
	data := desktopData{
		AppLink:     template.URL(appLink),
		AppLinkText: appLink,
	}

	if r.scannable {
		uri, err := QRCodeDataURI(appLink)
		if err != nil {
			return err
		}
		data.QRCode = template.URL(uri)
	}

	return r.execute(w, "desktop", data)
}

// Error renders the minimal HTML error page
func (r *Renderer) Error(w io.Writer, message string) error {
	return r.execute(w, "error", errorData{Message: message})
}

// execute renders into a buffer first so a template failure never leaves a
// half-written page on the wire
func (r *Renderer) execute(w io.Writer, name string, data any) error {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s page: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// QRCodeDataURI encodes content as a PNG QR code data URI
func QRCodeDataURI(content string) (string, error) {
	png, err := qrcode.Encode(content, qrLevel, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
