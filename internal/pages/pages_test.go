package pages

import (
	"bytes"
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T, scannable bool) *Renderer {
	t.Helper()
	r, err := New(Options{Timing: DefaultTiming(), ScannableCode: scannable})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return r
}

func TestMobileWithWebLink(t *testing.T) {
	r := newTestRenderer(t, true)

	var buf bytes.Buffer
	if err := r.Mobile(&buf, "jomi://article/abc123", "https://jomi.com/article/42/my-case"); err != nil {
		t.Fatalf("Mobile() failed: %v", err)
	}
	body := buf.String()

	wants := []string{
		"<!DOCTYPE html>",
		"Opening in Jomi App...",
		`"appLink":"jomi://article/abc123"`,
		`"webLink":"https://jomi.com/article/42/my-case"`,
		`"fallbackDelayMs":1500`,
		`"safetyDelayMs":3000`,
		`"directNavDelayMs":100`,
		`href="https://jomi.com/article/42/my-case"`,
		"Continue to Website",
		"function startHandoff(win, doc, opts)",
		"startHandoff(window, document, ",
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("mobile page missing %q", want)
		}
	}
	if strings.Contains(body, `id="open-app"`) {
		t.Error("mobile page with web link should not render the manual app button")
	}
}

func TestMobileWithoutWebLink(t *testing.T) {
	r := newTestRenderer(t, true)

	var buf bytes.Buffer
	if err := r.Mobile(&buf, "jomi://article/abc123", ""); err != nil {
		t.Fatalf("Mobile() failed: %v", err)
	}
	body := buf.String()

	if !strings.Contains(body, `id="open-app" href="jomi://article/abc123" class="button hidden"`) {
		t.Error("mobile page should render a hidden app button")
	}
	if strings.Contains(body, `"webLink":`) {
		t.Error("handoff options should omit webLink when absent")
	}
	if strings.Contains(body, "Continue to Website") {
		t.Error("mobile page without web link should not offer the website")
	}
	if !strings.Contains(body, `"revealDelayMs":2000`) {
		t.Error("mobile page missing reveal delay")
	}
}

func TestDesktop(t *testing.T) {
	t.Run("with scannable code", func(t *testing.T) {
		r := newTestRenderer(t, true)

		var buf bytes.Buffer
		if err := r.Desktop(&buf, "jomi://article/abc123"); err != nil {
			t.Fatalf("Desktop() failed: %v", err)
		}
		body := buf.String()

		if !strings.Contains(body, `href="jomi://article/abc123" class="button">Open in App</a>`) {
			t.Error("desktop page missing app button")
		}
		if !strings.Contains(body, `src="data:image/png;base64,`) {
			t.Error("desktop page missing QR image")
		}
		if !strings.Contains(body, `<div class="link">jomi://article/abc123</div>`) {
			t.Error("desktop page missing app link text")
		}
		if strings.Contains(body, "<script") {
			t.Error("desktop page should not navigate automatically")
		}
	})

	t.Run("without scannable code", func(t *testing.T) {
		r := newTestRenderer(t, false)

		var buf bytes.Buffer
		if err := r.Desktop(&buf, "jomi://article/abc123"); err != nil {
			t.Fatalf("Desktop() failed: %v", err)
		}
		body := buf.String()

		if !strings.Contains(body, `href="jomi://article/abc123"`) {
			t.Error("desktop page missing app button")
		}
		if strings.Contains(body, "qr-section\"") || strings.Contains(body, "data:image/png") {
			t.Error("desktop page should not include a QR code")
		}
	})
}

func TestError(t *testing.T) {
	r := newTestRenderer(t, false)

	var buf bytes.Buffer
	if err := r.Error(&buf, "Article ID is required"); err != nil {
		t.Fatalf("Error() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "<h1>Article ID is required</h1>") {
		t.Errorf("error page = %q", buf.String())
	}
}

func TestPagesEscapeHostileLinks(t *testing.T) {
	r := newTestRenderer(t, true)
	hostile := `jomi://article/"><script>alert(1)</script>`

	var mobile, desktop bytes.Buffer
	if err := r.Mobile(&mobile, hostile, ""); err != nil {
		t.Fatalf("Mobile() failed: %v", err)
	}
	if err := r.Desktop(&desktop, hostile); err != nil {
		t.Fatalf("Desktop() failed: %v", err)
	}

	for name, body := range map[string]string{"mobile": mobile.String(), "desktop": desktop.String()} {
		if strings.Contains(body, "<script>alert(1)") {
			t.Errorf("%s page contains unescaped markup", name)
		}
	}
}

func TestQRCodeDataURI(t *testing.T) {
	uri, err := QRCodeDataURI("jomi://article/abc123")
	if err != nil {
		t.Fatalf("QRCodeDataURI() failed: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("QRCodeDataURI() prefix = %q", uri[:30])
	}

	other, err := QRCodeDataURI("jomi://article/xyz")
	if err != nil {
		t.Fatalf("QRCodeDataURI() failed: %v", err)
	}
	if uri == other {
		t.Error("different links should produce different codes")
	}
}
