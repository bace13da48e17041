package deeplink

import (
	"errors"
	"testing"
)

func TestLinkerDerive(t *testing.T) {
	linker := NewLinker("", "")

	tests := []struct {
		name    string
		req     Request
		wantApp string
		wantWeb string
		wantErr error
	}{
		{
			name:    "article with publication and slug",
			req:     Request{ArticleID: "abc123", PublicationID: "42", Slug: "my-case"},
			wantApp: "jomi://article/abc123",
			wantWeb: "https://jomi.com/article/42/my-case",
		},
		{
			name:    "article only",
			req:     Request{ArticleID: "abc123"},
			wantApp: "jomi://article/abc123",
		},
		{
			name:    "missing slug",
			req:     Request{ArticleID: "abc123", PublicationID: "42"},
			wantApp: "jomi://article/abc123",
		},
		{
			name:    "missing publication",
			req:     Request{ArticleID: "abc123", Slug: "my-case"},
			wantApp: "jomi://article/abc123",
		},
		{
			name:    "blank slug counts as missing",
			req:     Request{ArticleID: "abc123", PublicationID: "42", Slug: "   "},
			wantApp: "jomi://article/abc123",
		},
		{
			name:    "web segments are path escaped",
			req:     Request{ArticleID: "abc123", PublicationID: "42", Slug: "a/b c"},
			wantApp: "jomi://article/abc123",
			wantWeb: "https://jomi.com/article/42/a%2Fb%20c",
		},
		{
			name:    "web segments are trimmed",
			req:     Request{ArticleID: "abc123", PublicationID: " 42 ", Slug: " x "},
			wantApp: "jomi://article/abc123",
			wantWeb: "https://jomi.com/article/42/x",
		},
		{
			name:    "empty article id",
			req:     Request{ArticleID: ""},
			wantErr: ErrArticleIDRequired,
		},
		{
			name:    "whitespace article id",
			req:     Request{ArticleID: " \t "},
			wantErr: ErrArticleIDRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := linker.Derive(tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Derive() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Derive() unexpected error: %v", err)
			}
			if links.App != tt.wantApp {
				t.Errorf("App = %q, want %q", links.App, tt.wantApp)
			}
			if links.Web != tt.wantWeb {
				t.Errorf("Web = %q, want %q", links.Web, tt.wantWeb)
			}
			if links.HasWeb() != (tt.wantWeb != "") {
				t.Errorf("HasWeb() = %v, want %v", links.HasWeb(), tt.wantWeb != "")
			}
		})
	}
}

func TestAppLinkIsVerbatim(t *testing.T) {
	linker := NewLinker("", "")

	for _, id := range []string{"abc123", "A-b_c.9", "1", "with space", "ünïcode"} {
		links, err := linker.Derive(Request{ArticleID: id})
		if err != nil {
			t.Fatalf("Derive(%q) unexpected error: %v", id, err)
		}
		if want := "jomi://article/" + id; links.App != want {
			t.Errorf("App = %q, want %q", links.App, want)
		}
	}
}

func TestNewLinkerCustomHosts(t *testing.T) {
	linker := NewLinker("jomi-staging", "https://staging.jomi.com/")

	links, err := linker.Derive(Request{ArticleID: "x", PublicationID: "1", Slug: "s"})
	if err != nil {
		t.Fatalf("Derive() unexpected error: %v", err)
	}
	if links.App != "jomi-staging://article/x" {
		t.Errorf("App = %q", links.App)
	}
	if links.Web != "https://staging.jomi.com/article/1/s" {
		t.Errorf("Web = %q", links.Web)
	}
}

func TestClassifyUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Device
	}{
		{"iphone safari", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15", DeviceMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", DeviceMobile},
		{"ipod", "Mozilla/5.0 (iPod touch; CPU iPhone OS 12_0 like Mac OS X)", DeviceMobile},
		{"android chrome", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Chrome/120.0", DeviceMobile},
		{"blackberry", "BlackBerry9700/5.0.0.351 Profile/MIDP-2.1", DeviceMobile},
		{"iemobile", "Mozilla/5.0 (compatible; MSIE 10.0; Windows Phone 8.0; IEMobile/10.0)", DeviceMobile},
		{"ie mobile with space", "Mozilla/4.0 (compatible; MSIE 7.0; Windows Phone OS 7.0; IE Mobile 7.0)", DeviceMobile},
		{"opera mini", "Opera/9.80 (J2ME/MIDP; Opera Mini/9.80)", DeviceMobile},
		{"lowercase token", "some-android-webview", DeviceMobile},
		{"mac chrome", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/120.0", DeviceDesktop},
		{"windows firefox", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", DeviceDesktop},
		{"curl", "curl/8.4.0", DeviceDesktop},
		{"empty", "", DeviceDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyUserAgent(tt.ua); got != tt.want {
				t.Errorf("ClassifyUserAgent(%q) = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}
