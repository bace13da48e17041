package certstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/caddyserver/certmagic"
	"go.uber.org/zap"
)

// Options configures automatic HTTPS for a single domain
type Options struct {
	Domain  string
	Email   string
	Staging bool
	// HTTPSPort is the public port TLS is served on; redirects omit it when 443
	HTTPSPort string
}

// Manager obtains and renews the certificate for Options.Domain
type Manager struct {
	opts   Options
	cache  *certmagic.Cache
	magic  *certmagic.Config
	issuer *certmagic.ACMEIssuer
	logger *zap.Logger
}

// NewManager wires certmagic to storage. Nothing is contacted until Manage.
func NewManager(storage certmagic.Storage, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{opts: opts, logger: logger}

	m.cache = certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(certmagic.Certificate) (*certmagic.Config, error) {
			return m.magic, nil
		},
		Logger: logger,
	})

	m.magic = certmagic.New(m.cache, certmagic.Config{
		Storage: storage,
		Logger:  logger,
	})

	ca := certmagic.LetsEncryptProductionCA
	if opts.Staging {
		ca = certmagic.LetsEncryptStagingCA
	}

	m.issuer = certmagic.NewACMEIssuer(m.magic, certmagic.ACMEIssuer{
		CA:     ca,
		Email:  opts.Email,
		Agreed: true,
		Logger: logger,
	})
	m.magic.Issuers = []certmagic.Issuer{m.issuer}

	return m
}

// Manage obtains or loads the certificate and returns a TLS config serving it
func (m *Manager) Manage(ctx context.Context) (*tls.Config, error) {
	m.logger.Info("managing certificate",
		zap.String("domain", m.opts.Domain),
		zap.Bool("staging", m.opts.Staging),
	)

	if err := m.magic.ManageSync(ctx, []string{m.opts.Domain}); err != nil {
		return nil, fmt.Errorf("failed to manage certificate for %s: %w", m.opts.Domain, err)
	}

	tlsConfig := m.magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	return tlsConfig, nil
}

// HTTPHandler answers ACME HTTP-01 challenges and redirects everything else to HTTPS
func (m *Manager) HTTPHandler() http.Handler {
	return m.issuer.HTTPChallengeHandler(RedirectHandler(m.opts.HTTPSPort))
}

// Stop ends certificate maintenance
func (m *Manager) Stop() {
	m.cache.Stop()
}

// RedirectHandler permanently redirects plain HTTP requests to HTTPS
func RedirectHandler(httpsPort string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if httpsPort != "" && httpsPort != "443" {
			host = net.JoinHostPort(host, httpsPort)
		}

		target := "https://" + host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}
