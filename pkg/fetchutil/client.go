// Package fetchutil builds the shared outbound HTTP client and the retry
// policy used by every upstream fetch.
package fetchutil

import (
	"net/http"
	"net/url"
	"os"

	"golang.org/x/net/http/httpproxy"

	"github.com/redive-tools/newswatch/pkg/config"
	"github.com/redive-tools/newswatch/pkg/version"
)

// NewHTTPClient builds the process-wide HTTP client from the client config:
// per-request timeout, proxy (config value, else ALL_PROXY), no_proxy list
// and a default User-Agent. The client is immutable after construction and
// safe to share.
func NewHTTPClient(cfg config.ClientConfig) *http.Client {
	proxyURL := cfg.Proxy
	if proxyURL == "" {
		proxyURL = os.Getenv("ALL_PROXY")
	}

	proxyCfg := &httpproxy.Config{
		HTTPProxy:  proxyURL,
		HTTPSProxy: proxyURL,
		NoProxy:    cfg.NoProxy,
	}
	proxyFunc := proxyCfg.ProxyFunc()

	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			return proxyFunc(req.URL)
		},
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.Full()
	}

	return &http.Client{
		Timeout: cfg.Timeout(),
		Transport: &userAgentTransport{
			userAgent: userAgent,
			next:      transport,
		},
	}
}

// userAgentTransport stamps the configured User-Agent on requests that do
// not already carry one.
type userAgentTransport struct {
	userAgent string
	next      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}
