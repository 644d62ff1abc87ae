package upstream

import (
	"fmt"
	"time"
)

// Proxy modes.
const (
	ProxyDirect       = "direct"
	ProxyScrapeOps    = "scrapeops"
	ProxyFlareSolverr = "flaresolverr"
)

// Fetch modes.
const (
	ModeAPI = "api"
	ModeRSS = "rss"
)

// Options selects and configures the transport and fetcher.
type Options struct {
	Instance         string
	FetchMode        string
	ProxyMode        string
	RequestTimeout   time.Duration
	HTTPProxyURL     string
	ScrapeOpsAPIKey  string
	ScrapeOpsCountry string
	FlareSolverrHost string
	FlareSolverrPort int
	IncludeReplies   bool
	IncludeReblogs   bool
	MaxAttempts      int
}

// NewTransport builds the transport named by opts.ProxyMode.
func NewTransport(opts Options) (Transport, error) {
	switch opts.ProxyMode {
	case ProxyDirect, "":
		return NewDirectTransport(opts.RequestTimeout, opts.HTTPProxyURL)
	case ProxyScrapeOps:
		if opts.ScrapeOpsAPIKey == "" {
			return nil, fmt.Errorf("scrapeops proxy needs an api key")
		}
		return NewScrapeOpsTransport(opts.RequestTimeout, "", opts.ScrapeOpsAPIKey, opts.ScrapeOpsCountry), nil
	case ProxyFlareSolverr:
		return NewFlareSolverrTransport(opts.FlareSolverrHost, opts.FlareSolverrPort, opts.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown proxy mode %q", opts.ProxyMode)
	}
}

// NewFetcher builds the fetcher named by opts.FetchMode on transport, wrapped
// with retry and the upstream circuit breaker.
func NewFetcher(opts Options, transport Transport) (*ResilientFetcher, error) {
	var inner Fetcher
	switch opts.FetchMode {
	case ModeAPI, "":
		inner = NewAPIFetcher(transport, opts.Instance, APIOptions{
			IncludeReplies: opts.IncludeReplies,
			IncludeReblogs: opts.IncludeReblogs,
		})
	case ModeRSS:
		inner = NewRSSFetcher(transport, opts.Instance)
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", opts.FetchMode)
	}
	return NewResilientFetcher(inner, opts.MaxAttempts, nil), nil
}
