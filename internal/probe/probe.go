// Package probe performs the wizard's one-shot preflight fetch of a target URL.
// It never follows links; a single page is fetched and summarized.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

var (
	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("target url must be absolute http or https")
	// ErrBlockedTarget is returned when the target resolves to a loopback,
	// private, link-local or unspecified address and AllowPrivate is off.
	ErrBlockedTarget = errors.New("target address is not publicly routable")
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	RespectRobots      bool
	Timeout            time.Duration
	MaxBodySize        int
	PromotionThreshold int
	AllowPrivate       bool
}

// Report summarizes what the preflight observed.
type Report struct {
	URL         string        `json:"url"`
	StatusCode  int           `json:"status_code"`
	Title       string        `json:"title"`
	ContentType string        `json:"content_type"`
	Bytes       int           `json:"bytes"`
	NeedsJS     bool          `json:"needs_js"`
	Duration    time.Duration `json:"duration_ns"`

	// Robots is empty when robots.txt was read normally.
	Robots       string `json:"robots,omitempty"`
	RobotsReason string `json:"robots_reason,omitempty"`
}

// Reachable reports whether the target answered with a 2xx status.
func (r Report) Reachable() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSDetector decides whether a page needs a JavaScript runtime to render.
type JSDetector interface {
	NeedsJS(statusCode int, body []byte) bool
}

// Prober fetches single pages with Colly.
type Prober struct {
	cfg       Config
	transport http.RoundTripper
	detector  JSDetector
	logger    *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Prober.
func New(cfg Config, detector JSDetector, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 2 << 20
	}
	return &Prober{
		cfg:       cfg,
		transport: newHTTPTransport(cfg.AllowPrivate),
		detector:  detector,
		logger:    logger,
	}
}

// Check fetches target once and reports status, title, size and the SPA guess.
// Non-2xx answers are reported, not returned as errors.
func (p *Prober) Check(ctx context.Context, target string) (Report, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Report{}, fmt.Errorf("probe %q: %w", target, ErrInvalidURL)
	}
	if !p.cfg.AllowPrivate && blockedHost(u.Hostname()) {
		return Report{}, fmt.Errorf("probe %s: %w", u.Host, ErrBlockedTarget)
	}

	var (
		report   = Report{URL: u.String()}
		fetchErr error
	)
	start := time.Now()
	robots := &robotsState{}
	collector := p.buildCollector(robots)
	p.configureHooks(collector, start, &report, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(u.String())
	}()

	select {
	case <-ctx.Done():
		return Report{}, fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if report.StatusCode == 0 {
			if err == nil {
				err = fetchErr
			}
			if err == nil {
				err = errors.New("no response")
			}
			return Report{}, fmt.Errorf("probe %s: %w", u.Host, err)
		}
	}
	robots.apply(&report)
	p.logger.Debug("probe finished",
		zap.String("url", report.URL),
		zap.Int("status", report.StatusCode),
		zap.Bool("needs_js", report.NeedsJS),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (p *Prober) buildCollector(robots *robotsState) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.MaxDepth(1))
	if p.cfg.UserAgent != "" {
		c.UserAgent = p.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !p.cfg.RespectRobots
	c.MaxBodySize = p.cfg.MaxBodySize
	c.SetRequestTimeout(p.cfg.Timeout)
	c.WithTransport(&robotsTransport{base: p.transport, state: robots})
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return http.ErrUseLastResponse
		}
		return nil
	})
	return c
}

func (p *Prober) configureHooks(hooks collectorHooks, start time.Time, report *Report, fetchErr *error) {
	record := func(r *colly.Response) {
		report.URL = r.Request.URL.String()
		report.StatusCode = r.StatusCode
		report.Bytes = len(r.Body)
		report.Duration = time.Since(start)
		if r.Headers != nil {
			report.ContentType = r.Headers.Get("Content-Type")
		}
		if p.detector != nil {
			report.NeedsJS = p.detector.NeedsJS(r.StatusCode, r.Body)
		}
	}

	hooks.OnResponse(record)
	hooks.OnHTML("title", func(e *colly.HTMLElement) {
		if report.Title == "" {
			report.Title = strings.TrimSpace(e.Text)
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 && r.Request != nil {
			record(r)
			return
		}
		*fetchErr = err
	})
}

func newHTTPTransport(allowPrivate bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	t := &http.Transport{
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
	if allowPrivate {
		t.Proxy = http.ProxyFromEnvironment
	} else {
		// Resolved addresses are checked on every dial, so a public name
		// pointing at a private address is refused too. No proxy: it would
		// hide the real destination from this check.
		dialer.Control = refusePrivate
	}
	t.DialContext = dialer.DialContext
	return t
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("split dial address: %w", err)
	}
	if ip := net.ParseIP(host); ip == nil || blockedIP(ip) {
		return fmt.Errorf("dial %s: %w", host, ErrBlockedTarget)
	}
	return nil
}

// blockedHost reports whether a literal host name is obviously internal.
// Other names are checked by the dialer once resolved.
func blockedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return blockedIP(ip)
	}
	return false
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsMulticast() ||
		ip.IsUnspecified()
}
