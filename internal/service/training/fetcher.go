package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	ErrInvalidURL     = errors.New("website url must be an absolute http or https url")
	ErrFetchFailed    = errors.New("failed to fetch website")
	// ErrBlockedAddress 表示目标解析到了回环、内网或链路本地地址。
	ErrBlockedAddress = errors.New("website resolves to a non-public address")
)

// Fetcher retrieves the readable text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// HTTPFetcher 通过 HTTP GET 抓取页面并提取正文文本。
// maxBytes 限制的是读取的原始响应字节数，而不是提取后的文本长度。
type HTTPFetcher struct {
	client       *http.Client
	maxBytes     int64
	allowPrivate bool
}

// FetcherOption customizes an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithPrivateNetworks lets the fetcher reach loopback and private addresses.
func WithPrivateNetworks() FetcherOption {
	return func(f *HTTPFetcher) { f.allowPrivate = true }
}

// NewHTTPFetcher builds a fetcher bounded by timeout and maxBytes.
// By default only public unicast addresses are dialed, redirects included.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, opts ...FetcherOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	f := &HTTPFetcher{maxBytes: maxBytes}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: timeout}
	if !f.allowPrivate {
		dialer.Control = rejectNonPublic
	}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return f
}

// rejectNonPublic 在 DNS 解析之后检查真正要连接的地址。
func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || !publicIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func publicIP(ip net.IP) bool {
	return !(ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast())
}

// ValidateURL accepts absolute http(s) urls only.
func ValidateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("User-Agent", "anasify-trainer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: upstream status %d", ErrFetchFailed, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, f.maxBytes)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		return collapseWhitespace(string(trimPartialRune(raw))), nil
	}

	text, err := ExtractText(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return text, nil
}

// skipped 中的元素不包含可读正文。
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
}

// ExtractText reduces an HTML document to its visible text with whitespace collapsed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// title 位于 head 内，单独放在最前面。
	if title := findTitle(doc); title != "" {
		parts = append([]string{title}, parts...)
	}
	return collapseWhitespace(strings.Join(parts, " ")), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}

// trimPartialRune drops a multi-byte rune cut in half by the byte limit.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
