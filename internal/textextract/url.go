package textextract

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// PageContent is the structured result of fetching and parsing a web page.
type PageContent struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	MainContent     string   `json:"main_content"`
	DeadlineHints   []string `json:"deadline_hints"`
	EligibilityInfo string   `json:"eligibility_info"`
	AwardInfo       string   `json:"award_info"`
	ContactInfo     string   `json:"contact_info"`
	Keywords        []string `json:"keywords"`
}

var blockedPrefixes = mustPrefixes(
	"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
	"169.254.0.0/16", "::1/128", "fc00::/7", "fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		if p, err := netip.ParsePrefix(c); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// isPrivateIP reports whether ip falls in a loopback, link-local, multicast,
// unspecified, or RFC1918-style private range.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 20 * time.Second, KeepAlive: 30 * time.Second}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}
	return d.DialContext(ctx, network, addr)
}

func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}

// newSafeClient builds an http.Client whose dialer refuses to connect to
// private/loopback/link-local addresses, including across redirects.
func newSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           safeDialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		CheckRedirect: safeCheckRedirect,
	}
}

var sanitizer = bluemonday.StrictPolicy()

var deadlineRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
}

var deadlineKeywords = regexp.MustCompile(`(?i)(deadline|closing date|due date|submission date|apply by|cierre|fecha l[ií]mite)`)

var eligibilityKeywords = regexp.MustCompile(`(?i)(eligibility|eligible|qualification|who can apply)`)

var awardKeywords = regexp.MustCompile(`(?i)(award|funding|grant amount|budget|\$[\d,]+)`)

var contactKeywords = regexp.MustCompile(`(?i)(contact|email|phone|program officer)`)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// FetchURL retrieves url through an SSRF-hardened client, extracts the
// title/description/main body via goquery, and scans the body for
// deadline-shaped text near deadline keywords.
func FetchURL(ctx context.Context, rawURL string, timeout time.Duration, maxChars int) (*PageContent, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", ErrUnsupported, err)
	}

	client := newSafeClient(timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fundingmatch/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNetworkError, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "text") {
		return nil, fmt.Errorf("%w: content-type %s", ErrUnsupported, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	doc.Find("script, style, nav, footer").Remove()

	title := collapseSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	description = collapseSpace(description)

	mainText := collapseSpace(doc.Find("body").Text())
	mainText = sanitizer.Sanitize(mainText)
	mainText = truncate(mainText, maxChars)

	return &PageContent{
		URL:             rawURL,
		Title:           title,
		Description:     description,
		MainContent:     mainText,
		DeadlineHints:   extractDeadlineHints(mainText),
		EligibilityInfo: extractFirstWindow(mainText, eligibilityKeywords, 150),
		AwardInfo:       extractFirstWindow(mainText, awardKeywords, 150),
		ContactInfo:     extractContactInfo(mainText),
		Keywords:        extractPageKeywords(doc),
	}, nil
}

// extractFirstWindow returns the text surrounding the first match of re in
// text, the same keyword-window heuristic extractDeadlineHints uses, but
// stopping at the first hit since eligibility/award text is a single block.
func extractFirstWindow(text string, re *regexp.Regexp, radius int) string {
	loc := re.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	start := loc[0] - radius
	if start < 0 {
		start = 0
	}
	end := loc[1] + radius
	if end > len(text) {
		end = len(text)
	}
	return collapseSpace(text[start:end])
}

// extractContactInfo returns the window around a contact-shaped keyword,
// collapsed down to just the email address when one appears in it.
func extractContactInfo(text string) string {
	window := extractFirstWindow(text, contactKeywords, 150)
	if window == "" {
		return ""
	}
	if email := emailPattern.FindString(window); email != "" {
		return "Contact: " + email
	}
	return window
}

// extractPageKeywords pulls meta keywords and short heading text, the same
// sources the original implementation's keyword extractor used.
func extractPageKeywords(doc *goquery.Document) []string {
	var out []string

	if content, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		for _, k := range strings.Split(content, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				out = append(out, k)
			}
		}
	}

	doc.Find("h1, h2, h3").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= 10 {
			return false
		}
		text := collapseSpace(s.Text())
		if text != "" && len(text) < 50 {
			out = append(out, text)
		}
		return true
	})

	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

// extractDeadlineHints returns text windows around deadline keywords and
// date-shaped tokens, the same snippet-around-match heuristic the original
// implementation used for deadline_info.
func extractDeadlineHints(text string) []string {
	var hints []string
	seen := make(map[string]bool)

	addWindow := func(loc []int) {
		start := loc[0] - 60
		if start < 0 {
			start = 0
		}
		end := loc[1] + 60
		if end > len(text) {
			end = len(text)
		}
		snippet := collapseSpace(text[start:end])
		if snippet != "" && !seen[snippet] {
			seen[snippet] = true
			hints = append(hints, snippet)
		}
	}

	for _, loc := range deadlineKeywords.FindAllStringIndex(text, -1) {
		addWindow(loc)
	}
	for _, re := range deadlineRegexes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			addWindow(loc)
		}
	}
	return hints
}
