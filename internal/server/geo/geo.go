// Package geo turns client IPs into a coarse "City, Country" label used to
// annotate sessions, login events and canary triggers. Lookups are best
// effort: any failure yields an empty location.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
)

// Locator resolves an IP to a display location or "".
type Locator interface {
	Locate(ctx context.Context, ip string) string
}

// Nop never resolves anything.
type Nop struct{}

func (Nop) Locate(context.Context, string) string { return "" }

// HTTPLocator queries an ip-api compatible endpoint: GET <endpoint>/<ip>
// returning {"status":"success","city":"...","country":"..."}.
type HTTPLocator struct {
	endpoint string
	client   *http.Client
	log      logging.Logger
}

func NewHTTPLocator(endpoint string, timeout time.Duration, log logging.Logger) *HTTPLocator {
	return &HTTPLocator{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type lookupResponse struct {
	Status  string `json:"status"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (h *HTTPLocator) Locate(ctx context.Context, ip string) string {
	if !Routable(ip) {
		return ""
	}
	loc, err := h.lookup(ctx, ip)
	if err != nil {
		h.log.Debug(ctx, "geo lookup failed", "err", err)
		return ""
	}
	return loc
}

func (h *HTTPLocator) lookup(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/"+ip, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if body.Status != "success" {
		return "", nil
	}
	return Format(body.City, body.Country), nil
}

// Format joins the non-empty parts with ", ".
func Format(city, country string) string {
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	default:
		return country
	}
}

// Routable reports whether ip is a public address worth looking up.
func Routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsMulticast())
}
