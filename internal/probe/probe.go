// Package probe fetches local pages and extracts their HTML title.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/starford/portlight/internal/models"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 1200 * time.Millisecond

const maxBody = 1 << 20

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Prober issues one GET per probe with a hard timeout.
type Prober struct {
	client *http.Client
}

// New creates a Prober. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			// Dev servers often redirect to a login or locale path; follow a few.
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
			Transport: &http.Transport{
				Proxy:             nil,
				DisableKeepAlives: true,
			},
		},
	}
}

// Probe fetches url. Transport errors map to ProbeFailed, a response without
// a usable title to ProbeNoTitle. The status code is not inspected.
func (p *Prober) Probe(ctx context.Context, url string) models.ProbeOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.ProbeOutcome{State: models.ProbeFailed, Err: fmt.Errorf("probe: build request: %w", err)}
	}
	req.Header.Set("Accept", "text/html,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ProbeOutcome{State: models.ProbeFailed, Err: fmt.Errorf("probe: get %s: %w", url, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil && len(body) == 0 {
		return models.ProbeOutcome{State: models.ProbeFailed, Err: fmt.Errorf("probe: read %s: %w", url, err)}
	}

	title := ExtractTitle(string(body))
	if title == "" {
		return models.ProbeOutcome{State: models.ProbeNoTitle}
	}
	return models.ProbeOutcome{State: models.ProbeSucceeded, Title: title}
}

// ExtractTitle returns the trimmed text of the first <title> element, or ""
// when there is none. It is a pattern match, not an HTML parser.
func ExtractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(m[1], " "))
}
