package rdap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/leadguard/scan-engine/internal/config"
)

// ProbeResult captures what the registry knows about a single domain. A
// failed lookup is still a populated result; the pipeline never aborts on a
// registry problem.
type ProbeResult struct {
	Domain       string    `json:"domain"`
	AgeDays      int       `json:"age_days"`
	RegisteredOn time.Time `json:"registered_on"`
	Note         string    `json:"note"`
	ProbeFailed  bool      `json:"probe_failed"`
}

// AgeUnknown marks results where no registration date could be determined.
const AgeUnknown = -1

// freeMailProviders are public mailbox domains that short-circuit the
// registry lookup: their registration age says nothing about the sender, and
// their presence in a recruitment lead is itself an impersonation signal.
var freeMailProviders = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"aol.com":        {},
	"icloud.com":     {},
	"protonmail.com": {},
	"proton.me":      {},
	"gmx.com":        {},
	"mail.com":       {},
	"yandex.com":     {},
	"zoho.com":       {},
}

type rdapResponse struct {
	Events []rdapEvent `json:"events"`
}

type rdapEvent struct {
	EventAction string `json:"eventAction"`
	EventDate   string `json:"eventDate"`
}

// Prober queries a public RDAP endpoint for domain registration metadata
type Prober struct {
	config config.RDAPConfig
	logger *slog.Logger
	client *resty.Client
	cache  *Cache
	now    func() time.Time
}

// NewProber creates a registry prober. cache may be nil, which disables
// probe caching.
func NewProber(cfg config.RDAPConfig, logger *slog.Logger, cache *Cache) *Prober {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.ProbeTimeout).
		SetHeader("Accept", "application/rdap+json")

	return &Prober{
		config: cfg,
		logger: logger,
		client: client,
		cache:  cache,
		now:    time.Now,
	}
}

// ProbeAll looks up every domain concurrently and returns results in input
// order. It waits for every probe to settle; one slow or failing lookup never
// blocks or fails the others beyond its own timeout.
func (p *Prober) ProbeAll(ctx context.Context, domains []string) []ProbeResult {
	results := make([]ProbeResult, len(domains))

	var wg sync.WaitGroup
	for i, domain := range domains {
		wg.Add(1)
		go func(i int, domain string) {
			defer wg.Done()
			results[i] = p.Probe(ctx, domain)
		}(i, domain)
	}
	wg.Wait()

	return results
}

// Probe looks up a single domain. It always returns a populated result:
// registry failures degrade to an "unknown" note with ProbeFailed set.
func (p *Prober) Probe(ctx context.Context, domain string) ProbeResult {
	if _, ok := freeMailProviders[domain]; ok {
		return ProbeResult{
			Domain:  domain,
			AgeDays: maxProviderAge,
			Note: fmt.Sprintf(
				"Domain %s is an established free mail provider (treated as maximum age). Legitimate companies rarely recruit through personal mailboxes; weigh this as an impersonation risk.",
				domain),
		}
	}

	if cached, ok := p.cache.Get(ctx, domain); ok {
		return cached
	}

	result := p.lookup(ctx, domain)
	if !result.ProbeFailed {
		p.cache.Set(ctx, result)
	}
	return result
}

// maxProviderAge is the synthetic age reported for free mail providers,
// large enough to sit above any real registration.
const maxProviderAge = 10000

func (p *Prober) lookup(ctx context.Context, domain string) ProbeResult {
	var body rdapResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&body).
		// RDAP servers answer with application/rdap+json; force JSON decoding
		// either way.
		ForceContentType("application/json").
		Get("/domain/" + domain)
	if err != nil {
		p.logger.Warn("RDAP lookup failed", "domain", domain, "error", err)
		return p.unknown(domain)
	}
	if resp.IsError() {
		p.logger.Warn("RDAP lookup returned error status",
			"domain", domain, "status", resp.StatusCode())
		return p.unknown(domain)
	}

	registered, ok := registrationDate(body.Events)
	if !ok {
		p.logger.Warn("RDAP response missing registration event", "domain", domain)
		return p.unknown(domain)
	}

	ageDays := int(p.now().Sub(registered).Hours() / 24)
	result := ProbeResult{
		Domain:       domain,
		AgeDays:      ageDays,
		RegisteredOn: registered,
	}

	if ageDays < p.config.YoungAgeDays {
		result.Note = fmt.Sprintf(
			"Domain %s was registered on %s and is only %d days old. WARNING: domains younger than %d days are a strong recruitment-fraud signal.",
			domain, registered.Format("2006-01-02"), ageDays, p.config.YoungAgeDays)
	} else {
		result.Note = fmt.Sprintf(
			"Domain %s was registered on %s (%d days old); the registration is well established.",
			domain, registered.Format("2006-01-02"), ageDays)
	}
	return result
}

func (p *Prober) unknown(domain string) ProbeResult {
	return ProbeResult{
		Domain:      domain,
		AgeDays:     AgeUnknown,
		ProbeFailed: true,
		Note: fmt.Sprintf(
			"Domain %s: registration data unavailable (registry lookup failed or timed out); domain age is unknown.",
			domain),
	}
}

func registrationDate(events []rdapEvent) (time.Time, bool) {
	for _, ev := range events {
		if ev.EventAction != "registration" {
			continue
		}
		t, err := time.Parse(time.RFC3339, ev.EventDate)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
