package traefik

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/rule"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

const nextPageHeader = "X-Next-Page"

// routerInfo is the subset of a Traefik v2 router representation we read.
type routerInfo struct {
	Name        string   `json:"name"`
	Rule        string   `json:"rule"`
	Provider    string   `json:"provider"`
	Status      string   `json:"status"`
	EntryPoints []string `json:"entryPoints"`
	Service     string   `json:"service"`
}

// API reads HTTP routers from the Traefik v2+ API.
type API struct {
	name     string
	endpoint *endpoint
	opts     options
}

// NewAPI creates a source for the Traefik API at baseURL
// (e.g., "http://traefik:8080").
func NewAPI(name, baseURL string, opts ...Option) (*API, error) {
	o := buildOptions(opts)
	ep, err := newEndpoint(name, baseURL, o.client)
	if err != nil {
		return nil, err
	}
	return &API{name: name, endpoint: ep, opts: o}, nil
}

// Name returns the source instance name.
func (a *API) Name() string {
	return a.name
}

// Fetch returns the rule of every HTTP router, following X-Next-Page until
// the API reports no further page.
func (a *API) Fetch(ctx context.Context) ([]source.HostRule, error) {
	var rules []source.HostRule

	page := 1
	for n := 0; ; n++ {
		if n >= maxPages {
			return nil, source.NewFetchError(a.name, source.MalformedResponse, errPaginationRunaway)
		}

		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(a.opts.pageSize))

		var routers []routerInfo
		header, err := a.endpoint.getJSON(ctx, "/api/http/routers", query, &routers)
		if err != nil {
			return nil, err
		}

		for _, r := range routers {
			if r.Rule == "" {
				continue
			}
			rules = append(rules, source.HostRule{
				Source: a.name,
				Router: r.Name,
				Rule:   r.Rule,
				Syntax: rule.SyntaxV2,
			})
		}

		next, ok := nextPage(header.Get(nextPageHeader))
		if !ok || next <= page {
			break
		}
		page = next
	}

	a.opts.logger.Debug("fetched traefik routers",
		slog.String("source", a.name),
		slog.Int("rules", len(rules)),
		slog.Int("pages", page),
	)

	return source.WithTarget(rules, a.opts.target), nil
}

func nextPage(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
