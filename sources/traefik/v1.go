package traefik

import (
	"context"
	"sort"

	"gitlab.bluewillows.net/root/traefik-dns/pkg/rule"
	"gitlab.bluewillows.net/root/traefik-dns/pkg/source"
)

// v1Provider is one entry of the Traefik v1 /api/providers response.
type v1Provider struct {
	Frontends map[string]v1Frontend `json:"frontends"`
}

type v1Frontend struct {
	Routes map[string]v1Route `json:"routes"`
}

type v1Route struct {
	Rule string `json:"rule"`
}

// V1API reads frontend routes from the Traefik v1 API.
type V1API struct {
	name     string
	endpoint *endpoint
	opts     options
}

// NewV1API creates a source for a Traefik v1 API at baseURL.
func NewV1API(name, baseURL string, opts ...Option) (*V1API, error) {
	o := buildOptions(opts)
	ep, err := newEndpoint(name, baseURL, o.client)
	if err != nil {
		return nil, err
	}
	return &V1API{name: name, endpoint: ep, opts: o}, nil
}

// Name returns the source instance name.
func (v *V1API) Name() string {
	return v.name
}

// Fetch returns every frontend route rule. Routers are named
// "<frontend>@<provider>" and reported in sorted order.
func (v *V1API) Fetch(ctx context.Context) ([]source.HostRule, error) {
	var providers map[string]v1Provider
	if _, err := v.endpoint.getJSON(ctx, "/api/providers", nil, &providers); err != nil {
		return nil, err
	}

	var rules []source.HostRule
	for _, pname := range sortedKeys(providers) {
		frontends := providers[pname].Frontends
		for _, fname := range sortedKeys(frontends) {
			routes := frontends[fname].Routes
			for _, rname := range sortedKeys(routes) {
				r := routes[rname].Rule
				if r == "" {
					continue
				}
				rules = append(rules, source.HostRule{
					Source: v.name,
					Router: fname + "@" + pname,
					Rule:   r,
					Syntax: rule.SyntaxV1,
				})
			}
		}
	}

	return source.WithTarget(rules, v.opts.target), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
