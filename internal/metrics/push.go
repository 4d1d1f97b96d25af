package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name used when none is configured.
const DefaultJob = "traefik-dns"

// Pusher replaces this instance's group on a Pushgateway after each cycle.
type Pusher struct {
	pusher *push.Pusher
}

// PusherOption configures a Pusher.
type PusherOption func(*pusherOptions)

type pusherOptions struct {
	gatherer prometheus.Gatherer
	instance string
}

// WithGatherer pushes metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) PusherOption {
	return func(o *pusherOptions) {
		o.gatherer = g
	}
}

// WithInstance adds an instance grouping label.
func WithInstance(instance string) PusherOption {
	return func(o *pusherOptions) {
		o.instance = instance
	}
}

// NewPusher returns a Pusher for the gateway at url.
func NewPusher(url, job string, opts ...PusherOption) *Pusher {
	o := pusherOptions{gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	if job == "" {
		job = DefaultJob
	}

	p := push.New(url, job).Gatherer(o.gatherer)
	if o.instance != "" {
		p = p.Grouping("instance", o.instance)
	}
	return &Pusher{pusher: p}
}

// Push sends the current metric values, replacing the previous push.
func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
