package rfc2136

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"
)

// tsigFudge is the allowed clock skew for TSIG signatures, in seconds.
const tsigFudge = 300

// rcodeError is a DNS response with a non-success rcode.
type rcodeError struct {
	Rcode int
}

func (e *rcodeError) Error() string {
	return "server returned " + dns.RcodeToString[e.Rcode]
}

// transferError is a failed zone transfer.
type transferError struct {
	Err error
}

func (e *transferError) Error() string {
	return "zone transfer (AXFR) failed: " + e.Err.Error()
}

func (e *transferError) Unwrap() error {
	return e.Err
}

// client sends DNS UPDATE and AXFR messages to one server.
type client struct {
	config *Config
	dns    *dns.Client
	logger *slog.Logger
}

func newClient(config *Config, logger *slog.Logger) *client {
	c := &client{
		config: config,
		logger: logger,
		dns: &dns.Client{
			Net:     "udp",
			Timeout: config.ExchangeTimeout(),
		},
	}
	if config.UseTCP {
		c.dns.Net = "tcp"
	}
	if config.HasTSIG() {
		c.dns.TsigSecret = map[string]string{config.TSIGKeyName: config.TSIGSecret}
	}
	return c
}

func (c *client) sign(msg *dns.Msg) {
	if c.config.HasTSIG() {
		msg.SetTsig(c.config.TSIGKeyName, c.config.Algorithm(), tsigFudge, time.Now().Unix())
	}
}

// update sends an UPDATE for zone and checks the response rcode.
func (c *client) update(ctx context.Context, msg *dns.Msg) error {
	c.sign(msg)

	resp, rtt, err := c.dns.ExchangeContext(ctx, msg, c.config.Address())
	if err != nil {
		return fmt.Errorf("dns update: %w", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return &rcodeError{Rcode: resp.Rcode}
	}

	c.logger.Debug("dns update accepted",
		slog.String("zone", msg.Question[0].Name),
		slog.Int("changes", len(msg.Ns)),
		slog.Duration("rtt", rtt),
	)
	return nil
}

// transfer returns every RR in zone through AXFR. The transfer is bounded
// by the context deadline when one is set.
func (c *client) transfer(ctx context.Context, zone string) ([]dns.RR, error) {
	timeout := c.config.ExchangeTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}

	t := &dns.Transfer{
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if c.config.HasTSIG() {
		t.TsigSecret = map[string]string{c.config.TSIGKeyName: c.config.TSIGSecret}
	}

	msg := new(dns.Msg)
	msg.SetAxfr(dns.Fqdn(zone))
	c.sign(msg)

	env, err := t.In(msg, c.config.Address())
	if err != nil {
		return nil, &transferError{Err: err}
	}

	var rrs []dns.RR
	var transferErr error
	for e := range env {
		if e.Error != nil {
			// Drain the channel so the transfer goroutine can exit.
			if transferErr == nil {
				transferErr = e.Error
			}
			continue
		}
		rrs = append(rrs, e.RR...)
	}
	if transferErr != nil {
		return nil, &transferError{Err: transferErr}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rrs) == 0 {
		return nil, &transferError{Err: errors.New("empty transfer")}
	}
	return rrs, nil
}
