// Package sip places outbound calls through SIP gateways. Each enabled
// gateway gets a Provider that the resolver dispatches attempts to.
package sip

import (
	"fmt"
	"log/slog"

	"github.com/emiago/sipgo"
)

// Stack owns the SIP user agent and client shared by all gateway providers.
type Stack struct {
	ua     *sipgo.UserAgent
	client *sipgo.Client
	logger *slog.Logger
}

// NewStack creates the shared SIP stack.
func NewStack(hostname string, logger *slog.Logger) (*Stack, error) {
	logger = logger.With("component", "sip")

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("CallBroker"),
		sipgo.WithUserAgentHostname(hostname),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	client, err := sipgo.NewClient(ua,
		sipgo.WithClientLogger(logger),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	return &Stack{ua: ua, client: client, logger: logger}, nil
}

// Client returns the shared SIP client.
func (s *Stack) Client() *sipgo.Client {
	return s.client
}

// Close releases the stack's transport resources.
func (s *Stack) Close() {
	s.client.Close()
	s.ua.Close()
}
