package sip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/callbroker/callbroker/internal/database/models"
	"github.com/callbroker/callbroker/internal/resolve"
)

// inviteTimeout bounds how long an INVITE may ring before the attempt is
// treated as failed.
const inviteTimeout = 60 * time.Second

// Provider places calls through one SIP gateway. It implements the
// resolver's provider contract: CreateConnection returns immediately and
// the outcome arrives on the response channel, Abort tears down whatever
// the request has built so far.
type Provider struct {
	gateway models.Gateway
	stack   *Stack
	logger  *slog.Logger

	mu          sync.Mutex
	pending     map[string]context.CancelFunc // request id -> cancel of in-flight INVITE
	established map[string]*Connection        // request id -> accepted connection
}

// NewProvider creates a provider for one gateway.
func NewProvider(gateway models.Gateway, stack *Stack, logger *slog.Logger) *Provider {
	return &Provider{
		gateway: gateway,
		stack:   stack,
		logger: logger.With("subsystem", "sip-provider",
			"component", gateway.Component),
		pending:     make(map[string]context.CancelFunc),
		established: make(map[string]*Connection),
	}
}

// CreateConnection sends an INVITE for the request's handle through the
// gateway. The outcome is delivered on rc from a separate goroutine.
func (p *Provider) CreateConnection(req *resolve.Request, rc resolve.ResponseChannel) {
	ctx, cancel := context.WithTimeout(context.Background(), inviteTimeout)
	p.mu.Lock()
	p.pending[req.ID] = cancel
	p.mu.Unlock()

	go p.place(ctx, cancel, req, rc)
}

// Abort cancels the in-flight INVITE for the request, or hangs up the
// connection if the gateway already answered.
func (p *Provider) Abort(req *resolve.Request) {
	p.mu.Lock()
	cancel := p.pending[req.ID]
	delete(p.pending, req.ID)
	conn := p.established[req.ID]
	delete(p.established, req.ID)
	p.mu.Unlock()

	if cancel != nil {
		p.logger.Info("aborting pending attempt", "call_id", req.ID)
		cancel()
	}
	if conn != nil {
		p.logger.Info("hanging up unwanted connection", "call_id", req.ID)
		ctx, hangupCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer hangupCancel()
		if err := conn.Hangup(ctx); err != nil {
			p.logger.Error("hangup failed", "call_id", req.ID, "error", err)
		}
	}
}

func (p *Provider) place(ctx context.Context, cancel context.CancelFunc, req *resolve.Request, rc resolve.ResponseChannel) {
	defer cancel()
	result := p.sendInvite(ctx, req)

	p.mu.Lock()
	delete(p.pending, req.ID)
	p.mu.Unlock()

	if result.err != nil {
		if errors.Is(result.err, context.Canceled) {
			// Aborted while ringing; nobody is listening anymore.
			return
		}
		p.logger.Error("invite failed", "call_id", req.ID, "error", result.err)
		rc.OnCreateFailure(resolve.CauseOutgoingFailure, result.err.Error())
		return
	}

	if !result.answered {
		cause, msg := mapFailureStatus(result.statusCode, result.reason)
		p.logger.Info("gateway rejected call",
			"call_id", req.ID, "status", result.statusCode, "reason", result.reason)
		rc.OnCreateFailure(cause, msg)
		return
	}

	// 2xx: the ACK is generated here, outside the transaction layer.
	ack := buildACKFor2xx(result.req, result.res)
	if err := p.stack.Client().WriteRequest(ack); err != nil {
		p.logger.Error("sending ack failed", "call_id", req.ID, "error", err)
		result.tx.Terminate()
		rc.OnCreateFailure(resolve.CauseOutgoingFailure, fmt.Sprintf("sending ack: %v", err))
		return
	}

	// Registered before delivery so a teardown Abort can always find it.
	conn := newConnection(req.ID, p.stack, result.req, result.res, result.tx, p.logger)
	conn.onClose = func() { p.forget(req.ID) }
	p.mu.Lock()
	p.established[req.ID] = conn
	p.mu.Unlock()

	p.logger.Info("gateway answered call", "call_id", req.ID)
	rc.OnCreateSuccess(conn)
}

func (p *Provider) forget(requestID string) {
	p.mu.Lock()
	delete(p.established, requestID)
	p.mu.Unlock()
}

// inviteResult holds the outcome of one INVITE toward the gateway.
type inviteResult struct {
	answered   bool
	statusCode int
	reason     string
	req        *sip.Request
	res        *sip.Response
	tx         sip.ClientTransaction
	err        error
}

// sendInvite builds and sends the INVITE, absorbing provisional responses
// and answering digest challenges, until a final response or ctx ends.
func (p *Provider) sendInvite(ctx context.Context, req *resolve.Request) *inviteResult {
	user := dialUser(req.Handle)
	recipientStr := fmt.Sprintf("sip:%s@%s:%d", user, p.gateway.Host, p.gateway.Port)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return &inviteResult{err: fmt.Errorf("parsing gateway uri: %w", err)}
	}

	invite := sip.NewRequest(sip.INVITE, recipient)
	invite.SetTransport(strings.ToUpper(p.gateway.Transport))

	// Reuse the broker call id on the wire for record correlation.
	invite.AppendHeader(sip.NewHeader("Call-ID", req.ID))

	if p.gateway.CallerIDNum != "" {
		from := &sip.FromHeader{
			Address: sip.Uri{
				Scheme: "sip",
				User:   p.gateway.CallerIDNum,
				Host:   p.gateway.Host,
			},
			Params: sip.NewParams(),
		}
		from.Params.Add("tag", sip.GenerateTagN(16))
		invite.AppendHeader(from)
	}

	p.logger.Debug("sending invite", "call_id", req.ID, "recipient", recipientStr)

	tx, err := p.stack.Client().TransactionRequest(ctx, invite, sipgo.ClientRequestBuild)
	if err != nil {
		return &inviteResult{err: fmt.Errorf("sending invite: %w", err)}
	}

	return p.collectResponses(ctx, tx, invite, req, false)
}

// collectResponses drains a client transaction until a final response.
// authenticated marks the second pass after a digest challenge; a second
// challenge there is a hard failure.
func (p *Provider) collectResponses(ctx context.Context, tx sip.ClientTransaction,
	invite *sip.Request, req *resolve.Request, authenticated bool) *inviteResult {
	for {
		var res *sip.Response
		select {
		case <-ctx.Done():
			tx.Terminate()
			return &inviteResult{err: ctx.Err()}
		case <-tx.Done():
			tx.Terminate()
			if txErr := tx.Err(); txErr != nil {
				return &inviteResult{err: fmt.Errorf("gateway transaction error: %w", txErr)}
			}
			return &inviteResult{err: fmt.Errorf("gateway transaction ended without final response")}
		case res = <-tx.Responses():
		}

		p.logger.Debug("gateway response",
			"call_id", req.ID, "status", res.StatusCode, "reason", res.Reason)

		switch {
		case res.StatusCode < 200:
			// 100/180/183: keep waiting for the final response.
			continue

		case res.StatusCode == 401 || res.StatusCode == 407:
			tx.Terminate()
			if authenticated {
				return &inviteResult{
					statusCode: res.StatusCode,
					reason:     res.Reason,
				}
			}
			return p.answerChallenge(ctx, invite, res, req)

		case res.StatusCode < 300:
			return &inviteResult{
				answered: true,
				req:      invite,
				res:      res,
				tx:       tx,
			}

		default:
			tx.Terminate()
			return &inviteResult{
				statusCode: res.StatusCode,
				reason:     res.Reason,
			}
		}
	}
}

// answerChallenge responds to a 401/407 digest challenge by re-sending the
// INVITE with credentials.
func (p *Provider) answerChallenge(ctx context.Context, invite *sip.Request,
	challenge *sip.Response, req *resolve.Request) *inviteResult {
	authHeader := "WWW-Authenticate"
	authzHeader := "Authorization"
	if challenge.StatusCode == 407 {
		authHeader = "Proxy-Authenticate"
		authzHeader = "Proxy-Authorization"
	}

	h := challenge.GetHeader(authHeader)
	if h == nil {
		return &inviteResult{
			err: fmt.Errorf("gateway sent %d without %s header", challenge.StatusCode, authHeader),
		}
	}
	chal, err := digest.ParseChallenge(h.Value())
	if err != nil {
		return &inviteResult{err: fmt.Errorf("parsing auth challenge: %w", err)}
	}

	authUser := p.gateway.Username
	if p.gateway.AuthUsername != "" {
		authUser = p.gateway.AuthUsername
	}
	uri := fmt.Sprintf("sip:%s@%s:%d", invite.Recipient.User, p.gateway.Host, p.gateway.Port)

	cred, err := digest.Digest(chal, digest.Options{
		Method:   invite.Method.String(),
		URI:      uri,
		Username: authUser,
		Password: p.gateway.Password,
	})
	if err != nil {
		return &inviteResult{err: fmt.Errorf("computing digest: %w", err)}
	}

	p.logger.Debug("re-sending invite with credentials", "call_id", req.ID)

	authReq := invite.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))

	tx, err := p.stack.Client().TransactionRequest(ctx, authReq,
		sipgo.ClientRequestIncreaseCSEQ,
		sipgo.ClientRequestAddVia,
	)
	if err != nil {
		return &inviteResult{err: fmt.Errorf("sending authenticated invite: %w", err)}
	}
	return p.collectResponses(ctx, tx, authReq, req, true)
}

// dialUser extracts the user part to dial through the gateway. SIP handles
// keep only the user before any host part; tel handles dial as-is.
func dialUser(h resolve.Handle) string {
	if h.Scheme == resolve.SchemeSIP {
		if user, _, found := strings.Cut(h.Address, "@"); found {
			return user
		}
	}
	return h.Address
}
