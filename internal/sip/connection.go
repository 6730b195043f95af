package sip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
)

// Connection is one answered call leg toward a gateway. It satisfies the
// resolver's connection contract; Hangup sends an in-dialog BYE.
type Connection struct {
	id      string
	stack   *Stack
	invite  *sip.Request
	res     *sip.Response
	tx      sip.ClientTransaction
	logger  *slog.Logger
	once    sync.Once
	onClose func()
}

func newConnection(id string, stack *Stack, invite *sip.Request, res *sip.Response,
	tx sip.ClientTransaction, logger *slog.Logger) *Connection {
	return &Connection{
		id:     id,
		stack:  stack,
		invite: invite,
		res:    res,
		tx:     tx,
		logger: logger.With("call_id", id),
	}
}

// ID returns the broker call id of this connection.
func (c *Connection) ID() string {
	return c.id
}

// Hangup terminates the dialog with a BYE. Safe to call more than once;
// only the first call does anything.
func (c *Connection) Hangup(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		err = c.sendBye(ctx)
		c.tx.Terminate()
		if c.onClose != nil {
			c.onClose()
		}
	})
	return err
}

func (c *Connection) sendBye(ctx context.Context) error {
	bye := buildBYE(c.invite, c.res)

	tx, err := c.stack.Client().TransactionRequest(ctx, bye, sipgo.ClientRequestAddVia)
	if err != nil {
		return fmt.Errorf("sending bye: %w", err)
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tx.Done():
			if txErr := tx.Err(); txErr != nil {
				return fmt.Errorf("bye transaction error: %w", txErr)
			}
			return fmt.Errorf("bye transaction ended without final response")
		case res := <-tx.Responses():
			if res.StatusCode < 200 {
				continue
			}
			if res.StatusCode >= 300 {
				return fmt.Errorf("bye rejected: %d %s", res.StatusCode, res.Reason)
			}
			c.logger.Info("call hung up")
			return nil
		}
	}
}

// buildACKFor2xx creates the ACK for a 2xx response to an INVITE. Per RFC
// 3261 §13.2.2.4 the ACK for a 2xx is generated by the UAC core, not the
// transaction layer. The Request-URI comes from the response's Contact when
// present, otherwise from the original INVITE.
func buildACKFor2xx(invite *sip.Request, res *sip.Response) *sip.Request {
	recipient := &invite.Recipient
	if contact := res.Contact(); contact != nil {
		recipient = &contact.Address
	}

	ack := sip.NewRequest(sip.ACK, *recipient.Clone())
	ack.SipVersion = invite.SipVersion

	if len(invite.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", invite, ack)
	}

	// From as sent, To as answered (it carries the remote tag).
	if h := invite.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := res.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := invite.CallID(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	// Same sequence number, method changed to ACK.
	if h := invite.CSeq(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := ack.CSeq(); cseq != nil {
		cseq.MethodName = sip.ACK
	}

	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	if h := invite.Contact(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	ack.SetTransport(invite.Transport())
	ack.SetSource(invite.Source())

	return ack
}

// buildBYE creates the in-dialog BYE for an answered INVITE. Dialog
// identification mirrors the ACK: From as sent, To as answered, same
// Call-ID. The sequence number advances past the INVITE's.
func buildBYE(invite *sip.Request, res *sip.Response) *sip.Request {
	recipient := &invite.Recipient
	if contact := res.Contact(); contact != nil {
		recipient = &contact.Address
	}

	bye := sip.NewRequest(sip.BYE, *recipient.Clone())
	bye.SipVersion = invite.SipVersion

	if len(invite.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", invite, bye)
	}

	if h := invite.From(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}
	if h := res.To(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}
	if h := invite.CallID(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}

	if h := invite.CSeq(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := bye.CSeq(); cseq != nil {
		cseq.SeqNo++
		cseq.MethodName = sip.BYE
	}

	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)

	bye.SetTransport(invite.Transport())

	return bye
}
