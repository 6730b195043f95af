package sip

import (
	"testing"

	"github.com/emiago/sipgo/sip"

	"github.com/callbroker/callbroker/internal/resolve"
)

func TestMapFailureStatus(t *testing.T) {
	tests := []struct {
		status int
		reason string
		want   resolve.Cause
	}{
		{404, "Not Found", resolve.CauseInvalidNumber},
		{484, "Address Incomplete", resolve.CauseInvalidNumber},
		{604, "Does Not Exist Anywhere", resolve.CauseInvalidNumber},
		{401, "Unauthorized", resolve.CauseNoPermission},
		{403, "Forbidden", resolve.CauseNoPermission},
		{407, "Proxy Authentication Required", resolve.CauseNoPermission},
		{486, "Busy Here", resolve.CauseOutgoingFailure},
		{487, "Request Terminated", resolve.CauseOutgoingFailure},
		{503, "Service Unavailable", resolve.CauseOutgoingFailure},
		{600, "Busy Everywhere", resolve.CauseOutgoingFailure},
	}
	for _, tt := range tests {
		cause, msg := mapFailureStatus(tt.status, tt.reason)
		if cause != tt.want {
			t.Errorf("mapFailureStatus(%d) = %q, want %q", tt.status, cause, tt.want)
		}
		if msg == "" {
			t.Errorf("mapFailureStatus(%d) returned empty message", tt.status)
		}
	}
}

func TestDialUser(t *testing.T) {
	tests := []struct {
		name   string
		handle resolve.Handle
		want   string
	}{
		{"tel number", resolve.Handle{Scheme: "tel", Address: "5550100"}, "5550100"},
		{"tel with plus", resolve.Handle{Scheme: "tel", Address: "+15550100"}, "+15550100"},
		{"sip with host", resolve.Handle{Scheme: "sip", Address: "alice@example.com"}, "alice"},
		{"sip bare user", resolve.Handle{Scheme: "sip", Address: "alice"}, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dialUser(tt.handle); got != tt.want {
				t.Errorf("dialUser(%v) = %q, want %q", tt.handle, got, tt.want)
			}
		})
	}
}

func answeredInvite(t *testing.T) (*sip.Request, *sip.Response) {
	t.Helper()
	var recipient sip.Uri
	if err := sip.ParseUri("sip:5550100@gw.example.com:5060", &recipient); err != nil {
		t.Fatalf("parsing uri: %v", err)
	}
	invite := sip.NewRequest(sip.INVITE, recipient)
	callID := sip.CallIDHeader("call-1")
	invite.AppendHeader(&callID)

	from := &sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: "broker", Host: "local"},
		Params:  sip.NewParams(),
	}
	from.Params.Add("tag", "abc")
	invite.AppendHeader(from)
	invite.AppendHeader(&sip.ToHeader{Address: recipient})
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})

	res := sip.NewResponseFromRequest(invite, 200, "OK", nil)
	if to := res.To(); to != nil {
		to.Params = sip.NewParams()
		to.Params.Add("tag", "remote-tag")
	}
	return invite, res
}

func TestBuildBYE(t *testing.T) {
	invite, res := answeredInvite(t)
	bye := buildBYE(invite, res)

	if bye.Method != sip.BYE {
		t.Fatalf("method = %s, want BYE", bye.Method)
	}
	cseq := bye.CSeq()
	if cseq == nil || cseq.SeqNo != 2 || cseq.MethodName != sip.BYE {
		t.Errorf("cseq = %v, want 2 BYE", cseq)
	}
	if cid := bye.CallID(); cid == nil || cid.Value() != "call-1" {
		t.Errorf("call id not preserved: %v", bye.CallID())
	}
	to := bye.To()
	if to == nil {
		t.Fatal("bye has no To header")
	}
	if tag, ok := to.Params.Get("tag"); !ok || tag != "remote-tag" {
		t.Errorf("remote tag not carried into BYE To header: %v", to)
	}
}

func TestBuildACKFor2xx(t *testing.T) {
	invite, res := answeredInvite(t)
	ack := buildACKFor2xx(invite, res)

	if ack.Method != sip.ACK {
		t.Fatalf("method = %s, want ACK", ack.Method)
	}
	cseq := ack.CSeq()
	if cseq == nil || cseq.SeqNo != 1 || cseq.MethodName != sip.ACK {
		t.Errorf("cseq = %v, want 1 ACK", cseq)
	}
	if from := ack.From(); from == nil {
		t.Error("ack has no From header")
	}
	if cid := ack.CallID(); cid == nil || cid.Value() != "call-1" {
		t.Errorf("call id not preserved: %v", ack.CallID())
	}
}
