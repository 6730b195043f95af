package resolve

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/callbroker/callbroker/internal/database/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func acct(id, component string, caps int64, slot int) models.Account {
	return models.Account{
		ID:           id,
		Component:    component,
		Capabilities: caps,
		SlotIndex:    slot,
		Authorized:   true,
		Enabled:      true,
	}
}

// fakeRegistry is an AccountRegistry backed by plain maps.
type fakeRegistry struct {
	accounts map[string]models.Account
	order    []string
	denied   map[string]bool
	relay    string
	defaults map[string]string
}

func newFakeRegistry(accs ...models.Account) *fakeRegistry {
	f := &fakeRegistry{
		accounts: make(map[string]models.Account),
		denied:   make(map[string]bool),
		defaults: make(map[string]string),
	}
	for _, a := range accs {
		f.accounts[a.ID] = a
		f.order = append(f.order, a.ID)
	}
	return f
}

func (f *fakeRegistry) Account(id string) *models.Account {
	a, ok := f.accounts[id]
	if !ok {
		return nil
	}
	return &a
}

func (f *fakeRegistry) HasPermission(id string) bool {
	_, ok := f.accounts[id]
	return ok && !f.denied[id]
}

func (f *fakeRegistry) RelayAccount() string { return f.relay }

func (f *fakeRegistry) DefaultOutgoingAccount(scheme string) string {
	return f.defaults[scheme]
}

func (f *fakeRegistry) Accounts() []models.Account {
	out := make([]models.Account, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.accounts[id])
	}
	return out
}

// fakeClassifier marks specific tel addresses as emergency numbers.
type fakeClassifier struct {
	numbers map[string]bool
}

func (f *fakeClassifier) IsEmergencyNumber(h Handle) bool {
	return h.Scheme == SchemeTel && f.numbers[h.Address]
}

func noEmergency() *fakeClassifier {
	return &fakeClassifier{numbers: map[string]bool{}}
}

// fakeProvider records calls and optionally responds through a hook.
type fakeProvider struct {
	mu      sync.Mutex
	created []*Request
	aborted []*Request
	respond func(req *Request, rc ResponseChannel)
}

func (p *fakeProvider) CreateConnection(req *Request, rc ResponseChannel) {
	p.mu.Lock()
	p.created = append(p.created, req)
	respond := p.respond
	p.mu.Unlock()
	if respond != nil {
		respond(req, rc)
	}
}

func (p *fakeProvider) Abort(req *Request) {
	p.mu.Lock()
	p.aborted = append(p.aborted, req)
	p.mu.Unlock()
}

func (p *fakeProvider) creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

func (p *fakeProvider) aborts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.aborted)
}

func failWith(cause Cause, msg string) func(*Request, ResponseChannel) {
	return func(_ *Request, rc ResponseChannel) {
		rc.OnCreateFailure(cause, msg)
	}
}

func succeedWith(id string) func(*Request, ResponseChannel) {
	return func(_ *Request, rc ResponseChannel) {
		rc.OnCreateSuccess(&fakeConn{id: id})
	}
}

// fakeProviders maps component names to providers.
type fakeProviders map[string]Provider

func (f fakeProviders) Provider(component string) Provider {
	return f[component]
}

type fakeConn struct {
	id string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Hangup(context.Context) error { return nil }

type outcome struct {
	cause   Cause
	message string
}

// recordingResponder captures every delivery so tests can assert the
// exactly-once property, and signals on each one.
type recordingResponder struct {
	mu        sync.Mutex
	successes []Connection
	failures  []outcome
	delivered chan struct{}
}

func newRecordingResponder() *recordingResponder {
	return &recordingResponder{delivered: make(chan struct{}, 8)}
}

func (r *recordingResponder) OnCreateSuccess(conn Connection) {
	r.mu.Lock()
	r.successes = append(r.successes, conn)
	r.mu.Unlock()
	r.delivered <- struct{}{}
}

func (r *recordingResponder) OnCreateFailure(cause Cause, message string) {
	r.mu.Lock()
	r.failures = append(r.failures, outcome{cause: cause, message: message})
	r.mu.Unlock()
	r.delivered <- struct{}{}
}

func (r *recordingResponder) counts() (successes, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.successes), len(r.failures)
}

func (r *recordingResponder) lastFailure() (outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failures) == 0 {
		return outcome{}, false
	}
	return r.failures[len(r.failures)-1], true
}
