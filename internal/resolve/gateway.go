package resolve

import (
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// ResponseGateway binds one attempt to one provider. It is handed to the
// provider as its response channel and guarantees that at most one outcome
// reaches the executor, no matter how many times or from which goroutines
// the provider calls back. Late or duplicate responses are dropped here,
// before they can touch executor state.
type ResponseGateway struct {
	exec     *Executor
	provider Provider
	timer    *clock.Timer // attempt timeout, stopped on first delivery
	consumed atomic.Bool
}

// OnCreateSuccess forwards the first outcome to the executor; subsequent
// calls are ignored.
func (g *ResponseGateway) OnCreateSuccess(conn Connection) {
	if !g.consumed.CompareAndSwap(false, true) {
		return
	}
	g.stopTimer()
	g.exec.handleSuccess(g, conn)
}

// OnCreateFailure forwards the first outcome to the executor; subsequent
// calls are ignored.
func (g *ResponseGateway) OnCreateFailure(cause Cause, message string) {
	if !g.consumed.CompareAndSwap(false, true) {
		return
	}
	g.stopTimer()
	g.exec.handleFailure(g, cause, message)
}

func (g *ResponseGateway) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
	}
}
