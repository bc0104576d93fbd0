package signal

import (
	"encoding/json"
	"fmt"
	"sync"
)

// jsonRPCVersion is the protocol version stamped on every request.
const jsonRPCVersion = "2.0"

// rpcRequest is an outgoing JSON-RPC 2.0 request or notification.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is an inbound JSON-RPC 2.0 response. Exactly one of Result
// and Error is set; the daemon guarantees this and validate enforces it
// defensively on parse.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// validate rejects responses that violate the result-XOR-error contract.
func (r *rpcResponse) validate() error {
	if r.Result != nil && r.Error != nil {
		return fmt.Errorf("response %s carries both result and error", r.ID)
	}
	if r.Result == nil && r.Error == nil {
		return fmt.Errorf("response %s carries neither result nor error", r.ID)
	}
	return nil
}

// Notification is a daemon-initiated JSON-RPC push message. It has no id
// and never resolves a pending call.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// callResult is what a pending call eventually receives: a response from
// the daemon or a transport-level failure.
type callResult struct {
	resp *rpcResponse
	err  error
}

// pendingCalls is the in-flight correlation map. It is the only shared
// mutable state between the caller issuing a request, the read loop
// delivering its response, and the timeout removing it.
type pendingCalls struct {
	mu sync.Mutex
	m  map[string]chan callResult
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{m: make(map[string]chan callResult)}
}

// register creates the entry for a new correlation token. The returned
// channel has capacity 1 so the read loop never blocks on delivery.
func (p *pendingCalls) register(id string) chan callResult {
	ch := make(chan callResult, 1)
	p.mu.Lock()
	p.m[id] = ch
	p.mu.Unlock()
	return ch
}

// remove deletes the entry for id, if still present.
func (p *pendingCalls) remove(id string) {
	p.mu.Lock()
	delete(p.m, id)
	p.mu.Unlock()
}

// resolve delivers a response to the pending call with the matching id.
// Responses for unknown ids (already timed out, or never ours) are
// reported false and dropped by the caller.
func (p *pendingCalls) resolve(resp *rpcResponse) bool {
	p.mu.Lock()
	ch, ok := p.m[resp.ID]
	if ok {
		delete(p.m, resp.ID)
	}
	p.mu.Unlock()
	if ok {
		ch <- callResult{resp: resp}
	}
	return ok
}

// failAll rejects every outstanding call with err. Used when the
// transport dies so waiters do not hang until their individual timeouts.
func (p *pendingCalls) failAll(err error) {
	p.mu.Lock()
	for id, ch := range p.m {
		delete(p.m, id)
		ch <- callResult{err: err}
	}
	p.mu.Unlock()
}

// size reports the number of outstanding calls.
func (p *pendingCalls) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
