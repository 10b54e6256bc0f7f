package p2p

import (
	"sync"

	"github.com/XDagger/xdagj-p2p-go/message"
)

// Handler processes one application-level frame received on a channel.
// It is keyed by the frame's leading message-type byte: a sum-type
// Message plus a byte-keyed handler table, not an inheritance hierarchy
// of message classes.
type Handler interface {
	HandleMessage(peer *Peer, code message.Code, body []byte) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(peer *Peer, code message.Code, body []byte) error

func (f HandlerFunc) HandleMessage(peer *Peer, code message.Code, body []byte) error {
	return f(peer, code, body)
}

// ConnectFunc and DisconnectFunc are the connect/disconnect lifecycle
// callbacks an application layer registers alongside message handlers.
type ConnectFunc func(peer *Peer)
type DisconnectFunc func(peer *Peer, reason message.ReasonCode)

// HandlerPlane dispatches inbound frames to registered handlers by
// leading message-type byte and fans out connect/disconnect
// notifications, as an explicit registry rather than a hard-coded
// protocol switch.
type HandlerPlane struct {
	mu       sync.RWMutex
	handlers map[message.Code]Handler

	onConnect    []ConnectFunc
	onDisconnect []DisconnectFunc
}

// NewHandlerPlane creates an empty dispatch table.
func NewHandlerPlane() *HandlerPlane {
	return &HandlerPlane{handlers: make(map[message.Code]Handler)}
}

// RegisterHandler binds a Handler to a message code. It is an error to
// register the same code twice, returning ErrTypeAlreadyRegistered.
func (h *HandlerPlane) RegisterHandler(code message.Code, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlers[code]; exists {
		return message.ErrTypeAlreadyRegistered
	}
	h.handlers[code] = handler
	return nil
}

// OnConnect registers a callback run once a channel reaches Active.
func (h *HandlerPlane) OnConnect(f ConnectFunc) {
	h.mu.Lock()
	h.onConnect = append(h.onConnect, f)
	h.mu.Unlock()
}

// OnDisconnect registers a callback run once a channel is torn down.
func (h *HandlerPlane) OnDisconnect(f DisconnectFunc) {
	h.mu.Lock()
	h.onDisconnect = append(h.onDisconnect, f)
	h.mu.Unlock()
}

// Dispatch routes one inbound frame to its registered handler, returning
// ErrNoSuchMessage if nothing is registered for that code.
func (h *HandlerPlane) Dispatch(peer *Peer, code message.Code, body []byte) error {
	h.mu.RLock()
	handler, ok := h.handlers[code]
	h.mu.RUnlock()
	if !ok {
		return message.ErrNoSuchMessage
	}
	return handler.HandleMessage(peer, code, body)
}

func (h *HandlerPlane) fireConnect(peer *Peer) {
	h.mu.RLock()
	cbs := append([]ConnectFunc(nil), h.onConnect...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(peer)
	}
}

func (h *HandlerPlane) fireDisconnect(peer *Peer, reason message.ReasonCode) {
	h.mu.RLock()
	cbs := append([]DisconnectFunc(nil), h.onDisconnect...)
	h.mu.RUnlock()
	for _, cb := range cbs {
		cb(peer, reason)
	}
}
