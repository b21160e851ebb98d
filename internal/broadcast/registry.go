package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

// Sender is the fanout interface consumed by the call lifecycle components.
type Sender interface {
	SendToAccounts(ctx context.Context, accountIDs []string, message any)
}

// Conn is the minimal connection surface the registry needs.
// *websocket.Conn satisfies it, but the registry never assumes a transport.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one registered connection. The registry hands it back from
// Register so the owner can unregister exactly this connection later.
type Client struct {
	accountID string
	conn      Conn

	// writeMu serializes writes; websocket connections allow only one
	// concurrent writer.
	writeMu sync.Mutex
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Send writes a message to this connection only. Used for direct replies such
// as acks and errors; fanout goes through the registry.
func (c *Client) Send(v any) error { return c.send(v) }

// Registry tracks live client connections per account id. It exclusively owns
// its account->connections table; callers interact only through Register,
// Unregister and SendToAccounts.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[*Client]struct{}
	log   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

// Register adds a connection for accountID and returns its handle.
func (r *Registry) Register(accountID string, conn Conn) *Client {
	c := &Client{accountID: accountID, conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[accountID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[accountID] = set
	}
	set[c] = struct{}{}
	return c
}

// Unregister removes a previously registered connection. Safe to call twice.
func (r *Registry) Unregister(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.accountID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.accountID)
	}
}

// Connected reports whether accountID has at least one live connection.
func (r *Registry) Connected(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[accountID]) > 0
}

// ConnectionCount returns the total number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// SendToAccounts delivers message to every connection of every listed account.
// Write failures are logged and the failing connection is dropped from the
// registry; they are never surfaced to the caller.
func (r *Registry) SendToAccounts(ctx context.Context, accountIDs []string, message any) {
	_ = ctx

	r.mu.Lock()
	var targets []*Client
	for _, id := range accountIDs {
		for c := range r.conns[id] {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.send(message); err != nil {
			r.log.Warn("broadcast write failed, dropping connection",
				"account_id", c.accountID, "err", err)
			r.Unregister(c)
			_ = c.conn.Close()
		}
	}
}
