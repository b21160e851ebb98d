package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/accounts"
	"github.com/haruocode/otomohan-sub001/internal/auth"
	"github.com/haruocode/otomohan-sub001/internal/broadcast"
	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/observability"
	"github.com/haruocode/otomohan-sub001/internal/rbac"
	"github.com/haruocode/otomohan-sub001/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// CallController is the lifecycle surface the gateway drives.
// *call.Coordinator satisfies it.
type CallController interface {
	Initiate(ctx context.Context, req call.InitiateRequest) (call.Session, error)
	Accept(ctx context.Context, callID, otomoID string) (call.Session, error)
	Reject(ctx context.Context, callID, otomoID string) (call.Session, error)
	RequestEnd(ctx context.Context, callID, requesterID string) (broadcast.CallEnd, bool, error)
}

// Config tunes connection handling.
type Config struct {
	// MaxConnsPerAccount caps live websocket connections per account.
	MaxConnsPerAccount int
	// ConnSlotTTL bounds slot leakage if the process dies without releasing.
	ConnSlotTTL time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxConnsPerAccount <= 0 {
		out.MaxConnsPerAccount = 3
	}
	if out.ConnSlotTTL <= 0 {
		out.ConnSlotTTL = time.Hour
	}
	return out
}

// Gateway terminates signaling websockets: it authenticates the handshake,
// registers the connection for broadcasts, tracks otomo presence and routes
// inbound frames to the call lifecycle.
type Gateway struct {
	calls    CallController
	registry *broadcast.Registry
	presence accounts.PresenceTracker
	tokens   *auth.Manager
	rdb      *redis.Client
	metrics  *observability.Metrics
	log      *slog.Logger
	cfg      Config

	upgrader websocket.Upgrader
}

func New(calls CallController, registry *broadcast.Registry, presence accounts.PresenceTracker, tokens *auth.Manager, rdb *redis.Client, metrics *observability.Metrics, log *slog.Logger, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		calls:    calls,
		registry: registry,
		presence: presence,
		tokens:   tokens,
		rdb:      rdb,
		metrics:  metrics,
		log:      log,
		cfg:      cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced upstream by the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and runs the connection's read loop until the
// peer disconnects.
func (g *Gateway) ServeWS(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := g.tokens.Verify(token, auth.TokenTypeAccess, time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claims.Role != rbac.RoleCaller && claims.Role != rbac.RoleOtomo {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	ctx := c.Request.Context()
	slotKey := "ws_conns:" + claims.UserID
	if g.rdb != nil {
		ok, err := utils.AcquireConnSlot(ctx, g.rdb, slotKey, g.cfg.MaxConnsPerAccount, g.cfg.ConnSlotTTL)
		if err != nil {
			g.log.Error("conn slot acquire failed", "account_id", claims.UserID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "connection limit reached"})
			return
		}
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		g.releaseSlot(slotKey)
		g.log.Warn("websocket upgrade failed", "account_id", claims.UserID, "err", err)
		return
	}

	g.runConn(claims.UserID, claims.Role, conn, slotKey)
}

func (g *Gateway) runConn(accountID, role string, conn *websocket.Conn, slotKey string) {
	client := g.registry.Register(accountID, conn)
	if g.metrics != nil {
		g.metrics.WSConnections.Inc()
	}

	ctx := context.Background()
	if role == rbac.RoleOtomo {
		if err := g.presence.SetOnline(ctx, accountID); err != nil {
			g.log.Error("presence set online failed", "account_id", accountID, "err", err)
		}
	}
	g.log.Info("gateway connected", "account_id", accountID, "role", role)

	defer func() {
		g.registry.Unregister(client)
		if g.metrics != nil {
			g.metrics.WSConnections.Dec()
		}
		g.releaseSlot(slotKey)
		// Only drop presence when this was the account's last connection.
		if role == rbac.RoleOtomo && !g.registry.Connected(accountID) {
			if err := g.presence.SetOffline(ctx, accountID); err != nil {
				g.log.Error("presence set offline failed", "account_id", accountID, "err", err)
			}
		}
		_ = conn.Close()
		g.log.Info("gateway disconnected", "account_id", accountID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Warn("gateway read failed", "account_id", accountID, "err", err)
			}
			return
		}

		if role == rbac.RoleOtomo {
			// Any inbound traffic refreshes presence.
			if err := g.presence.Refresh(ctx, accountID); err != nil {
				g.log.Error("presence refresh failed", "account_id", accountID, "err", err)
			}
		}

		reply := g.HandleMessage(ctx, accountID, role, raw)
		if reply == nil {
			continue
		}
		if err := client.Send(reply); err != nil {
			g.log.Warn("gateway write failed", "account_id", accountID, "err", err)
			return
		}
	}
}

// HandleMessage routes one inbound frame and returns the direct reply for the
// sending connection. Broadcast side effects happen inside the lifecycle
// components.
func (g *Gateway) HandleMessage(ctx context.Context, accountID, role string, raw []byte) any {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return errorFrame("", "", "INVALID_MESSAGE", "malformed frame")
	}
	if g.metrics != nil {
		g.metrics.WSMessages.WithLabelValues("inbound", in.Type).Inc()
	}

	switch in.Type {
	case OpCallRequest:
		if role != rbac.RoleCaller {
			return errorFrame(in.Type, in.CallID, "FORBIDDEN", "only callers may request calls")
		}
		_, err := g.calls.Initiate(ctx, call.InitiateRequest{
			CallID:   in.CallID,
			CallerID: accountID,
			OtomoID:  in.OtomoID,
		})
		if err != nil {
			return g.toErrorFrame(in, err)
		}
		return ack(in.Type, in.CallID)

	case OpCallAccept:
		if role != rbac.RoleOtomo {
			return errorFrame(in.Type, in.CallID, "FORBIDDEN", "only otomos may accept calls")
		}
		if _, err := g.calls.Accept(ctx, in.CallID, accountID); err != nil {
			return g.toErrorFrame(in, err)
		}
		return ack(in.Type, in.CallID)

	case OpCallReject:
		if role != rbac.RoleOtomo {
			return errorFrame(in.Type, in.CallID, "FORBIDDEN", "only otomos may reject calls")
		}
		if _, err := g.calls.Reject(ctx, in.CallID, accountID); err != nil {
			return g.toErrorFrame(in, err)
		}
		return ack(in.Type, in.CallID)

	case OpCallEndRequest:
		if _, _, err := g.calls.RequestEnd(ctx, in.CallID, accountID); err != nil {
			return g.toErrorFrame(in, err)
		}
		return ack(in.Type, in.CallID)

	default:
		return errorFrame(in.Type, in.CallID, "INVALID_MESSAGE", "unknown operation")
	}
}

func (g *Gateway) toErrorFrame(in Inbound, err error) ErrorFrame {
	if errors.Is(err, call.ErrInvalidArgument) {
		return errorFrame(in.Type, in.CallID, "INVALID_MESSAGE", "missing required field")
	}
	if code := call.CodeOf(err); code != "" {
		return errorFrame(in.Type, in.CallID, code, err.Error())
	}
	g.log.Error("gateway operation failed", "op", in.Type, "call_id", in.CallID, "err", err)
	return errorFrame(in.Type, in.CallID, "INTERNAL", "internal error")
}

func (g *Gateway) releaseSlot(slotKey string) {
	if g.rdb == nil {
		return
	}
	if err := utils.ReleaseConnSlot(context.Background(), g.rdb, slotKey); err != nil {
		g.log.Error("conn slot release failed", "key", slotKey, "err", err)
	}
}
