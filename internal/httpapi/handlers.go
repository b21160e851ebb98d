package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/haruocode/otomohan-sub001/internal/audit"
	"github.com/haruocode/otomohan-sub001/internal/auth"
	"github.com/haruocode/otomohan-sub001/internal/billing"
	"github.com/haruocode/otomohan-sub001/internal/call"
	"github.com/haruocode/otomohan-sub001/internal/rbac"
	"github.com/haruocode/otomohan-sub001/internal/reporting"
	"github.com/haruocode/otomohan-sub001/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Wallet    *wallet.Service
	Calls     *call.Coordinator
	CallStore call.Store
	Timers    *billing.Engine
	Reports   *reporting.Service
	Audit     *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Wallet ---

func (h Handlers) GetWalletBalance(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	points, err := h.Wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "points": points})
}

type adminCreditRequest struct {
	UserID      string `json:"user_id"`
	Points      int64  `json:"points"`
	ExternalRef string `json:"external_ref"`
}

// AdminCredit performs an admin-only point grant (or correction when negative).
func (h Handlers) AdminCredit(c *gin.Context) {
	if h.Wallet == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "wallet not configured"})
		return
	}
	var req adminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Points == 0 || req.ExternalRef == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, points, external_ref required"})
		return
	}
	balance, err := h.Wallet.Adjust(c.Request.Context(), req.UserID, req.Points, req.ExternalRef)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.Audit != nil {
		actorID, _ := auth.UserID(c.Request.Context())
		actorRole, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogAdminCredit(c.Request.Context(), actorID, actorRole, c.ClientIP(), req.UserID, req.Points, req.ExternalRef); err != nil {
			slog.Error("audit append failed", "target_user_id", req.UserID, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": req.UserID, "points": balance})
}

// --- Reports ---

// parseRange reads from/to query params (RFC3339). Defaults to the last 24h.
func parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	r := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now}

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, false
		}
		r.To = t
	}
	return r, true
}

func (h Handlers) UsageReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	r, ok := parseRange(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to must be RFC3339"})
		return
	}
	out, err := h.Reports.UsageSummary(c.Request.Context(), reporting.UsageSummaryRequest{
		Range:   r,
		OtomoID: c.Query("otomo_id"),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendReport(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	r, ok := parseRange(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to must be RFC3339"})
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		UserID: c.Query("user_id"),
		Range:  r,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Calls ---

// GetCall returns the session for its participants (or an admin).
func (h Handlers) GetCall(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	sess, err := h.CallStore.Get(c.Request.Context(), callID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	if !rbac.IsAdmin(role) && !sess.Participant(userID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// --- Media bridge signals ---

type connectedRequest struct {
	ConnectedAt time.Time `json:"connected_at"`
}

// CallConnected is posted by the media layer when both legs are up. The call
// becomes active and billing starts.
func (h Handlers) CallConnected(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	// Empty body is fine; connected_at defaults to now.
	var req connectedRequest
	_ = c.ShouldBindJSON(&req)

	sess, err := h.Calls.Connect(c.Request.Context(), callID, req.ConnectedAt)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// CallHeartbeat is posted by the media layer while media is flowing. The
// response reports whether the billing timer still tracks this call.
func (h Handlers) CallHeartbeat(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	active := h.Timers.RegisterHeartbeat(callID, time.Time{})
	c.JSON(http.StatusOK, gin.H{"call_id": callID, "active": active})
}

// writeCallError maps lifecycle error codes onto HTTP statuses.
func writeCallError(c *gin.Context, err error) {
	code := call.CodeOf(err)
	switch code {
	case "CALL_NOT_FOUND", "CALLER_NOT_FOUND", "OTOMO_NOT_FOUND":
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"code": code, "error": err.Error()})
	case "FORBIDDEN":
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": code, "error": err.Error()})
	case "OTOMO_OFFLINE", "OTOMO_BUSY", "CALLER_BUSY", "DUPLICATE_CALL_ID", "INVALID_STATE":
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": code, "error": err.Error()})
	default:
		if errors.Is(err, call.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
