package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2001-daminho/nexcrypto/libs/auth"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/identity"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/ledger"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/market"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/rate"
	"github.com/2001-daminho/nexcrypto/services/wallet/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Engines interface {
	Acquire(ctx context.Context, user identity.User) (*ledger.Engine, error)
}

type Inbox interface {
	List(userID uuid.UUID) []ledger.Notification
}

type Markets interface {
	GetTopMarketPrices(ctx context.Context, page, perPage int) []market.Quote
	Trending(ctx context.Context) []market.TrendingCoin
	PriceHistory(ctx context.Context, id string, days int) market.PriceHistory
	CoinDetails(ctx context.Context, id string) market.CoinDetails
}

// AdminStore backs the manual balance correction endpoints.
type AdminStore interface {
	ListAllAssets(ctx context.Context, limit int, cursor string) ([]storage.AssetRow, string, error)
	CorrectAssetAmount(ctx context.Context, assetID uuid.UUID, amount decimal.Decimal, at time.Time) (*storage.Correction, error)
}

// maxBodyBytes caps write request bodies.
const maxBodyBytes = 64 << 10

type Handler struct {
	Engines Engines
	Inbox   Inbox
	Market  Markets
	Admin   AdminStore
	Limiter rate.Limiter
	Logger  *slog.Logger
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type transferRequest struct {
	Symbol           string          `json:"symbol"`
	Amount           decimal.Decimal `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
}

type tradeRequest struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

type receiveRequest struct {
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	FromAddress string          `json:"from_address"`
}

type adminUpdateRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type notificationsResponse struct {
	Notifications []ledger.Notification `json:"notifications"`
}

type marketsResponse struct {
	Markets []market.Quote `json:"markets"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

type trendingResponse struct {
	Coins []market.TrendingCoin `json:"coins"`
}

type adminCorrectionResponse struct {
	storage.AssetRow
	AuditTransactionID *uuid.UUID `json:"audit_transaction_id,omitempty"`
}

type adminAssetsResponse struct {
	Assets     []storage.AssetRow `json:"assets"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

func New(engines Engines, inbox Inbox, markets Markets, admin AdminStore, limiter rate.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Engines: engines, Inbox: inbox, Market: markets, Admin: admin, Limiter: limiter, Logger: logger}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	r.GET("/markets", h.Markets)
	r.GET("/markets/trending", h.Trending)
	r.GET("/markets/:id", h.CoinDetails)
	r.GET("/markets/:id/history", h.PriceHistory)

	authGroup := r.Group("/", auth.Middleware(jwtSecret))
	authGroup.GET("/portfolio", h.Portfolio)
	authGroup.POST("/portfolio/refresh", h.RefreshPortfolio)
	authGroup.GET("/notifications", h.Notifications)

	writes := authGroup.Group("/", rate.Middleware(h.Limiter, userKey, h.Logger), limitBody(maxBodyBytes))
	writes.POST("/transfers", h.Transfer)
	writes.POST("/trades", h.Trade)
	writes.POST("/receives", h.Receive)

	admin := authGroup.Group("/admin", auth.RequireRole("admin"), limitBody(maxBodyBytes))
	admin.GET("/assets", h.AdminAssets)
	admin.PUT("/assets/:id", h.AdminUpdateAsset)
}

func userKey(c *gin.Context) string {
	return "user:" + c.GetString(auth.ContextUserIDKey)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// rejectBody answers a write whose body could not be decoded. The caller's
// engine records the rejection so it shows up among their notifications.
func (h *Handler) rejectBody(c *gin.Context, workflow, reason string) {
	engine, _, ok := h.engine(c)
	if !ok {
		return
	}
	h.writeWorkflowError(c, engine.Reject(c.Request.Context(), workflow, reason))
}

// engine resolves the caller's engine, writing the error response itself
// when it cannot.
func (h *Handler) engine(c *gin.Context) (*ledger.Engine, identity.User, bool) {
	user, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing user"})
		return nil, identity.User{}, false
	}
	engine, err := h.Engines.Acquire(c.Request.Context(), user)
	if err != nil {
		h.Logger.Error("acquire engine failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: "INTERNAL_ERROR", Message: "wallet unavailable"})
		return nil, identity.User{}, false
	}
	return engine, user, true
}

func (h *Handler) Portfolio(c *gin.Context) {
	engine, _, ok := h.engine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, engine.Snapshot())
}

func (h *Handler) RefreshPortfolio(c *gin.Context) {
	engine, user, ok := h.engine(c)
	if !ok {
		return
	}
	if err := engine.Refresh(c.Request.Context()); err != nil {
		h.Logger.Error("portfolio refresh failed", "user_id", user.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse{Code: "INTERNAL_ERROR", Message: "failed to fetch your assets"})
		return
	}
	c.JSON(http.StatusOK, engine.Snapshot())
}

func (h *Handler) Transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBody(c, ledger.WorkflowTransfer, "invalid request body")
		return
	}
	engine, _, ok := h.engine(c)
	if !ok {
		return
	}

	res, err := engine.ExecuteTransfer(c.Request.Context(), ledger.TransferRequest{
		Symbol:           req.Symbol,
		Amount:           req.Amount,
		RecipientAddress: req.RecipientAddress,
	})
	if err != nil {
		h.writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Trade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBody(c, ledger.WorkflowTrade, "invalid request body")
		return
	}
	engine, _, ok := h.engine(c)
	if !ok {
		return
	}

	tx, err := engine.ExecuteTrade(c.Request.Context(), ledger.TradeRequest{Type: ledger.TxType(req.Type), Symbol: req.Symbol, Amount: req.Amount})
	if err != nil {
		h.writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBody(c, ledger.WorkflowReceive, "invalid request body")
		return
	}
	engine, _, ok := h.engine(c)
	if !ok {
		return
	}

	tx, err := engine.ExecuteReceive(c.Request.Context(), ledger.ReceiveRequest{
		Symbol:      req.Symbol,
		Amount:      req.Amount,
		FromAddress: req.FromAddress,
	})
	if err != nil {
		h.writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (h *Handler) Notifications(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing user"})
		return
	}
	c.JSON(http.StatusOK, notificationsResponse{Notifications: h.Inbox.List(user.ID)})
}

func (h *Handler) Markets(c *gin.Context) {
	page := parseBounded(c.Query("page"), 1, 1, 1000)
	perPage := parseBounded(c.Query("per_page"), 100, 1, 250)
	quotes := h.Market.GetTopMarketPrices(c.Request.Context(), page, perPage)
	c.JSON(http.StatusOK, marketsResponse{Markets: quotes, Page: page, PerPage: perPage})
}

func (h *Handler) Trending(c *gin.Context) {
	c.JSON(http.StatusOK, trendingResponse{Coins: h.Market.Trending(c.Request.Context())})
}

func (h *Handler) CoinDetails(c *gin.Context) {
	c.JSON(http.StatusOK, h.Market.CoinDetails(c.Request.Context(), c.Param("id")))
}

func (h *Handler) PriceHistory(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "missing coin id"})
		return
	}
	days := parseBounded(c.Query("days"), 7, 1, 365)
	c.JSON(http.StatusOK, h.Market.PriceHistory(c.Request.Context(), id, days))
}

func (h *Handler) AdminAssets(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	assets, next, err := h.Admin.ListAllAssets(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid cursor"})
			return
		}
		h.Logger.Error("list assets failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, adminAssetsResponse{Assets: assets, NextCursor: next})
}

// AdminUpdateAsset overwrites a holding's amount and records the difference
// as an audit transaction. It is the correction path for ledger divergences.
func (h *Handler) AdminUpdateAsset(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid asset id"})
		return
	}
	var req adminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil || req.Amount.IsNegative() {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "amount must be a non-negative number"})
		return
	}
	if err := ledger.CheckAmount(*req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
		return
	}

	corr, err := h.Admin.CorrectAssetAmount(c.Request.Context(), assetID, *req.Amount, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "ASSET_NOT_FOUND", Message: "asset not found"})
			return
		}
		h.Logger.Error("admin asset update failed", "asset_id", assetID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	resp := adminCorrectionResponse{AssetRow: corr.Asset}
	if corr.Audit != nil {
		resp.AuditTransactionID = &corr.Audit.ID
	}
	h.Logger.Info("asset amount corrected", "asset_id", assetID, "amount", req.Amount.String(),
		"audit_transaction_id", resp.AuditTransactionID, "actor", c.GetString(auth.ContextUserIDKey))
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) writeWorkflowError(c *gin.Context, err error) {
	var div *ledger.DivergenceError
	switch {
	case errors.As(err, &div):
		c.JSON(http.StatusInternalServerError, errorResponse{
			Code:    "LEDGER_DIVERGENCE",
			Message: fmt.Sprintf("transaction %s recorded but balance not updated", div.TransactionID),
		})
	case errors.Is(err, ledger.ErrWorkflowInProgress):
		c.JSON(http.StatusConflict, errorResponse{Code: "WORKFLOW_IN_PROGRESS", Message: err.Error()})
	case errors.Is(err, ledger.ErrNoUser):
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing user"})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INSUFFICIENT_BALANCE", Message: err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFeeBalance):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INSUFFICIENT_FEE_BALANCE", Message: err.Error()})
	case errors.Is(err, ledger.ErrBelowMinimum):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "BELOW_MINIMUM", Message: err.Error()})
	case errors.Is(err, ledger.ErrAssetNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Code: "ASSET_NOT_FOUND", Message: err.Error()})
	case ledger.IsValidation(err):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
	default:
		h.Logger.Error("workflow failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return val
}

func parseBounded(raw string, def, lo, hi int) int {
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func userFromContext(c *gin.Context) (identity.User, bool) {
	return identity.UserFromClaims(auth.ClaimsFromContext(c))
}
