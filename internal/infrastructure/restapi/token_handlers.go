package restapi

import (
	"net/http"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// TokenBalanceView is the balance snapshot with the raw amount as a decimal string.
type TokenBalanceView struct {
	entity.TokenBalanceSnapshot
	BalanceRaw string `json:"balanceRaw"`
}

// APITokenBalanceResponse определяет структуру ответа для эндпоинта баланса.
type APITokenBalanceResponse struct {
	Data          TokenBalanceView `json:"data"`
	StatusMessage string           `json:"status_message"`
}

// APIClaimStatusResponse is returned by GET /token/claim-status.
type APIClaimStatusResponse struct {
	Data struct {
		HasClaimed   bool                     `json:"hasClaimed"`
		PendingClaim *entity.ClaimTransaction `json:"pendingClaim,omitempty"`
	} `json:"data"`
	StatusMessage string `json:"status_message"`
}

// APIClaimResponse is returned by POST /token/claim.
type APIClaimResponse struct {
	Data          entity.ClaimResult `json:"data"`
	StatusMessage string             `json:"status_message"`
}

// APITxStatusResponse is returned by GET /token/tx/:hash.
type APITxStatusResponse struct {
	Data          entity.TxStatus `json:"data"`
	StatusMessage string          `json:"status_message"`
}

// APIWatchTokenResponse is returned by POST /token/watch.
type APIWatchTokenResponse struct {
	Data struct {
		Added bool `json:"added"`
	} `json:"data"`
	StatusMessage string `json:"status_message"`
}

// APICapabilitiesResponse is returned by GET /token/capabilities.
type APICapabilitiesResponse struct {
	Data          entity.TokenCapabilities `json:"data"`
	StatusMessage string                   `json:"status_message"`
}

// TokenHandler обрабатывает HTTP запросы, связанные с токеном и клеймом.
type TokenHandler struct {
	token  port.TokenService
	logger port.Logger
}

// NewTokenHandler создает новый экземпляр TokenHandler.
func NewTokenHandler(token port.TokenService, l port.Logger) *TokenHandler {
	return &TokenHandler{token: token, logger: l}
}

// GetBalanceHandler returns the cached balance, or a fresh one with ?refresh=true.
func (h *TokenHandler) GetBalanceHandler(c *gin.Context) {
	var snap entity.TokenBalanceSnapshot
	if wantsRefresh(c) {
		snap = h.token.RefreshBalance(c.Request.Context())
	} else {
		snap = h.token.Snapshot()
	}

	msg := "Balance retrieved successfully."
	if snap.Error != "" {
		msg = snap.Error
	} else if snap.Account == "" {
		msg = "Wallet not connected."
	}
	c.JSON(http.StatusOK, APITokenBalanceResponse{
		Data:          TokenBalanceView{TokenBalanceSnapshot: snap, BalanceRaw: snap.BalanceRawString()},
		StatusMessage: msg,
	})
}

// GetClaimStatusHandler reports whether the connected account has claimed and any claim still pending.
func (h *TokenHandler) GetClaimStatusHandler(c *gin.Context) {
	var resp APIClaimStatusResponse
	resp.Data.HasClaimed = h.token.RefreshClaimStatus(c.Request.Context())
	if tx, ok := h.token.PendingClaim(); ok {
		resp.Data.PendingClaim = &tx
	}
	switch {
	case resp.Data.PendingClaim != nil:
		resp.StatusMessage = "A claim transaction is pending."
	case resp.Data.HasClaimed:
		resp.StatusMessage = "Tokens already claimed."
	default:
		resp.StatusMessage = "Tokens not claimed yet."
	}
	c.JSON(http.StatusOK, resp)
}

// ClaimHandler submits the airdrop claim. Rejections are reported in the body, not as HTTP errors.
func (h *TokenHandler) ClaimHandler(c *gin.Context) {
	res := h.token.ClaimTokens(c.Request.Context())
	status := http.StatusOK
	if res.Outcome == entity.OutcomeInProgress {
		status = http.StatusConflict
	}
	msg := res.Error
	if res.Success {
		msg = "Claim transaction submitted."
	}
	c.JSON(status, APIClaimResponse{Data: res, StatusMessage: msg})
}

// GetTransactionStatusHandler returns the receipt status of a transaction.
func (h *TokenHandler) GetTransactionStatusHandler(c *gin.Context) {
	hash := c.Param("hash")
	if len(hash) != 66 {
		c.JSON(http.StatusBadRequest, APITxStatusResponse{StatusMessage: "Transaction hash must be 32 bytes, 0x-prefixed."})
		return
	}
	st := h.token.CheckTransactionStatus(c.Request.Context(), hash)
	msg := "Transaction not confirmed yet."
	if st.Confirmed {
		msg = "Transaction failed."
		if st.Success {
			msg = "Transaction confirmed."
		}
	}
	c.JSON(http.StatusOK, APITxStatusResponse{Data: st, StatusMessage: msg})
}

// WatchTokenHandler asks the wallet to track the play token.
func (h *TokenHandler) WatchTokenHandler(c *gin.Context) {
	var resp APIWatchTokenResponse
	resp.Data.Added = h.token.AddTokenToWallet(c.Request.Context())
	resp.StatusMessage = "Token added to wallet."
	if !resp.Data.Added {
		resp.StatusMessage = "Token was not added to wallet."
	}
	c.JSON(http.StatusOK, resp)
}

// GetCapabilitiesHandler returns which token actions the current chain allows.
func (h *TokenHandler) GetCapabilitiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, APICapabilitiesResponse{Data: h.token.Capabilities(), StatusMessage: "Capabilities retrieved."})
}
