package restapi

import (
	"net/http"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// APIWalletResponse определяет структуру ответа для эндпоинтов кошелька.
type APIWalletResponse struct {
	Data          entity.WalletState `json:"data"`
	Result        *bool              `json:"result,omitempty"`
	StatusMessage string             `json:"status_message"`
}

// SwitchNetworkRequest is the body of POST /wallet/network/switch.
type SwitchNetworkRequest struct {
	ChainID uint64 `json:"chainId" binding:"required"`
}

// AddNetworkRequest is the body of POST /wallet/network/add.
type AddNetworkRequest struct {
	Key string `json:"key" binding:"required"`
}

// WalletHandler обрабатывает HTTP запросы, связанные с подключением кошелька.
type WalletHandler struct {
	wallet port.WalletManager
	logger port.Logger
}

// NewWalletHandler создает новый экземпляр WalletHandler.
func NewWalletHandler(wallet port.WalletManager, l port.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, logger: l}
}

// GetWalletHandler returns the current connection snapshot.
func (h *WalletHandler) GetWalletHandler(c *gin.Context) {
	st := h.wallet.State()
	c.JSON(http.StatusOK, APIWalletResponse{Data: st, StatusMessage: walletStatusMessage(st)})
}

// ConnectHandler asks the wallet for accounts and ensures the default network.
func (h *WalletHandler) ConnectHandler(c *gin.Context) {
	ok := h.wallet.Connect(c.Request.Context())
	st := h.wallet.State()
	msg := "Wallet connected."
	if !ok {
		msg = "Wallet connection was not established."
	}
	c.JSON(http.StatusOK, APIWalletResponse{Data: st, Result: &ok, StatusMessage: msg})
}

// DisconnectHandler clears the connection and the persisted session.
func (h *WalletHandler) DisconnectHandler(c *gin.Context) {
	h.wallet.Disconnect(c.Request.Context())
	ok := true
	c.JSON(http.StatusOK, APIWalletResponse{Data: h.wallet.State(), Result: &ok, StatusMessage: "Wallet disconnected."})
}

// RefreshHandler re-reads accounts and chain from the provider.
func (h *WalletHandler) RefreshHandler(c *gin.Context) {
	h.wallet.RefreshConnection(c.Request.Context())
	st := h.wallet.State()
	c.JSON(http.StatusOK, APIWalletResponse{Data: st, StatusMessage: walletStatusMessage(st)})
}

// SwitchNetworkHandler switches the wallet to the requested chain, adding it first when the wallet does not know it.
func (h *WalletHandler) SwitchNetworkHandler(c *gin.Context) {
	var req SwitchNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid switch network request", "error", err)
		c.JSON(http.StatusBadRequest, APIWalletResponse{Data: h.wallet.State(), StatusMessage: "chainId is required."})
		return
	}
	ok := h.wallet.SwitchNetwork(c.Request.Context(), req.ChainID)
	msg := "Network switched."
	if !ok {
		msg = "Network switch failed or was rejected."
	}
	c.JSON(http.StatusOK, APIWalletResponse{Data: h.wallet.State(), Result: &ok, StatusMessage: msg})
}

// AddNetworkHandler registers a network from the registry with the wallet.
func (h *WalletHandler) AddNetworkHandler(c *gin.Context) {
	var req AddNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIWalletResponse{Data: h.wallet.State(), StatusMessage: "key is required."})
		return
	}
	ok := h.wallet.AddNetwork(c.Request.Context(), req.Key)
	msg := "Network added."
	if !ok {
		msg = "Network could not be added."
	}
	c.JSON(http.StatusOK, APIWalletResponse{Data: h.wallet.State(), Result: &ok, StatusMessage: msg})
}

func walletStatusMessage(st entity.WalletState) string {
	switch {
	case !st.HasProvider:
		return "No wallet provider available."
	case st.IsConnected:
		return "Wallet connected."
	case st.State == entity.StateConnecting:
		return "Wallet connection in progress."
	default:
		return "Wallet not connected."
	}
}
