package restapi

import (
	"net/http"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// NetworkView is a registry entry plus the derived hex chain ID and whether the wallet is on it.
type NetworkView struct {
	entity.NetworkConfig
	ChainIDHex string `json:"chainIdHex"`
	Active     bool   `json:"active"`
}

// APINetworksResponse определяет структуру ответа для списка сетей.
type APINetworksResponse struct {
	Data struct {
		Networks []NetworkView `json:"networks"`
	} `json:"data"`
	StatusMessage string `json:"status_message"`
}

// NetworkHandler serves the network registry.
type NetworkHandler struct {
	registry port.NetworkRegistry
	wallet   port.WalletStateReader
}

// NewNetworkHandler создает новый экземпляр NetworkHandler.
func NewNetworkHandler(registry port.NetworkRegistry, wallet port.WalletStateReader) *NetworkHandler {
	return &NetworkHandler{registry: registry, wallet: wallet}
}

// ListNetworksHandler returns every supported network ordered by chain ID.
func (h *NetworkHandler) ListNetworksHandler(c *gin.Context) {
	activeChain := h.wallet.State().ChainID

	var resp APINetworksResponse
	all := h.registry.All()
	resp.Data.Networks = make([]NetworkView, 0, len(all))
	for _, n := range all {
		resp.Data.Networks = append(resp.Data.Networks, NetworkView{
			NetworkConfig: n,
			ChainIDHex:    n.ChainIDHex(),
			Active:        n.ChainID == activeChain,
		})
	}
	resp.StatusMessage = "Networks retrieved successfully."
	c.JSON(http.StatusOK, resp)
}
