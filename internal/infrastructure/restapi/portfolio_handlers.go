package restapi

import (
	"net/http"

	"futarchy_wallet/internal/app/port"
	"futarchy_wallet/internal/domain/entity"

	"github.com/gin-gonic/gin"
)

// APIPortfolioResponse определяет структуру ответа для эндпоинта портфеля.
type APIPortfolioResponse struct {
	Data          entity.PortfolioSnapshot `json:"data"`
	StatusMessage string                   `json:"status_message"`
}

// PortfolioHandler обрабатывает HTTP запросы, связанные с портфелем.
type PortfolioHandler struct {
	portfolioService port.PortfolioService
	logger           port.Logger
}

// NewPortfolioHandler создает новый экземпляр PortfolioHandler.
func NewPortfolioHandler(ps port.PortfolioService, l port.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: ps,
		logger:           l,
	}
}

// GetPortfolioHandler обрабатывает запрос на получение портфеля подключенного кошелька.
func (h *PortfolioHandler) GetPortfolioHandler(c *gin.Context) {
	var snap entity.PortfolioSnapshot
	if wantsRefresh(c) {
		snap = h.portfolioService.RefreshPortfolio(c.Request.Context())
	} else {
		snap = h.portfolioService.Snapshot()
	}
	if snap.Positions == nil {
		snap.Positions = []entity.Position{}
	}

	response := APIPortfolioResponse{Data: snap}
	switch {
	case snap.Error != "":
		response.StatusMessage = "Portfolio retrieved with errors: " + snap.Error
	case snap.Account == "":
		response.StatusMessage = "Wallet not connected. Portfolio is empty."
	default:
		response.StatusMessage = "Portfolio retrieved successfully."
	}

	c.JSON(http.StatusOK, response)
}
