package server

import (
	"errors"
	"net/http"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/picking"
)

// Operator-facing messages. The station UI shows them verbatim.
const (
	msgBusy             = "Aguarde, pedido em processamento..."
	msgOrderNotFound    = "Pedido não encontrado"
	msgOrderInvalid     = "Pedido sem itens válidos"
	msgNoOrder          = "Nenhum pedido carregado"
	msgNotInOrder       = "Produto não pertence ao pedido"
	msgQuantityExceeded = "Quantidade excedida"
	msgBadRequest       = "Requisição inválida"
	msgNotAuthorized    = "Integração com o Bling não autorizada; gere um novo token"
	msgLoadFailed       = "Erro ao carregar pedido"
	msgFinalizeFailed   = "Erro ao finalizar"
	msgHistoryDisabled  = "Histórico desativado"
	msgHistoryFailed    = "Erro ao consultar histórico"
)

// errorResponse maps an operation error to a status code and operator
// message. fallback is the message for ERP failures with no better text.
func errorResponse(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, picking.ErrBusy):
		return http.StatusTooManyRequests, msgBusy
	case errors.Is(err, picking.ErrOrderNotFound):
		return http.StatusNotFound, msgOrderNotFound
	case errors.Is(err, picking.ErrOrderInvalid):
		return http.StatusBadRequest, msgOrderInvalid
	case errors.Is(err, picking.ErrNoOrder):
		return http.StatusBadRequest, msgNoOrder
	case errors.Is(err, picking.ErrNotInOrder):
		return http.StatusNotFound, msgNotInOrder
	case errors.Is(err, picking.ErrQuantityExceeded):
		return http.StatusConflict, msgQuantityExceeded
	case errors.Is(err, bling.ErrInvalidGrant), errors.Is(err, bling.ErrNotConfigured):
		return http.StatusBadGateway, msgNotAuthorized
	default:
		return http.StatusBadGateway, fallback
	}
}
