// Package i18n holds the user-facing message catalog for wallet, token and portfolio results.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys.
const (
	ClaimSubmitted          = "claim.submitted"
	ClaimAlreadyClaimed     = "claim.already_claimed"
	ClaimUserRejected       = "claim.user_rejected"
	ClaimInsufficientFunds  = "claim.insufficient_funds"
	ClaimUnsupportedNetwork = "claim.unsupported_network"
	ClaimNotConnected       = "claim.not_connected"
	ClaimInProgress         = "claim.in_progress"
	ClaimFailed             = "claim.failed"

	BalanceNetworkMismatch = "balance.network_mismatch"
	BalanceNoContract      = "balance.no_contract"
	BalanceReadFailed      = "balance.read_failed"
)

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[string]string{
	language.English: {
		ClaimSubmitted:          "Claim transaction submitted: %s",
		ClaimAlreadyClaimed:     "You have already claimed your tokens. No action needed.",
		ClaimUserRejected:       "Transaction was cancelled in the wallet.",
		ClaimInsufficientFunds:  "Not enough %s to pay for gas. Get test tokens from the faucet: %s",
		ClaimUnsupportedNetwork: "Claiming is not available on this network. Switch to %s to claim.",
		ClaimNotConnected:       "Connect a wallet to claim tokens.",
		ClaimInProgress:         "A claim is already being processed for this account.",
		ClaimFailed:             "The claim could not be completed: %s",
		BalanceNetworkMismatch:  "Wallet is on chain %d but chain %d was expected.",
		BalanceNoContract:       "The play token is not available on this network.",
		BalanceReadFailed:       "Could not read the token balance: %s",
	},
	language.Spanish: {
		ClaimSubmitted:          "Transacción de reclamo enviada: %s",
		ClaimAlreadyClaimed:     "Ya reclamaste tus tokens. No hace falta hacer nada.",
		ClaimUserRejected:       "La transacción fue cancelada en la billetera.",
		ClaimInsufficientFunds:  "No tienes suficiente %s para pagar el gas. Consigue tokens de prueba en el faucet: %s",
		ClaimUnsupportedNetwork: "El reclamo no está disponible en esta red. Cambia a %s para reclamar.",
		ClaimNotConnected:       "Conecta una billetera para reclamar tokens.",
		ClaimInProgress:         "Ya se está procesando un reclamo para esta cuenta.",
		ClaimFailed:             "No se pudo completar el reclamo: %s",
		BalanceNetworkMismatch:  "La billetera está en la cadena %d pero se esperaba la cadena %d.",
		BalanceNoContract:       "El token no está disponible en esta red.",
		BalanceReadFailed:       "No se pudo leer el saldo del token: %s",
	},
}

func init() {
	for tag, msgs := range catalog {
		for key, text := range msgs {
			if err := message.SetString(tag, key, text); err != nil {
				panic("i18n: " + err.Error())
			}
		}
	}
}

// Printer returns a printer for the closest supported language to locale. English is the fallback.
func Printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		return message.NewPrinter(language.English)
	}
	_, idx, _ := matcher.Match(tag)
	return message.NewPrinter(supported[idx])
}
