package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinterFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, "Connect a wallet to claim tokens.", Printer("en").Sprintf(ClaimNotConnected))
	assert.Equal(t, "Connect a wallet to claim tokens.", Printer("not a locale").Sprintf(ClaimNotConnected))
	assert.Equal(t, "Connect a wallet to claim tokens.", Printer("de").Sprintf(ClaimNotConnected))
}

func TestPrinterSpanish(t *testing.T) {
	assert.Equal(t, "Conecta una billetera para reclamar tokens.", Printer("es-MX").Sprintf(ClaimNotConnected))
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	en := catalog[supported[0]]
	for tag, msgs := range catalog {
		assert.Len(t, msgs, len(en), "catalog %s", tag)
		for key := range en {
			_, ok := msgs[key]
			assert.True(t, ok, "catalog %s is missing %s", tag, key)
		}
	}
}
