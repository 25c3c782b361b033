package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, "Payment failed", T("en", KeyPaymentFailed))
	assert.Equal(t, "Le paiement a échoué", T("fr", KeyPaymentFailed))
	assert.Equal(t, "Invalid amount", T("en", KeyValidationInvalid, "amount"))

	// unknown language falls back to English, unknown key echoes the key
	assert.Equal(t, "Payment failed", T("de", KeyPaymentFailed))
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))

	assert.ElementsMatch(t, []string{"en", "fr"}, GetSupportedLanguages())
}
