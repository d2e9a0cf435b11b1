/**
 * @description
 * Static catalog of payment channels a user can charge a wizard run against.
 * The mobile-money channels (Orange Money, Moov Money, MTN Money) each require
 * a payment number carrying the channel's own carrier prefix; Wave accepts any
 * 10-digit number; Pay Later defers collection entirely and requires no
 * number.
 *
 * @notes
 * - The catalog order is presentational only, except that Pay Later is always
 *   listed last and is always available.
 * - Clearing a previously entered payment number when the method changes is
 *   the wizard engine's job, not the registry's.
 */

package domain

// PaymentMethodID identifies a payment channel.
type PaymentMethodID string

const (
	PaymentOrangeMoney PaymentMethodID = "orange-money"
	PaymentMoovMoney   PaymentMethodID = "moov-money"
	PaymentMTNMoney    PaymentMethodID = "mtn-money"
	PaymentWave        PaymentMethodID = "wave"
	PaymentPayLater    PaymentMethodID = "pay-later"
)

// PaymentMethod describes one entry of the payment channel catalog.
type PaymentMethod struct {
	ID PaymentMethodID `json:"id"`
	// DisplayName is the label shown on the method picker.
	DisplayName string `json:"display_name"`
	// RequiredPrefix is the 2-digit prefix the payment number must start
	// with. Empty for Wave and Pay Later.
	RequiredPrefix string `json:"required_prefix,omitempty"`
	// RequiresNumber is false only for Pay Later.
	RequiresNumber bool `json:"requires_number"`
}

// paymentMethodCatalog is the fixed, ordered channel list. Pay Later last.
var paymentMethodCatalog = []PaymentMethod{
	{ID: PaymentOrangeMoney, DisplayName: "Orange Money", RequiredPrefix: "07", RequiresNumber: true},
	{ID: PaymentMoovMoney, DisplayName: "Moov Money", RequiredPrefix: "01", RequiresNumber: true},
	{ID: PaymentMTNMoney, DisplayName: "MTN Money", RequiredPrefix: "05", RequiresNumber: true},
	{ID: PaymentWave, DisplayName: "Wave", RequiresNumber: true},
	{ID: PaymentPayLater, DisplayName: "Payer plus tard", RequiresNumber: false},
}

// PaymentMethods returns the ordered payment channel catalog.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethodCatalog))
	copy(out, paymentMethodCatalog)
	return out
}

// PaymentMethodByID looks a method up by its identifier.
func PaymentMethodByID(id PaymentMethodID) (PaymentMethod, bool) {
	for _, m := range paymentMethodCatalog {
		if m.ID == id {
			return m, true
		}
	}
	return PaymentMethod{}, false
}

// ValidatePaymentNumber reports whether a payment-source number satisfies the
// method's rule: Pay Later is vacuously valid for any input, Wave requires
// exactly 10 digits, and every other method requires 10 digits starting with
// its carrier prefix.
func ValidatePaymentNumber(number string, id PaymentMethodID) bool {
	method, ok := PaymentMethodByID(id)
	if !ok {
		return false
	}
	if !method.RequiresNumber {
		return true
	}
	if len(number) != 10 || !isAllDigits(number) {
		return false
	}
	if method.RequiredPrefix == "" {
		return true
	}
	return number[:2] == method.RequiredPrefix
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
