/**
 * @description
 * Step validation predicates shared by the flow definitions. Each predicate
 * returns nil on success or a *ValidationError naming the offending field
 * with the user-facing (French) message.
 *
 * @notes
 * - Recipient strictness is flow-specific on purpose: the transfer flow
 *   tolerates an unrecognized prefix (the operator badge just reads
 *   "Inconnu"), while subscription and airtime reject it outright. Do not
 *   unify the two without a product decision.
 */

package wizard

import (
	"strconv"

	"github.com/sikapay/wallet-service/internal/domain"
)

const (
	// Amount bounds in FCFA, inclusive, shared by transfer and airtime.
	MinAmount = 100
	MaxAmount = 100000
)

// validateRecipientLenient accepts any 10-digit number. Used by the transfer
// flow, where an unrecognized prefix is displayed as "Inconnu" but does not
// block advancement.
func validateRecipientLenient(r *Run) *ValidationError {
	phone := r.Fields.RecipientPhone
	if phone == "" {
		return &ValidationError{Field: "recipientPhone", Message: "Le numéro du destinataire est requis"}
	}
	if !isTenDigits(phone) {
		return &ValidationError{Field: "recipientPhone", Message: "Le numéro doit contenir exactement 10 chiffres"}
	}
	return nil
}

// validateRecipientStrict additionally requires a recognized operator prefix
// (01, 05 or 07). Used by the subscription and airtime flows.
func validateRecipientStrict(r *Run) *ValidationError {
	if verr := validateRecipientLenient(r); verr != nil {
		return verr
	}
	if !domain.Classify(r.Fields.RecipientPhone).IsKnown() {
		return &ValidationError{Field: "recipientPhone", Message: "Préfixe opérateur non reconnu (01, 05 ou 07 attendu)"}
	}
	return nil
}

// validateAmount requires a numeric amount within the inclusive
// [MinAmount, MaxAmount] bounds.
func validateAmount(r *Run) *ValidationError {
	raw := r.Fields.Amount
	if raw == "" {
		return &ValidationError{Field: "amount", Message: "Le montant est requis"}
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return &ValidationError{Field: "amount", Message: "Le montant doit être un nombre"}
	}
	if amount < MinAmount {
		return &ValidationError{Field: "amount", Message: "Montant minimum : 100 FCFA"}
	}
	if amount > MaxAmount {
		return &ValidationError{Field: "amount", Message: "Montant maximum : 100 000 FCFA"}
	}
	return nil
}

// validatePlanType requires a bundle type to be chosen.
func validatePlanType(r *Run) *ValidationError {
	if r.Fields.PlanType != domain.PlanTypeInternet && r.Fields.PlanType != domain.PlanTypeCall {
		return &ValidationError{Field: "planType", Message: "Choisissez un type de forfait"}
	}
	return nil
}

// validatePlanSelected requires a plan chosen from the currently filtered
// catalog view. The selection is re-checked against the recipient's operator
// in case anything slipped past the clearing rules.
func validatePlanSelected(r *Run) *ValidationError {
	plan := r.Fields.SelectedPlan
	if plan == nil {
		return &ValidationError{Field: "plan", Message: "Sélectionnez un forfait"}
	}
	if _, ok := domain.PlanByID(r.Operator(), r.Fields.PlanType, plan.ID); !ok {
		return &ValidationError{Field: "plan", Message: "Ce forfait n'est pas disponible pour cet opérateur"}
	}
	return nil
}

// validatePaymentMethod requires a method from the catalog and, unless the
// method is Pay Later, a payment number satisfying that method's rule.
func validatePaymentMethod(r *Run) *ValidationError {
	method, ok := domain.PaymentMethodByID(r.Fields.PaymentMethod)
	if !ok {
		return &ValidationError{Field: "paymentMethod", Message: "Choisissez un moyen de paiement"}
	}
	if !method.RequiresNumber {
		return nil
	}
	if r.Fields.PaymentNumber == "" {
		return &ValidationError{Field: "paymentNumber", Message: "Le numéro de paiement est requis"}
	}
	if !domain.ValidatePaymentNumber(r.Fields.PaymentNumber, method.ID) {
		if method.RequiredPrefix != "" {
			return &ValidationError{Field: "paymentNumber", Message: "Le numéro doit commencer par " + method.RequiredPrefix + " et contenir 10 chiffres"}
		}
		return &ValidationError{Field: "paymentNumber", Message: "Le numéro doit contenir exactement 10 chiffres"}
	}
	return nil
}

func isTenDigits(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
