/**
 * @description
 * Immutable catalog of subscription plans (internet bundles and call bundles)
 * offered per operator. Plans are static in-memory data loaded once with the
 * process; there are no mutation operations and therefore no synchronization.
 *
 * @notes
 * - A plan belongs to exactly one (operator, plan type) bucket. Internet
 *   plans carry a data volume, call plans carry minutes; the two are mutually
 *   exclusive by type.
 * - Orange internet plans and all call plans carry a category tag used for
 *   filtering. An empty category list simply means the bucket has no
 *   categorization.
 */

package domain

// PlanType distinguishes internet bundles from call bundles.
type PlanType string

const (
	PlanTypeInternet PlanType = "internet"
	PlanTypeCall     PlanType = "call"
)

// ParsePlanType converts an API query value into a PlanType. The empty
// PlanType marks an unrecognized value.
func ParsePlanType(s string) PlanType {
	switch s {
	case "internet":
		return PlanTypeInternet
	case "call":
		return PlanTypeCall
	default:
		return ""
	}
}

// Plan is one purchasable bundle of the catalog.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Data     string   `json:"data,omitempty"`    // internet plans only
	Minutes  string   `json:"minutes,omitempty"` // call plans only
	Validity string   `json:"validity"`
	Price    int64    `json:"price"` // FCFA
	Desc     string   `json:"description"`
	IsNew    bool     `json:"is_new,omitempty"`
	Operator Operator `json:"operator"`
	Type     PlanType `json:"type"`
}

type planKey struct {
	op  Operator
	typ PlanType
}

var planCatalog = map[planKey][]Plan{
	{OperatorOrange, PlanTypeInternet}: {
		{ID: "org-net-300", Name: "Pass Jour 150 Mo", Category: "jour", Data: "150 Mo", Validity: "24h", Price: 300, Desc: "Petit pass internet valable une journée", Operator: OperatorOrange, Type: PlanTypeInternet},
		{ID: "org-net-500", Name: "Pass Jour 400 Mo", Category: "jour", Data: "400 Mo", Validity: "24h", Price: 500, Desc: "Pass internet journalier", Operator: OperatorOrange, Type: PlanTypeInternet},
		{ID: "org-net-1000", Name: "Pass Semaine 1 Go", Category: "semaine", Data: "1 Go", Validity: "7 jours", Price: 1000, Desc: "Pass internet hebdomadaire", Operator: OperatorOrange, Type: PlanTypeInternet},
		{ID: "org-net-2500", Name: "Pass Semaine 3 Go", Category: "semaine", Data: "3 Go", Validity: "7 jours", Price: 2500, Desc: "Grand pass hebdomadaire", IsNew: true, Operator: OperatorOrange, Type: PlanTypeInternet},
		{ID: "org-net-5000", Name: "Pass Mois 8 Go", Category: "mois", Data: "8 Go", Validity: "30 jours", Price: 5000, Desc: "Pass internet mensuel", Operator: OperatorOrange, Type: PlanTypeInternet},
		{ID: "org-net-10000", Name: "Pass Mois 20 Go", Category: "mois", Data: "20 Go", Validity: "30 jours", Price: 10000, Desc: "Pass mensuel grande capacité", IsNew: true, Operator: OperatorOrange, Type: PlanTypeInternet},
	},
	{OperatorMTN, PlanTypeInternet}: {
		{ID: "mtn-net-500", Name: "MTN Data 500 Mo", Data: "500 Mo", Validity: "3 jours", Price: 500, Desc: "Forfait data court", Operator: OperatorMTN, Type: PlanTypeInternet},
		{ID: "mtn-net-1500", Name: "MTN Data 2 Go", Data: "2 Go", Validity: "7 jours", Price: 1500, Desc: "Forfait data hebdomadaire", Operator: OperatorMTN, Type: PlanTypeInternet},
		{ID: "mtn-net-5000", Name: "MTN Data 10 Go", Data: "10 Go", Validity: "30 jours", Price: 5000, Desc: "Forfait data mensuel", IsNew: true, Operator: OperatorMTN, Type: PlanTypeInternet},
	},
	{OperatorMoov, PlanTypeInternet}: {
		{ID: "moov-net-250", Name: "Moov Surf 100 Mo", Data: "100 Mo", Validity: "24h", Price: 250, Desc: "Mini forfait journalier", Operator: OperatorMoov, Type: PlanTypeInternet},
		{ID: "moov-net-1000", Name: "Moov Surf 1.5 Go", Data: "1.5 Go", Validity: "7 jours", Price: 1000, Desc: "Forfait hebdomadaire", Operator: OperatorMoov, Type: PlanTypeInternet},
		{ID: "moov-net-4000", Name: "Moov Surf 7 Go", Data: "7 Go", Validity: "30 jours", Price: 4000, Desc: "Forfait mensuel", Operator: OperatorMoov, Type: PlanTypeInternet},
	},
	{OperatorOrange, PlanTypeCall}: {
		{ID: "org-call-500", Name: "Pass Appel 60 min", Category: "national", Minutes: "60 min", Validity: "3 jours", Price: 500, Desc: "Appels vers tous les réseaux nationaux", Operator: OperatorOrange, Type: PlanTypeCall},
		{ID: "org-call-2000", Name: "Pass Appel 300 min", Category: "national", Minutes: "300 min", Validity: "15 jours", Price: 2000, Desc: "Grand pass appels nationaux", Operator: OperatorOrange, Type: PlanTypeCall},
		{ID: "org-call-int-3000", Name: "Pass International 60 min", Category: "international", Minutes: "60 min", Validity: "7 jours", Price: 3000, Desc: "Appels vers l'international", IsNew: true, Operator: OperatorOrange, Type: PlanTypeCall},
	},
	{OperatorMTN, PlanTypeCall}: {
		{ID: "mtn-call-300", Name: "MTN Appel 30 min", Category: "national", Minutes: "30 min", Validity: "24h", Price: 300, Desc: "Petit forfait appels", Operator: OperatorMTN, Type: PlanTypeCall},
		{ID: "mtn-call-1500", Name: "MTN Appel 200 min", Category: "national", Minutes: "200 min", Validity: "7 jours", Price: 1500, Desc: "Forfait appels hebdomadaire", Operator: OperatorMTN, Type: PlanTypeCall},
	},
	{OperatorMoov, PlanTypeCall}: {
		{ID: "moov-call-250", Name: "Moov Appel 25 min", Category: "national", Minutes: "25 min", Validity: "24h", Price: 250, Desc: "Forfait appels journalier", Operator: OperatorMoov, Type: PlanTypeCall},
		{ID: "moov-call-1000", Name: "Moov Appel 120 min", Category: "national", Minutes: "120 min", Validity: "7 jours", Price: 1000, Desc: "Forfait appels hebdomadaire", Operator: OperatorMoov, Type: PlanTypeCall},
	},
}

// PlansFor returns the ordered plans for an operator and plan type. An
// unknown operator or an empty bucket yields an empty slice, not an error;
// the client renders an explanatory message instead.
func PlansFor(op Operator, typ PlanType) []Plan {
	plans, ok := planCatalog[planKey{op, typ}]
	if !ok {
		return nil
	}
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// PlansForCategory returns the plans of a bucket restricted to one category.
// An empty category returns the whole bucket.
func PlansForCategory(op Operator, typ PlanType, category string) []Plan {
	plans := PlansFor(op, typ)
	if category == "" {
		return plans
	}
	filtered := plans[:0]
	for _, p := range plans {
		if p.Category == category {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// CategoriesFor returns the distinct categories of a bucket in catalog order.
// Buckets without categorization return an empty slice.
func CategoriesFor(op Operator, typ PlanType) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range PlansFor(op, typ) {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

// PlanByID resolves a plan identifier within one bucket. It returns false if
// the plan does not exist in that operator/type bucket, which also guards
// against a stale selection after the recipient's operator changed.
func PlanByID(op Operator, typ PlanType, id string) (Plan, bool) {
	for _, p := range PlansFor(op, typ) {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
