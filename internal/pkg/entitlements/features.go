package entitlements

import "github.com/shipnowhq/shipnow/app/models"

// PlanFree is the plan shown for users without any entitlement.
const PlanFree = "FREE"

// FeatureConfig maps feature keys to the minimum plan required. An empty
// plan means the feature is free. Unknown features are treated as paid-only
// at the highest tier, so a typo fails closed.
var FeatureConfig = map[string]string{
	"basic-analytics":  "",
	"remove-branding":  models.PlanTypeStandard,
	"custom-domain":    models.PlanTypeStandard,
	"unlimited-pages":  models.PlanTypePro,
	"api-access":       models.PlanTypePro,
	"priority-support": models.PlanTypePro,
}

func planRank(plan string) int {
	switch plan {
	case models.PlanTypeStandard:
		return 1
	case models.PlanTypePro:
		return 2
	default:
		return 0
	}
}

// PlanSatisfies reports whether the held plan meets the required one.
func PlanSatisfies(have, need string) bool {
	return planRank(have) >= planRank(need)
}

// CanUseFeature gates a feature key on the user's entitlement.
func CanUseFeature(ent *Entitlement, feature string) bool {
	need, known := FeatureConfig[feature]
	if !known {
		return false
	}
	if need == "" {
		return true
	}
	if ent == nil || !ent.Entitled {
		return false
	}
	return PlanSatisfies(ent.PlanType, need)
}
