// README: Rule-based price suggestion used whenever the AI oracle is unavailable.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"potluck/internal/types"
)

type unitCosts struct {
	ingredients decimal.Decimal
	utilities   decimal.Decimal
	packaging   decimal.Decimal
}

func costs(ingredients, utilities, packaging string) unitCosts {
	return unitCosts{
		ingredients: decimal.RequireFromString(ingredients),
		utilities:   decimal.RequireFromString(utilities),
		packaging:   decimal.RequireFromString(packaging),
	}
}

var (
	defaultCosts = costs("5", "0.5", "0.5")

	cuisineCosts = map[string]unitCosts{
		"indian":        costs("5", "0.5", "0.5"),
		"mexican":       costs("4", "0.4", "0.5"),
		"italian":       costs("6", "0.6", "0.5"),
		"chinese":       costs("4.5", "0.5", "0.5"),
		"american":      costs("5.5", "0.4", "0.5"),
		"thai":          costs("4.5", "0.5", "0.5"),
		"mediterranean": costs("5.5", "0.5", "0.5"),
	}

	margins = map[string]decimal.Decimal{
		ExperienceNew:          decimal.RequireFromString("0.25"),
		ExperienceIntermediate: decimal.RequireFromString("0.35"),
		ExperienceExperienced:  decimal.RequireFromString("0.45"),
	}

	platformFactor = decimal.RequireFromString("1.1")
	minMargin      = decimal.RequireFromString("1.2")
	maxMargin      = decimal.RequireFromString("1.5")
	newChefCap     = decimal.RequireFromString("1.3")
)

// portionMultiplier scales ingredient and utility cost; packaging is per order.
func portionMultiplier(portion string) decimal.Decimal {
	p := strings.ToLower(portion)
	switch {
	case strings.Contains(p, "family"), strings.Contains(p, "serves 4"):
		return decimal.RequireFromString("2.5")
	case strings.Contains(p, "serves 3"):
		return decimal.RequireFromString("1.8")
	case strings.Contains(p, "serves 2"):
		return decimal.RequireFromString("1.3")
	}
	return decimal.NewFromInt(1)
}

func marginFor(experience string) decimal.Decimal {
	if m, ok := margins[strings.ToLower(strings.TrimSpace(experience))]; ok {
		return m
	}
	return margins[ExperienceNew]
}

// FallbackSuggestion prices a dish from estimated costs, the chef's margin tier and a 10% platform fee.
func FallbackSuggestion(attrs DishAttributes) Suggestion {
	c, ok := cuisineCosts[strings.ToLower(strings.TrimSpace(attrs.CuisineType))]
	if !ok {
		c = defaultCosts
	}
	mult := portionMultiplier(attrs.PortionSize)
	ingredients := c.ingredients.Mul(mult)
	utilities := c.utilities.Mul(mult)
	base := ingredients.Add(utilities).Add(c.packaging)

	margin := marginFor(attrs.ChefExperience)
	withMargin := base.Mul(decimal.NewFromInt(1).Add(margin))
	final := withMargin.Mul(platformFactor)

	return Suggestion{
		Suggested: toMoney(final),
		Min:       toMoney(base.Mul(minMargin).Mul(platformFactor)),
		Max:       toMoney(base.Mul(maxMargin).Mul(platformFactor)),
		Breakdown: Breakdown{
			Ingredients: toMoney(ingredients),
			Utilities:   toMoney(utilities),
			Packaging:   toMoney(c.packaging),
			PlatformFee: toMoney(final.Sub(withMargin)),
			Profit:      toMoney(withMargin.Sub(base)),
		},
		Reasoning: fmt.Sprintf("Costs: ingredients $%s + utilities $%s + packaging $%s = $%s. Added %s%% profit margin and 10%% platform fee.",
			ingredients.StringFixed(2), utilities.StringFixed(2), c.packaging.StringFixed(2), base.StringFixed(2),
			margin.Shift(2).String()),
		Source: SourceFallback,
	}
}

// capForNewChef keeps oracle suggestions for new chefs at or below a 30% margin over cost.
func capForNewChef(s Suggestion, experience string) Suggestion {
	if experience != "" && !strings.EqualFold(experience, ExperienceNew) {
		return s
	}
	cost := s.Breakdown.Ingredients.Add(s.Breakdown.Utilities).Add(s.Breakdown.Packaging)
	if cost.Amount <= 0 {
		return s
	}
	limit := toMoney(cost.Decimal().Mul(newChefCap).Mul(platformFactor))
	if s.Suggested.Amount > limit.Amount {
		s.Suggested = limit
	}
	return s
}

func toMoney(d decimal.Decimal) types.Money {
	return types.Cents(d.Shift(2).Round(0).IntPart())
}
