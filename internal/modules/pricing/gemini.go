// README: Gemini-backed pricing oracle returning structured JSON suggestions.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

// Oracle is the external pricing collaborator.
type Oracle interface {
	SuggestPrice(ctx context.Context, attrs DishAttributes) (Suggestion, error)
}

// GeminiOracle implements Oracle using Google's Gemini models.
type GeminiOracle struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiOracle(ctx context.Context, apiKey string) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.3)

	return &GeminiOracle{client: client, model: model}, nil
}

func (o *GeminiOracle) Close() {
	o.client.Close()
}

type oracleResponse struct {
	SuggestedPrice decimal.Decimal `json:"suggested_price"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	CostBreakdown  struct {
		Ingredients decimal.Decimal `json:"ingredients"`
		Utilities   decimal.Decimal `json:"utilities"`
		Packaging   decimal.Decimal `json:"packaging"`
		PlatformFee decimal.Decimal `json:"platform_fee"`
		Profit      decimal.Decimal `json:"profit"`
	} `json:"cost_breakdown"`
	Reasoning string `json:"reasoning"`
}

func (o *GeminiOracle) SuggestPrice(ctx context.Context, attrs DishAttributes) (Suggestion, error) {
	resp, err := o.model.GenerateContent(ctx, genai.Text(buildPricingPrompt(attrs)))
	if err != nil {
		return Suggestion{}, fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Suggestion{}, fmt.Errorf("no response candidates from Gemini")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return parseOracleResponse(text.String())
}

func parseOracleResponse(raw string) (Suggestion, error) {
	cleaned := cleanJSONString(raw)
	var r oracleResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return Suggestion{}, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleaned)
	}
	s := Suggestion{
		Suggested: toMoney(r.SuggestedPrice),
		Min:       toMoney(r.MinPrice),
		Max:       toMoney(r.MaxPrice),
		Breakdown: Breakdown{
			Ingredients: toMoney(r.CostBreakdown.Ingredients),
			Utilities:   toMoney(r.CostBreakdown.Utilities),
			Packaging:   toMoney(r.CostBreakdown.Packaging),
			PlatformFee: toMoney(r.CostBreakdown.PlatformFee),
			Profit:      toMoney(r.CostBreakdown.Profit),
		},
		Reasoning: r.Reasoning,
		Source:    SourceOracle,
	}
	if s.Min.Amount <= 0 || s.Min.Amount > s.Suggested.Amount || s.Suggested.Amount > s.Max.Amount {
		return Suggestion{}, fmt.Errorf("oracle returned an inconsistent range: min=%s suggested=%s max=%s",
			s.Min, s.Suggested, s.Max)
	}
	return s, nil
}

// cleanJSONString strips markdown code fences the model sometimes adds despite JSON mode.
func cleanJSONString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func buildPricingPrompt(a DishAttributes) string {
	experience := a.ChefExperience
	if experience == "" {
		experience = ExperienceNew
	}
	return fmt.Sprintf(`You are a pricing advisor for home-cooked meals sold by independent chefs.

Dish:
- Name: %s
- Description: %s
- Cuisine: %s
- Portion: %s
- Location: %s
- Chef experience: %s

Price from actual costs, not restaurant prices:
1. Estimate ingredient, utility (gas/electricity) and packaging cost in USD.
2. Profit margin: new chefs 20-30%%, intermediate 30-40%%, experienced 40-50%%.
3. Add a 10%% platform fee on top.
min_price uses a 20%% margin, max_price a 50%% margin.

Respond with JSON only:
{
  "suggested_price": number,
  "min_price": number,
  "max_price": number,
  "cost_breakdown": {"ingredients": number, "utilities": number, "packaging": number, "platform_fee": number, "profit": number},
  "reasoning": "one or two sentences"
}`, a.Name, a.Description, a.CuisineType, a.PortionSize, a.Location, experience)
}
