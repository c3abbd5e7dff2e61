package cost

import "github.com/manash/banafit/pkg/models"

const (
	CurrencyUSD = "USD"
)

// fallbackPerImage is charged for Gemini models missing from the pricing table.
const fallbackPerImage = 0.039

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

func (c *Calculator) Calculate(provider models.ProviderType, model, resolution string, count int) *models.CostInfo {
	var perImage float64

	switch provider {
	case models.ProviderGemini:
		perImage = c.calculateGemini(model, resolution)
	default:
		perImage = 0
	}

	return &models.CostInfo{
		PerImage: perImage,
		Total:    perImage * float64(count),
		Currency: CurrencyUSD,
	}
}

func (c *Calculator) calculateGemini(model, resolution string) float64 {
	if price, ok := GetGeminiPrice(model, resolution); ok {
		return price
	}
	if price, ok := GetGeminiPrice(model, ""); ok {
		return price
	}
	return fallbackPerImage
}

// Sum adds up the cost of a set of generated images.
func Sum(images []models.GeneratedImage) float64 {
	var total float64
	for _, img := range images {
		total += img.Cost
	}
	return total
}
