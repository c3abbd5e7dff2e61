package cost

// Gemini image output pricing (USD per generated image).
// Source: https://ai.google.dev/gemini-api/docs/pricing

type PricingKey struct {
	Model      string
	Resolution string
}

var geminiPricing = map[PricingKey]float64{
	{Model: "gemini-2.5-flash-image", Resolution: "1K"}: 0.039,

	{Model: "gemini-3-pro-image-preview", Resolution: "1K"}: 0.134,
	{Model: "gemini-3-pro-image-preview", Resolution: "2K"}: 0.134,
	{Model: "gemini-3-pro-image-preview", Resolution: "4K"}: 0.24,
}

// GetGeminiPrice returns the price per image. An empty resolution means 1K.
func GetGeminiPrice(model, resolution string) (float64, bool) {
	if resolution == "" {
		resolution = "1K"
	}
	price, ok := geminiPricing[PricingKey{Model: model, Resolution: resolution}]
	return price, ok
}
