// Package models holds the value types shared by the prediction,
// recommendation, product search and history components.
package models

import "time"

// Seasonal colour categories, in classifier output order.
const (
	SeasonWinter = "Winter"
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonAutumn = "Autumn"
)

// Skin tone categories, in classifier output order.
const (
	SkinToneLight  = "Light"
	SkinToneMedium = "Medium"
	SkinToneDark   = "Dark"
)

// SeasonLabels returns the seasonal label set in classifier output order.
func SeasonLabels() []string {
	return []string{SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn}
}

// SkinToneLabels returns the skin tone label set in classifier output order.
func SkinToneLabels() []string {
	return []string{SkinToneLight, SkinToneMedium, SkinToneDark}
}

// PredictionResult is the outcome of one successful prediction. It is not
// modified after creation.
type PredictionResult struct {
	SeasonalLabel      string  `json:"seasonal_color_label"`
	SeasonalConfidence float64 `json:"seasonal_probability"`
	SkinToneLabel      string  `json:"skin_tone_label"`
	SkinToneConfidence float64 `json:"skin_tone_probability"`
	SkinToneHex        string  `json:"skin_tone_hex"`
	ImageSize          int     `json:"image_size"`
}

// OutfitItem is one recommended garment.
type OutfitItem struct {
	Item        string `json:"item" yaml:"item"`
	Description string `json:"description" yaml:"description"`
}

// ColorPalette lists the colours that suit a season.
type ColorPalette struct {
	LightColors []string `json:"light_colors" yaml:"light_colors"`
	DarkColors  []string `json:"dark_colors" yaml:"dark_colors"`
}

// ProductSummary is a marketplace item matched to a recommendation.
type ProductSummary struct {
	ID          string `json:"asin"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	PhotoURL    string `json:"pic"`
	DetailURL   string `json:"detail_url"`
	SalesVolume string `json:"sales_volume"`
	IsPrime     bool   `json:"is_prime"`
	Delivery    string `json:"delivery"`
	Description string `json:"description"`
	Query       string `json:"query,omitempty"`
}

// HistoryRecord is everything persisted for one style recommendation.
type HistoryRecord struct {
	PredictionKey string `json:"prediction_key,omitempty"`
	PredictionResult
	SeasonalDescription   string           `json:"seasonal_description"`
	ColorPalette          ColorPalette     `json:"color_palette"`
	OutfitRecommendations []OutfitItem     `json:"outfit_recommendations"`
	Products              []ProductSummary `json:"amazon_products"`
	ClothingCategory      string           `json:"clothing_type"`
	UserID                string           `json:"user_uid"`
	Timestamp             time.Time        `json:"timestamp"`
}
