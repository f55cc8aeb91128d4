package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// Weights is the serialized form of the logistic scorer. The weight order
// matches the feature vector: [seller verified, images qty, description
// length, category].
type Weights struct {
	Verified   float64 `json:"verified"`
	ImagesQty  float64 `json:"images_qty"`
	DescLength float64 `json:"desc_length"`
	Category   float64 `json:"category"`
	Bias       float64 `json:"bias"`
	Threshold  float64 `json:"threshold"`
	Version    string  `json:"version"`
}

// defaultWeights approximate the behavior the service was trained for:
// unverified sellers with few images are flagged, everything else passes.
var defaultWeights = Weights{
	Verified:   -4.2,
	ImagesQty:  -3.6,
	DescLength: -0.4,
	Category:   0.15,
	Bias:       1.1,
	Threshold:  0.5,
	Version:    "builtin",
}

// Model is an immutable violation scorer shared read-only by all workers.
// Construct it once at startup and inject the same reference everywhere.
type Model struct {
	weights Weights
}

// New loads weights from path, falling back to the built-in defaults when
// no weights file exists.
func New(path string, logger *slog.Logger) (*Model, error) {
	if path == "" {
		logger.Info("No model weights path configured, using builtin weights")
		return &Model{weights: defaultWeights}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("Model weights file not found, using builtin weights",
				slog.String("path", path),
			)
			return &Model{weights: defaultWeights}, nil
		}
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse model weights: %w", err)
	}

	if w.Threshold <= 0 || w.Threshold >= 1 {
		w.Threshold = defaultWeights.Threshold
	}

	logger.Info("Model weights loaded",
		slog.String("path", path),
		slog.String("version", w.Version),
	)

	return &Model{weights: w}, nil
}

// Version returns the loaded weights version.
func (m *Model) Version() string {
	return m.weights.Version
}

// Predict scores an ad and returns the violation verdict with its
// probability. The scorer is deterministic: identical ads always produce
// identical predictions.
func (m *Model) Predict(ad *domain.Ad) (domain.Prediction, error) {
	if ad == nil {
		return domain.Prediction{}, fmt.Errorf("%w: nil ad", domain.ErrModelUnavailable)
	}

	features := prepareFeatures(ad)

	score := m.weights.Bias
	score += m.weights.Verified * features[0]
	score += m.weights.ImagesQty * features[1]
	score += m.weights.DescLength * features[2]
	score += m.weights.Category * features[3]

	probability := sigmoid(score)

	return domain.Prediction{
		IsViolation: probability >= m.weights.Threshold,
		Probability: probability,
	}, nil
}

// prepareFeatures normalizes ad fields into the model's feature vector
func prepareFeatures(ad *domain.Ad) [4]float64 {
	verified := 0.0
	if ad.SellerIsVerified {
		verified = 1.0
	}

	return [4]float64{
		verified,
		math.Min(float64(ad.ImagesQty)/10.0, 1.0),
		math.Min(float64(len(ad.Description))/1000.0, 1.0),
		float64(ad.Category) / 100.0,
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
