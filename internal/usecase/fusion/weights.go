package fusion

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// weightsFile is the on-disk shape of the fusion tuning file.
type weightsFile struct {
	Weights domain.FusionWeights `json:"weights"`
	Boosts  domain.FusionBoosts  `json:"boosts"`
}

// LoadWeights reads fusion weights and boosts from a JSON file.
// A missing or malformed file is not an error: the hard-coded
// defaults apply and a warning is logged, so a bad tuning deploy
// cannot take screening down.
func LoadWeights(path string, logger *zap.Logger) (domain.FusionWeights, domain.FusionBoosts) {
	weights := domain.DefaultFusionWeights()
	boosts := domain.DefaultFusionBoosts()

	if path == "" {
		return weights, boosts
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("fusion weights file unreadable, using defaults",
			zap.String("path", path), zap.Error(err))
		return weights, boosts
	}

	var parsed weightsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Warn("fusion weights file malformed, using defaults",
			zap.String("path", path), zap.Error(err))
		return weights, boosts
	}

	if parsed.Weights.AC > 0 || parsed.Weights.Vector > 0 {
		weights = parsed.Weights
		weights.Normalize()
	}
	if parsed.Boosts.SharedHit > 0 || parsed.Boosts.MetadataMatch > 0 {
		boosts = parsed.Boosts
	}

	logger.Info("fusion weights loaded",
		zap.Float64("ac", weights.AC),
		zap.Float64("vector", weights.Vector),
		zap.Float64("shared_hit_bonus", boosts.SharedHit),
		zap.Float64("metadata_match_bonus", boosts.MetadataMatch),
	)
	return weights, boosts
}

// ValidateWeightsFile checks a tuning file eagerly, for configuration
// updates that must reject bad input instead of silently defaulting.
func ValidateWeightsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read weights file: %w", err)
	}
	var parsed weightsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse weights file: %w", err)
	}
	if parsed.Weights.AC < 0 || parsed.Weights.Vector < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	return nil
}
