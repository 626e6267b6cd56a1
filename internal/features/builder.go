// Package features turns a tick's normalized signals into a sparse feature vector.
package features

import (
	"fmt"

	"github.com/Alias1177/RateWatcher/models"
)

const (
	Bias       = "bias"
	AgreeCount = "agree_count"
)

// DirKey names the per-direction feature of an indicator, e.g. "boll_dir_+1".
func DirKey(key string, dir models.Direction) string {
	return fmt.Sprintf("%s_dir_%+d", key, int(dir))
}

// ConfKey names the confidence feature of an indicator.
func ConfKey(key string) string {
	return key + "_conf"
}

// Build maps active signals to features. Inactive signals contribute nothing.
func Build(signals map[string]models.StructuredSignal) models.FeatureVector {
	f := models.FeatureVector{Bias: 1.0}

	for key, s := range signals {
		if !s.Active() {
			continue
		}
		f[DirKey(key, s.Direction)] = s.Confidence
		f[ConfKey(key)] = s.Confidence
	}

	pos, neg := Agreement(signals, 0)
	f[AgreeCount] = float64(max(pos, neg))
	return f
}

// Agreement counts active signals per side whose confidence reaches minConfidence.
func Agreement(signals map[string]models.StructuredSignal, minConfidence float64) (pos, neg int) {
	for _, s := range signals {
		if !s.Active() || s.Confidence < minConfidence {
			continue
		}
		if s.Direction > 0 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}
