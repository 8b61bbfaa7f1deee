package indicators

import (
	"math"
	"sort"

	"crypto-dashboard/models"
)

// DefaultVolumeProfileBins is the histogram resolution
const DefaultVolumeProfileBins = 20

// VolumeProfile buckets candle volume by midpoint price. Only occupied buckets
// are returned, sorted by descending volume.
func VolumeProfile(candles []models.Candle, bins int) []models.VolumeProfileBin {
	if len(candles) == 0 || bins <= 0 {
		return []models.VolumeProfileBin{}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		mid := c.MidPrice()
		lo = math.Min(lo, mid)
		hi = math.Max(hi, mid)
	}

	width := (hi - lo) / float64(bins)
	volumes := make([]float64, bins)
	occupied := make([]bool, bins)
	total := 0.0

	for _, c := range candles {
		idx := 0
		if width > 0 {
			idx = int((c.MidPrice() - lo) / width)
			if idx >= bins {
				idx = bins - 1
			} else if idx < 0 {
				idx = 0
			}
		}
		volumes[idx] += c.Volume
		occupied[idx] = true
		total += c.Volume
	}

	profile := make([]models.VolumeProfileBin, 0, bins)
	for i, v := range volumes {
		if !occupied[i] {
			continue
		}
		pct := 0.0
		if total > 0 {
			pct = v / total * 100
		}
		profile = append(profile, models.VolumeProfileBin{
			PriceLevel: lo + float64(i)*width,
			Volume:     v,
			Percentage: pct,
		})
	}

	sort.SliceStable(profile, func(i, j int) bool {
		return profile[i].Volume > profile[j].Volume
	})
	return profile
}
