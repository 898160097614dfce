package simulator

import (
	"math"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// generatePollutionMarkers scatters markers around base. Each marker draws lat,
// lng and aqi in that order.
func generatePollutionMarkers(rng *SeededRandom, base models.Location, now time.Time) []models.PollutionMarker {
	data := make([]models.PollutionMarker, 0, models.PollutionMarkers)

	for i := 0; i < models.PollutionMarkers; i++ {
		lat := base.Lat + rng.Range(-models.PollutionJitter, models.PollutionJitter)
		lng := base.Lon + rng.Range(-models.PollutionJitter, models.PollutionJitter)
		aqi := int(math.Floor(rng.Range(models.MinAQI, models.MaxAQI)))

		data = append(data, models.PollutionMarker{
			ID:        generateID(),
			Lat:       lat,
			Lng:       lng,
			AQI:       aqi,
			Level:     models.LevelForAQI(aqi),
			Timestamp: now,
		})
	}

	return data
}

// PollutionBound returns the bounding box that contains every marker.
func PollutionBound(markers []models.PollutionMarker) orb.Bound {
	if len(markers) == 0 {
		return orb.Bound{}
	}
	mp := make(orb.MultiPoint, 0, len(markers))
	for _, m := range markers {
		mp = append(mp, m.Location().Point())
	}
	return mp.Bound()
}

// PollutionFeatureCollection renders markers as GeoJSON points for map layers.
func PollutionFeatureCollection(markers []models.PollutionMarker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewFeature(m.Location().Point())
		f.ID = m.ID
		f.Properties["aqi"] = m.AQI
		f.Properties["level"] = m.Level
		f.Properties["timestamp"] = models.FormatTimestamp(m.Timestamp)
		fc.Append(f)
	}
	if len(markers) > 0 {
		fc.BBox = geojson.NewBBox(PollutionBound(markers))
	}
	return fc
}
