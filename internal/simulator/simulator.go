package simulator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/lucsky/cuid"
)

// Simulator owns the shared random stream, the traffic cache and the current
// pollution snapshot. A single mutex covers all three so that each generation
// consumes its draws without interleaving.
type Simulator struct {
	mu           sync.Mutex
	rng          *SeededRandom
	center       models.Location
	trafficCache map[trafficKey][]models.TrafficSample
	pollution    []models.PollutionMarker
	now          func() time.Time

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

type Option func(*Simulator)

// WithClock replaces time.Now for sample and marker timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

// NewSimulator seeds the random stream and generates the initial pollution set.
func NewSimulator(seed int64, center models.Location, opts ...Option) *Simulator {
	sim := &Simulator{
		rng:          NewSeededRandom(seed),
		center:       center,
		trafficCache: make(map[trafficKey][]models.TrafficSample),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(sim)
	}
	sim.pollution = generatePollutionMarkers(sim.rng, sim.center, sim.now())
	return sim
}

func NewSimulatorFromConfig(cfg *models.Config) *Simulator {
	return NewSimulator(cfg.Seed, cfg.CityCenter())
}

// TrafficData returns the grid for hour at zero reduction, generating it on the
// first request.
func (s *Simulator) TrafficData(hour int) []models.TrafficSample {
	return s.GenerateTrafficData(hour, 0)
}

// GenerateTrafficData returns the cached grid for (hour, reduction) or generates
// and caches it.
func (s *Simulator) GenerateTrafficData(hour int, reduction float64) []models.TrafficSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := trafficKey{hour: hour, reduction: reduction}
	if data, ok := s.trafficCache[key]; ok {
		s.cacheHits.Add(1)
		return data
	}
	s.cacheMisses.Add(1)

	data := generateTrafficGrid(s.rng, hour, reduction, s.now())
	s.trafficCache[key] = data
	return data
}

// RegenerateTrafficData always draws a new grid and overwrites the cache slot.
func (s *Simulator) RegenerateTrafficData(hour int, reduction float64) []models.TrafficSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := generateTrafficGrid(s.rng, hour, reduction, s.now())
	s.trafficCache[trafficKey{hour: hour, reduction: reduction}] = data
	return data
}

func (s *Simulator) PollutionData() []models.PollutionMarker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollution
}

// RegeneratePollution replaces the whole marker set.
func (s *Simulator) RegeneratePollution() []models.PollutionMarker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollution = generatePollutionMarkers(s.rng, s.center, s.now())
	return s.pollution
}

func (s *Simulator) CacheHits() uint64 {
	return s.cacheHits.Load()
}

func (s *Simulator) CacheMisses() uint64 {
	return s.cacheMisses.Load()
}

// CacheEntries reports the number of cached (hour, reduction) grids. Entries are
// never evicted.
func (s *Simulator) CacheEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trafficCache)
}

func generateID() string {
	return cuid.New()
}
