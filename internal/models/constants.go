package models

const (
	GridSize         = 20
	PollutionMarkers = 15

	DefaultSeed    = 12345
	DefaultCityLat = 37.7749
	DefaultCityLon = -122.4194

	// PollutionJitter is the maximum marker offset from the city centre, in degrees.
	PollutionJitter = 0.05
	MinAQI          = 20
	MaxAQI          = 150

	DefaultTimeHour        = 14
	DefaultReductionFactor = 0.1

	LevelGood     = "good"
	LevelModerate = "moderate"
	LevelHigh     = "high"

	BaselineScenarioID = "baseline"

	MessageTrafficUpdate     = "traffic_update"
	MessageLiveUpdate        = "live_update"
	MessageScenarioCreated   = "scenario_created"
	MessageScenarioDeleted   = "scenario_deleted"
	MessageSimulationApplied = "simulation_applied"

	TopicTrafficSamples   = "traffic_samples"
	TopicPollutionMarkers = "pollution_markers"
)
