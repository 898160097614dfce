package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/chrisdamba/urbansim/internal/repositories"
	"github.com/chrisdamba/urbansim/internal/simulator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// TrafficSimulator is the part of the simulator the API serves from.
type TrafficSimulator interface {
	TrafficData(hour int) []models.TrafficSample
	GenerateTrafficData(hour int, reduction float64) []models.TrafficSample
	PollutionData() []models.PollutionMarker
	RegeneratePollution() []models.PollutionMarker
}

// Notifier fans application events out to live subscribers.
type Notifier interface {
	Notify(eventType string, data any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, any) {}

type Handler struct {
	sim       TrafficSimulator
	scenarios repositories.ScenarioRepository
	notifier  Notifier
	validate  *validator.Validate
}

func NewHandler(sim TrafficSimulator, scenarios repositories.ScenarioRepository, notifier Notifier) *Handler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Handler{
		sim:       sim,
		scenarios: scenarios,
		notifier:  notifier,
		validate:  newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error   string        `json:"error"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTraffic serves the cached grid for ?time=. The leading integer of the
// parameter is used ("8am" is hour 8); without one the hour defaults to 14.
func (h *Handler) GetTraffic(w http.ResponseWriter, r *http.Request) {
	hour := models.DefaultTimeHour
	if parsed, ok := parseLeadingInt(r.URL.Query().Get("time")); ok {
		hour = parsed
	}
	writeJSON(w, http.StatusOK, h.sim.TrafficData(hour))
}

// parseLeadingInt reads an optionally signed run of digits after leading
// whitespace and ignores whatever follows it.
func parseLeadingInt(raw string) (int, bool) {
	s := strings.TrimLeft(raw, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (h *Handler) GetPollution(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sim.PollutionData())
}

func (h *Handler) GetPollutionGeoJSON(w http.ResponseWriter, _ *http.Request) {
	fc := simulator.PollutionFeatureCollection(h.sim.PollutionData())
	data, err := fc.MarshalJSON()
	if err != nil {
		log.WithError(err).Error("encoding pollution geojson")
		writeError(w, http.StatusInternalServerError, "Failed to fetch pollution data")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) RegeneratePollution(w http.ResponseWriter, _ *http.Request) {
	markers := h.sim.RegeneratePollution()
	log.WithField("markers", len(markers)).Info("pollution markers regenerated")
	writeJSON(w, http.StatusOK, markers)
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) SimulateBus(w http.ResponseWriter, r *http.Request) {
	var req models.BusSimulationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid simulation request")
		return
	}

	hour := models.DefaultTimeHour
	if req.TimeHour != nil {
		hour = int(*req.TimeHour)
	}
	reduction := models.DefaultReductionFactor
	if req.ReductionFactor != nil {
		reduction = *req.ReductionFactor
	}

	data := h.sim.GenerateTrafficData(hour, reduction)
	result := models.BusSimulationResult{
		TrafficData: data,
		Statistics: models.TrafficStatistics{
			TrafficReduction: reduction * 100,
			AQIImprovement:   reduction * 8,
			AvgDensity:       models.AverageDensity(data),
		},
	}

	log.WithFields(log.Fields{
		"hour":      hour,
		"reduction": reduction,
	}).Info("bus simulation applied")
	h.notifier.Notify(models.MessageSimulationApplied, result.Statistics)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := h.scenarios.GetAll(r.Context())
	if err != nil {
		log.WithError(err).Error("listing scenarios")
		writeError(w, http.StatusInternalServerError, "Failed to fetch scenarios")
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	scenario, ok := h.scenarios.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Scenario not found")
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	var input models.ScenarioInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Invalid scenario data",
			Details: []fieldDetail{decodeErrorDetail(err)},
		})
		return
	}
	if details := h.validateScenario(input); len(details) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid scenario data", Details: details})
		return
	}

	scenario, err := h.scenarios.Create(r.Context(), input)
	if err != nil {
		log.WithError(err).Error("creating scenario")
		writeError(w, http.StatusInternalServerError, "Failed to create scenario")
		return
	}

	log.WithFields(log.Fields{
		"id":   scenario.ID,
		"name": scenario.Name,
	}).Info("scenario created")
	h.notifier.Notify(models.MessageScenarioCreated, scenario)
	writeJSON(w, http.StatusOK, scenario)
}

func (h *Handler) validateScenario(input models.ScenarioInput) []fieldDetail {
	var details []fieldDetail
	if err := h.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []fieldDetail{{Rule: "invalid", Message: err.Error()}}
		}
		for _, fe := range verrs {
			details = append(details, fieldDetail{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: fe.Field() + " is " + fe.Tag(),
			})
		}
	}
	// "data": null decodes to a non-nil raw message
	if input.Data != nil && bytes.Equal(bytes.TrimSpace(input.Data), []byte("null")) {
		details = append(details, fieldDetail{Field: "data", Rule: "required", Message: "data is required"})
	}
	return details
}

func decodeErrorDetail(err error) fieldDetail {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fieldDetail{
			Field:   typeErr.Field,
			Rule:    "type",
			Message: "expected " + typeErr.Type.String() + ", got " + typeErr.Value,
		}
	}
	return fieldDetail{Rule: "json", Message: err.Error()}
}

func (h *Handler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == models.BaselineScenarioID {
		writeError(w, http.StatusForbidden, "Cannot delete baseline scenario")
		return
	}

	deleted, err := h.scenarios.Delete(r.Context(), id)
	if err != nil {
		log.WithError(err).WithField("id", id).Error("deleting scenario")
		writeError(w, http.StatusInternalServerError, "Failed to delete scenario")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Scenario not found")
		return
	}

	log.WithField("id", id).Info("scenario deleted")
	h.notifier.Notify(models.MessageScenarioDeleted, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
