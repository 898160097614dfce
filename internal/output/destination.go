package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chrisdamba/urbansim/internal/models"
)

// Destination receives flat archive records, one JSON message per record.
type Destination interface {
	WriteMessage(topic string, msg []byte) error
	Close() error
}

// NewDestination builds the destination named by cfg.OutputDestination. It
// returns nil, nil when archiving is disabled.
func NewDestination(ctx context.Context, cfg *models.Config) (Destination, error) {
	switch cfg.OutputDestination {
	case "", "none":
		return nil, nil
	case "console":
		return NewConsoleOutput(nil), nil
	case "json":
		return NewJSONOutput(cfg.OutputPath, cfg.OutputFolder), nil
	case "csv":
		return NewCSVOutput(cfg.OutputPath, cfg.OutputFolder), nil
	case "parquet":
		return NewParquetOutput(ctx, cfg)
	case "kafka":
		return NewKafkaOutput(cfg)
	case "mqtt":
		return NewMQTTOutput(cfg)
	case "postgres":
		return NewPostgresOutput(ctx, cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unsupported output destination: %s", cfg.OutputDestination)
	}
}

func WriteRecord(dest Destination, topic string, record any) error {
	msg, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", topic, err)
	}
	return dest.WriteMessage(topic, msg)
}

// WriteSnapshot archives every traffic sample and pollution marker. It keeps
// going after a failed record and returns the joined errors.
func WriteSnapshot(dest Destination, traffic []models.TrafficSample, reduction float64, pollution []models.PollutionMarker) error {
	var errs []error
	for _, s := range traffic {
		if err := WriteRecord(dest, models.TopicTrafficSamples, models.NewTrafficRecord(s, reduction)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, m := range pollution {
		if err := WriteRecord(dest, models.TopicPollutionMarkers, models.NewPollutionRecord(m)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// partitionPath derives the hive-style partition of a record from its unix
// "timestamp" field.
func partitionPath(event map[string]interface{}) (string, error) {
	timestamp, ok := event["timestamp"].(float64)
	if !ok {
		return "", fmt.Errorf("invalid timestamp")
	}

	eventTime := time.Unix(int64(timestamp), 0).UTC()
	year, month, day := eventTime.Date()
	return fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d", year, month, day, eventTime.Hour()), nil
}

func partitionDir(basePath, folder, topic, partition string) string {
	return filepath.Join(basePath, folder, topic, filepath.FromSlash(partition))
}
