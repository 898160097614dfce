package cmd

import (
	"fmt"
	"os"

	"github.com/chrisdamba/urbansim/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "urbansim",
	Short: "Simulates urban traffic and pollution data",
	Long: `urbansim serves a procedurally generated traffic grid and pollution markers for a city,
stores what-if scenarios, and pushes live updates to WebSocket subscribers.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"seed":               "seed",
	"city-latitude":      "city_latitude",
	"city-longitude":     "city_longitude",
	"log-level":          "log_level",
	"log-format":         "log_format",
	"output-destination": "output_destination",
	"output-path":        "output_path",
	"kafka-broker-list":  "kafka_broker_list",
	"mqtt-broker":        "mqtt_broker",
	"database-url":       "database.url",
	"listen-addr":        "listen_addr",
	"broadcast-interval": "broadcast_interval",
	"write-timeout":      "write_timeout",
	"demo-scenarios":     "demo_scenarios",
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./urbansim.yaml)")
	pf.Int64("seed", models.DefaultSeed, "Seed for the deterministic random source")
	pf.Float64("city-latitude", models.DefaultCityLat, "Latitude pollution markers are scattered around")
	pf.Float64("city-longitude", models.DefaultCityLon, "Longitude pollution markers are scattered around")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text or json)")
	pf.String("output-destination", "none", "Archive destination (none, console, json, csv, parquet, kafka, mqtt, postgres)")
	pf.String("output-path", "output", "Base directory for file destinations")
	pf.String("kafka-broker-list", "localhost:9092", "Kafka broker list")
	pf.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	pf.String("database-url", "", "Postgres connection URL")

	rootCmd.Flags().String("listen-addr", ":5000", "HTTP listen address")
	rootCmd.Flags().Duration("broadcast-interval", defaultBroadcastInterval, "Interval between live updates")
	rootCmd.Flags().Duration("write-timeout", defaultWriteTimeout, "Deadline for one WebSocket write")
	rootCmd.Flags().Int("demo-scenarios", 0, "Number of generated demo scenarios to seed")

	rootCmd.AddCommand(exportCmd)
}

// bindFlags binds the flags cmd knows about, so a flag only overrides the
// config file and environment when it is set.
func bindFlags(cmd *cobra.Command) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}
	cfg, err := models.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
