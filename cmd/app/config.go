package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/thermocarlo/internal/logger"
	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/schedule"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

const EnvPrefix = "THERMOCARLO_"

type Config struct {
	InstanceID  string            `koanf:"instance_id"`
	Model       ModelConfig       `koanf:"model"`
	Simulation  SimulationConfig  `koanf:"simulation"`
	Controllers ControllersConfig `koanf:"controllers"`
	Store       StoreConfig       `koanf:"store"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	Logging     logger.Config     `koanf:"logging"`
}

type ModelConfig struct {
	SecondsToHeat int     `koanf:"seconds_to_heat"`
	SecondsToCool int     `koanf:"seconds_to_cool"`
	Goal          float64 `koanf:"goal"`
	Deadband      float64 `koanf:"deadband"`
}

type SimulationConfig struct {
	DeltaSeconds       int     `koanf:"delta_seconds"`
	Horizon            int     `koanf:"horizon"`
	OutdoorTemperature float64 `koanf:"outdoor_temperature"`

	Runs     int    `koanf:"runs"`
	Seed     int64  `koanf:"seed"`
	Exec     string `koanf:"exec"`     // "sequential" | "parallel"
	Strategy string `koanf:"strategy"` // "dynamic" | "fused"
	Workers  int    `koanf:"workers"`
	MaxRuns  int    `koanf:"max_runs"` // largest batch a controller may request

	InitialTemperatureMin float64 `koanf:"initial_temperature_min"`
	InitialTemperatureMax float64 `koanf:"initial_temperature_max"`
	DutyCycle             float64 `koanf:"duty_cycle"`
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt"`
	Modbus ModbusConfig `koanf:"modbus"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Metrics bool   `koanf:"metrics"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainReport    bool          `koanf:"retain_report"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Driver  string `koanf:"driver"` // "sqlite" | "postgres"
	DSN     string `koanf:"dsn"`
}

type KafkaConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Brokers      []string      `koanf:"brokers"`
	Topic        string        `koanf:"topic"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// Default mirrors the reference benchmark: a 20 °C goal, five-minute steps
// over one day and 10,000 runs.
func Default() Config {
	p := thermal.DefaultParams()
	ev := montecarlo.DefaultConfig()
	so := schedule.DefaultOptions()
	return Config{
		InstanceID: "default",
		Model: ModelConfig{
			SecondsToHeat: p.SecondsToHeat,
			SecondsToCool: p.SecondsToCool,
			Goal:          p.Goal,
			Deadband:      p.Deadband,
		},
		Simulation: SimulationConfig{
			DeltaSeconds:          ev.DeltaSeconds,
			Horizon:               ev.Horizon,
			OutdoorTemperature:    ev.OutdoorTemperature,
			Runs:                  10000,
			MaxRuns:               simulation.DefaultMaxRuns,
			Seed:                  743298347,
			Exec:                  simulation.ExecSequential.String(),
			Strategy:              montecarlo.StrategyDynamic.String(),
			InitialTemperatureMin: so.InitialMin,
			InitialTemperatureMax: so.InitialMax,
			DutyCycle:             so.DutyCycle,
		},
		Controllers: ControllersConfig{
			HTTP: HTTPConfig{Enabled: true, Addr: ":8080", Metrics: true},
			MQTT: MQTTConfig{
				BrokerURL:       "tcp://localhost:1883",
				PublishInterval: time.Second,
			},
			Modbus: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "data/thermocarlo.db"},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "thermocarlo.reports",
			WriteTimeout: 5 * time.Second,
		},
		Logging: logger.DefaultConfig(),
	}
}

// LoadConfig layers defaults, the optional config file and THERMOCARLO_*
// environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.Environ)
}

func loadConfig(path string, environ func() []string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return Config{}, err
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			key = envKeyTransform(strings.TrimPrefix(key, EnvPrefix))
			if key == "" {
				return "", nil
			}
			if key == "kafka.brokers" {
				return key, strings.Split(value, ",")
			}
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Config file missing → use defaults
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var sections = map[string]bool{
	"model":      true,
	"simulation": true,
	"store":      true,
	"kafka":      true,
	"logging":    true,
}

// envKeyTransform maps an unprefixed env var name to a koanf key:
// SIMULATION_RUNS → simulation.runs, CONTROLLERS_HTTP_ADDR → controllers.http.addr.
// Anything else is lowercased as is.
func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(s, "controllers_"); ok {
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) < 2 {
			return s
		}
		return "controllers." + parts[0] + "." + parts[1]
	}
	section, rest, ok := strings.Cut(s, "_")
	if ok && sections[section] {
		return section + "." + rest
	}
	return s
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.InstanceID) == "" {
		return errors.New("config: instance_id must not be empty")
	}
	params := c.ModelParams()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("config: model: %w", err)
	}
	evaluator := c.EvaluatorConfig()
	if err := evaluator.Validate(); err != nil {
		return fmt.Errorf("config: simulation: %w", err)
	}
	if _, err := c.Request(); err != nil {
		return fmt.Errorf("config: simulation: %w", err)
	}
	if c.Controllers.MQTT.QoS > 1 {
		return errors.New("config: controllers.mqtt.qos must be 0 or 1")
	}
	if c.Controllers.Modbus.Enabled && c.Controllers.Modbus.UnitID == 0 {
		return errors.New("config: controllers.modbus.unit_id must be non-zero")
	}
	if c.Store.Enabled && strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("config: store.dsn must not be empty")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.Topic) == "") {
		return errors.New("config: kafka needs brokers and a topic")
	}
	return nil
}

func (c Config) ModelParams() thermal.Params {
	return thermal.Params{
		SecondsToHeat: c.Model.SecondsToHeat,
		SecondsToCool: c.Model.SecondsToCool,
		Goal:          c.Model.Goal,
		Deadband:      c.Model.Deadband,
	}
}

func (c Config) EvaluatorConfig() montecarlo.Config {
	return montecarlo.Config{
		DeltaSeconds:       c.Simulation.DeltaSeconds,
		Horizon:            c.Simulation.Horizon,
		OutdoorTemperature: c.Simulation.OutdoorTemperature,
	}
}

// Request is the default batch described by the simulation section.
func (c Config) Request() (simulation.Request, error) {
	exec, err := simulation.ParseExec(c.Simulation.Exec)
	if err != nil {
		return simulation.Request{}, err
	}
	strategy, err := montecarlo.ParseStrategy(c.Simulation.Strategy)
	if err != nil {
		return simulation.Request{}, err
	}
	req := simulation.Request{
		Runs:     c.Simulation.Runs,
		Seed:     c.Simulation.Seed,
		Exec:     exec,
		Strategy: strategy,
		Workers:  c.Simulation.Workers,
		MaxRuns:  c.Simulation.MaxRuns,
		Schedules: schedule.Options{
			InitialMin: c.Simulation.InitialTemperatureMin,
			InitialMax: c.Simulation.InitialTemperatureMax,
			DutyCycle:  c.Simulation.DutyCycle,
		},
	}
	if err := req.Validate(); err != nil {
		return simulation.Request{}, err
	}
	return req, nil
}
