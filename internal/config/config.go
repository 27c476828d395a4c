package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"colliderlab/domain/core"
	"colliderlab/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment"`
	Family     FamilyConfig     `yaml:"family"`
	Happiness  HappinessConfig  `yaml:"happiness"`
	Tuning     TuningConfig     `yaml:"tuning"`
	Report     ReportConfig     `yaml:"report"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   string           `yaml:"log_level" validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// ExperimentConfig holds resampling and selection settings shared by every study
type ExperimentConfig struct {
	Seed          int64   `yaml:"seed"`
	TrainFraction float64 `yaml:"train_fraction" validate:"gt=0,lt=1"`
	Folds         int     `yaml:"folds" validate:"gte=2"`
	Strata        int     `yaml:"strata" validate:"gte=0,lte=10"`
	Normalize     bool    `yaml:"normalize"`
	Metric        string  `yaml:"metric" validate:"oneof=rmse rsq mae"`
}

// FamilyConfig holds the structural coefficients of the family education model
type FamilyConfig struct {
	N   int     `yaml:"n" validate:"gt=0"`
	BGP float64 `yaml:"b_gp"`
	BGC float64 `yaml:"b_gc"`
	BPC float64 `yaml:"b_pc"`
	BU  float64 `yaml:"b_u"`
}

// HappinessConfig holds the age-structured marriage simulation settings
type HappinessConfig struct {
	Seed          int64 `yaml:"seed"`
	Years         int   `yaml:"years" validate:"gt=0"`
	MaxAge        int   `yaml:"max_age" validate:"gtfield=AgeOfMarriage"`
	BirthsPerYear int   `yaml:"births_per_year" validate:"gte=2"`
	AgeOfMarriage int   `yaml:"age_of_marriage" validate:"gt=0"`
}

// TuningConfig holds the model grids and search settings
type TuningConfig struct {
	Workers         int       `yaml:"workers" validate:"gte=1"`
	Race            bool      `yaml:"race"`
	BurnIn          int       `yaml:"burn_in" validate:"gte=2"`
	Alpha           float64   `yaml:"alpha" validate:"gt=0,lt=1"`
	Models          []string  `yaml:"models" validate:"min=1,dive,oneof=linear gbt"`
	LinearPenalties []float64 `yaml:"linear_penalties" validate:"min=1,dive,gte=0"`
	GBT             GBTGrid   `yaml:"gbt"`
}

// GBTGrid lists candidate values for each boosted-tree hyperparameter
type GBTGrid struct {
	Trees     []int     `yaml:"trees" validate:"min=1,dive,gt=0"`
	TreeDepth []int     `yaml:"tree_depth" validate:"min=1,dive,gt=0,lte=12"`
	LearnRate []float64 `yaml:"learn_rate" validate:"min=1,dive,gt=0,lte=1"`
	MinN      []int     `yaml:"min_n" validate:"min=1,dive,gt=0"`
}

// ReportConfig holds output settings
type ReportConfig struct {
	OutDir  string   `yaml:"out_dir" validate:"required"`
	Formats []string `yaml:"formats" validate:"min=1,dive,oneof=md html xlsx"`
}

// ServerConfig holds report browser settings
type ServerConfig struct {
	Port string `yaml:"port" validate:"required,numeric"`
}

// Default returns the textbook settings: family N=4000 with b_GC=0, b_U=2,
// happiness over 1000 simulated years, 80/20 split and 10 folds.
func Default() *Config {
	return &Config{
		Experiment: ExperimentConfig{
			Seed:          1,
			TrainFraction: 0.8,
			Folds:         10,
			Strata:        4,
			Normalize:     true,
			Metric:        "rmse",
		},
		Family: FamilyConfig{
			N:   4000,
			BGP: 1,
			BGC: 0,
			BPC: 1,
			BU:  2,
		},
		Happiness: HappinessConfig{
			Seed:          1977,
			Years:         1000,
			MaxAge:        65,
			BirthsPerYear: 20,
			AgeOfMarriage: 18,
		},
		Tuning: TuningConfig{
			Workers:         4,
			Race:            true,
			BurnIn:          3,
			Alpha:           0.05,
			Models:          []string{"linear", "gbt"},
			LinearPenalties: []float64{0, 0.01, 0.1, 1},
			GBT: GBTGrid{
				Trees:     []int{50, 150},
				TreeDepth: []int{2, 4},
				LearnRate: []float64{0.05, 0.2},
				MinN:      []int{10},
			},
		},
		Report: ReportConfig{
			OutDir:  "./reports",
			Formats: []string{"md", "html", "xlsx"},
		},
		Server:   ServerConfig{Port: "8080"},
		LogLevel: "INFO",
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file and environment variables (in that order of precedence), then validates it.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Default()

	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	applyEnv(config)

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.Wrap(errors.ConfigInvalid(err.Error()), "invalid YAML")
	}
	return nil
}

func applyEnv(config *Config) {
	config.Experiment.Seed = getEnvInt64OrDefault("COLLIDER_SEED", config.Experiment.Seed)
	config.Experiment.Folds = getEnvIntOrDefault("COLLIDER_FOLDS", config.Experiment.Folds)
	config.Experiment.Metric = strings.ToLower(strings.TrimSpace(getEnvOrDefault("COLLIDER_METRIC", config.Experiment.Metric)))
	config.Experiment.Normalize = getEnvBoolOrDefault("COLLIDER_NORMALIZE", config.Experiment.Normalize)
	config.Family.N = getEnvIntOrDefault("COLLIDER_FAMILY_N", config.Family.N)
	config.Tuning.Workers = getEnvIntOrDefault("COLLIDER_WORKERS", config.Tuning.Workers)
	config.Tuning.Race = getEnvBoolOrDefault("COLLIDER_RACE", config.Tuning.Race)
	config.Report.OutDir = getEnvOrDefault("COLLIDER_OUT_DIR", config.Report.OutDir)
	config.Server.Port = getEnvOrDefault("PORT", config.Server.Port)
	config.LogLevel = strings.ToUpper(getEnvOrDefault("LOG_LEVEL", config.LogLevel))
}

// Hash fingerprints the settings that can change a result. Logging, report
// and server settings are excluded.
func Hash(config *Config) (core.Hash, error) {
	relevant := *config
	relevant.Report = ReportConfig{}
	relevant.Server = ServerConfig{}
	relevant.LogLevel = ""
	data, err := yaml.Marshal(&relevant)
	if err != nil {
		return "", err
	}
	return core.NewHash(data), nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and reports the first failing field
func Validate(config *Config) error {
	if err := validate.Struct(config); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errors.ConfigInvalid(fe.Namespace() + " failed '" + fe.Tag() + "' constraint")
		}
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
