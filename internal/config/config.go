// Package config loads process configuration the way the teacher's CLIs do:
// cobra flags layered under viper, with environment variable binding and an
// optional .env file for local development.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LLMConfig is the single record describing the remote inference endpoint
// (spec.md §4.D): {endpoint, model_name, timeout}.
type LLMConfig struct {
	Endpoint   string `json:"endpoint"`
	ModelName  string `json:"model_name"`
	TimeoutSec int    `json:"timeout_seconds"`
}

// ICDO3Config optionally overrides the dictionary CSV path.
type ICDO3Config struct {
	CSVPath string `json:"csv_path"`
}

// Config is the process-wide configuration surface.
type Config struct {
	Port               string
	DataDir            string
	PromptsDir         string
	FewShotPath        string
	SessionsDir        string
	DictionaryCSVPath  string
	StatusDBPath       string
	ResultsDBPath      string
	CORSOrigins        []string
	NLPBackendURL      string
	ETLHost            string
	VLLMConcurrency    int
	LLM                LLMConfig
}

// Load assembles configuration from flags already bound into viper (by the
// cobra command), environment variables, and the vllm_config.json /
// icdo3_config.json files named in spec.md §6. A missing .env file is not an
// error — it is only loaded opportunistically in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("port", "8080")
	viper.SetDefault("data-dir", "./data")
	viper.SetDefault("prompts-dir", "./prompts")
	viper.SetDefault("fewshot-path", "./data/fewshot.json")
	viper.SetDefault("sessions-dir", "./data/sessions")
	viper.SetDefault("dictionary-csv", "./data/diagnosis-codes-list.csv")
	viper.SetDefault("status-db", "./data/pipeline_status.db")
	viper.SetDefault("results-db", "./data/pipeline_results.db")

	cfg := &Config{
		Port:              viper.GetString("port"),
		DataDir:           viper.GetString("data-dir"),
		PromptsDir:        viper.GetString("prompts-dir"),
		FewShotPath:       viper.GetString("fewshot-path"),
		SessionsDir:       viper.GetString("sessions-dir"),
		DictionaryCSVPath: viper.GetString("dictionary-csv"),
		StatusDBPath:      viper.GetString("status-db"),
		ResultsDBPath:     viper.GetString("results-db"),
		NLPBackendURL:     os.Getenv("NLP_BACKEND_URL"),
		ETLHost:           os.Getenv("ETL_HOST"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	cfg.VLLMConcurrency = 8
	if v := os.Getenv("VLLM_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.VLLMConcurrency = n
		}
	}

	cfg.LLM = LLMConfig{
		Endpoint:   "http://localhost:8000",
		ModelName:  "default",
		TimeoutSec: 30,
	}
	if err := loadJSONInto("vllm_config.json", &cfg.LLM); err != nil {
		return nil, err
	}

	var icdo3 ICDO3Config
	if err := loadJSONInto("icdo3_config.json", &icdo3); err != nil {
		return nil, err
	}
	if icdo3.CSVPath != "" {
		cfg.DictionaryCSVPath = icdo3.CSVPath
	}

	return cfg, nil
}

// loadJSONInto reads path into v if it exists; a missing file is not an
// error since both config files are optional overlays on defaults.
func loadJSONInto(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}
