package config

// #region imports
import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #endregion

// #region duration

// Duration parses "90s" / "2m" strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the stdlib type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// #endregion duration

// #region config

// Config is the controller's full runtime configuration.
type Config struct {
	DBPath   string   `yaml:"db_path"`
	Model    Model    `yaml:"model"`
	Timeouts Timeouts `yaml:"timeouts"`
}

// Model configures the OpenAI-compatible endpoint backing all agents.
type Model struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	MutatorModel    string `yaml:"mutator_model"`
	JudgeModel      string `yaml:"judge_model"`
	SupervisorModel string `yaml:"supervisor_model"`
}

// Timeouts bounds each pipeline stage.
type Timeouts struct {
	Mutate    Duration `yaml:"mutate"`
	Judge     Duration `yaml:"judge"`
	Supervise Duration `yaml:"supervise"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DBPath: "genepool.db",
		Model: Model{
			MutatorModel:    "gpt-4o",
			JudgeModel:      "gpt-4o",
			SupervisorModel: "gpt-4o-mini",
		},
		Timeouts: Timeouts{
			Mutate:    Duration(60 * time.Second),
			Judge:     Duration(120 * time.Second),
			Supervise: Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.DBPath = envOr("GENEPOOL_DB", cfg.DBPath)
	cfg.Model.APIKey = envOr("OPENAI_API_KEY", cfg.Model.APIKey)
	cfg.Model.BaseURL = envOr("OPENAI_BASE_URL", cfg.Model.BaseURL)
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion config
