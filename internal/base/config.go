package base

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/gjson"

	"github.com/bihua-university/melodex/internal/ai"
)

// Configuration is read from config.json. Every field can be overridden by
// MUSIC_<FIELD> in the environment, e.g. MUSIC_API_TOKEN or MUSIC_AI_BASE_URL.
type Configuration struct {
	Addr     string `config:"addr" split_words:"true"`
	APIToken string `config:"api.token" split_words:"true"`
	Debug    bool   `config:"log.debug" split_words:"true"`

	DBDriver string `config:"db.driver" split_words:"true"` // sqlite or postgres
	DSN      string `config:"db.dsn" split_words:"true"`

	LibraryDir string `config:"library.dir" split_words:"true"`

	AIProvider    string        `config:"ai.provider" split_words:"true"`
	AIBaseURL     string        `config:"ai.base_url" split_words:"true"`
	AIModel       string        `config:"ai.model" split_words:"true"`
	AIKey         string        `config:"ai.key" split_words:"true"`
	AITemperature float64       `config:"ai.temperature" split_words:"true"`
	AITimeout     time.Duration `config:"ai.timeout" split_words:"true"`
	AIMinInterval time.Duration `config:"ai.min_interval" split_words:"true"`
	AIMaxAttempts int           `config:"ai.max_attempts" split_words:"true"`
	AIBackoff     time.Duration `config:"ai.backoff" split_words:"true"`
}

var Config = Default()

// Default returns the configuration used when config.json omits a key.
func Default() Configuration {
	return Configuration{
		Addr:          ":8080",
		DBDriver:      "sqlite",
		DSN:           "melodex.sqlite3",
		AIProvider:    "deepseek",
		AITemperature: 0.7,
		AITimeout:     60 * time.Second,
		AIMinInterval: time.Second,
		AIMaxAttempts: 5,
		AIBackoff:     time.Second,
	}
}

// AIOptions is the client setup before any stored settings are applied.
func (c Configuration) AIOptions() ai.Options {
	return ai.Options{
		Provider:    c.AIProvider,
		BaseURL:     c.AIBaseURL,
		Model:       c.AIModel,
		Timeout:     c.AITimeout,
		MinInterval: c.AIMinInterval,
		MaxAttempts: c.AIMaxAttempts,
		BaseBackoff: c.AIBackoff,
	}
}

func InitConfig() {
	cfg, err := LoadConfig("config.json")
	if err != nil {
		panic(err)
	}
	Config = cfg
}

// LoadConfig reads path (a missing file is not an error) and applies
// MUSIC_* environment overrides on top.
func LoadConfig(path string) (Configuration, error) {
	cfg := Default()
	file, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := decode(gjson.ParseBytes(file), &cfg); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("music", &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func decode(g gjson.Result, dst any) error {
	var (
		v = reflect.ValueOf(dst).Elem()
		t = v.Type()
	)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("config")
		if name == "" {
			continue
		}
		r := g.Get(name)
		if !r.Exists() {
			continue
		}
		f := v.Field(i)
		switch {
		case field.Type == durationType:
			// "1.5s" style strings, or plain numbers as milliseconds
			if r.Type == gjson.Number {
				f.SetInt(int64(time.Duration(r.Int()) * time.Millisecond))
				continue
			}
			d, err := time.ParseDuration(r.String())
			if err != nil {
				return fmt.Errorf("config %s: %w", name, err)
			}
			f.SetInt(int64(d))
		case field.Type.Kind() == reflect.String:
			f.SetString(r.String())
		case field.Type.Kind() == reflect.Int:
			f.SetInt(r.Int())
		case field.Type.Kind() == reflect.Bool:
			f.SetBool(r.Bool())
		case field.Type.Kind() == reflect.Float64:
			f.SetFloat(r.Float())
		default:
			return fmt.Errorf("config %s: unsupported type %s", name, field.Type)
		}
	}
	return nil
}
