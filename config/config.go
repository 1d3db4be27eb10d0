package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var ErrInvalidConfig = errors.New("invalid configuration")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://local-server/config/schema.json"

type Config struct {
	Digest    DigestConfig   `json:"digest"`
	Quantiles []float64      `json:"quantiles"`
	Shards    int            `json:"shards"`
	MaxSeries int            `json:"maxSeries"`
	Window    WindowConfig   `json:"window"`
	Otel      OtelConfig     `json:"otel"`
	Http      HttpConfig     `json:"http"`
	Snapshot  SnapshotConfig `json:"snapshot"`
}

type DigestConfig struct {
	Accuracy            float64 `json:"accuracy"`
	CompressionConstant float64 `json:"compressionConstant"`
}

// WindowConfig of zero size keeps everything since start.
type WindowConfig struct {
	Size        Duration `json:"size"`
	GracePeriod Duration `json:"gracePeriod"`
}

// OtelConfig without host disables reporting.
type OtelConfig struct {
	Host         string   `json:"host"`
	Secured      bool     `json:"secured"`
	ReportPeriod Duration `json:"reportPeriod"`
}

type HttpConfig struct {
	Host string `json:"host"`
}

type SnapshotConfig struct {
	Codec string `json:"codec"`
}

type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default() *Config {
	return &Config{
		Digest: DigestConfig{
			Accuracy:            0.02,
			CompressionConstant: 25,
		},
		Quantiles: []float64{0.5, 0.9, 0.95, 0.99},
		Shards:    8,
		MaxSeries: 10000,
		Window: WindowConfig{
			Size:        Duration(time.Minute),
			GracePeriod: Duration(10 * time.Second),
		},
		Otel: OtelConfig{
			ReportPeriod: Duration(10 * time.Second),
		},
		Http: HttpConfig{
			Host: "localhost:8080",
		},
		Snapshot: SnapshotConfig{
			Codec: "zstd",
		},
	}
}

// Load reads configuration from path, a missing file yields defaults.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(content))
}

// Parse validates content against the schema and overlays it on defaults.
func Parse(r io.Reader) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Default()
	if err := json.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks constraints spanning several fields.
func (c *Config) Validate() error {
	size := c.Window.Size.Std()
	gracePeriod := c.Window.GracePeriod.Std()
	if size > 0 && (gracePeriod <= 0 || gracePeriod > size) {
		return fmt.Errorf("%w: window grace period %s must be within window size %s", ErrInvalidConfig, gracePeriod, size)
	}
	if len(c.Otel.Host) > 0 && c.Otel.ReportPeriod.Std() <= 0 {
		return fmt.Errorf("%w: report period must be positive", ErrInvalidConfig)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.UseLoader(&nopLoader{})
	if err := c.AddResource(schemaURL, schema); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

var ErrRemoteSchemaNotSupported = errors.New("do not support loading schemas from remote sources")

type nopLoader struct {
}

func (l *nopLoader) Load(_ string) (any, error) {
	return nil, ErrRemoteSchemaNotSupported
}
