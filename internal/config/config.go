package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL    string `yaml:"url" env:"DEVTOOLS_URL"`
		Target string `yaml:"target" env:"TARGET"`
	} `yaml:"devtools" envPrefix:"JOBSTATS_"`

	Capture struct {
		Mode              string `yaml:"mode" env:"MODE"`
		APIPath           string `yaml:"apiPath" env:"API_PATH"`
		QueryParam        string `yaml:"queryParam" env:"QUERY_PARAM"`
		Concurrency       int    `yaml:"concurrency" env:"CONCURRENCY"`
		PendingCapacity   int    `yaml:"pendingCapacity" env:"PENDING_CAPACITY"`
		BodySizeThreshold int64  `yaml:"bodySizeThreshold" env:"BODY_SIZE_THRESHOLD"`
		ProcessTimeoutMS  int    `yaml:"processTimeoutMS" env:"PROCESS_TIMEOUT_MS"`
	} `yaml:"capture" envPrefix:"JOBSTATS_CAPTURE_"`

	Badge struct {
		Selectors     []string      `yaml:"selectors" env:"SELECTORS" envSeparator:"|"`
		AnchorTimeout time.Duration `yaml:"anchorTimeout" env:"ANCHOR_TIMEOUT"`
		FrameInterval time.Duration `yaml:"frameInterval" env:"FRAME_INTERVAL"`
	} `yaml:"badge" envPrefix:"JOBSTATS_BADGE_"`

	Sqlite struct {
		Dsn    string `yaml:"dsn" env:"DSN"`
		Prefix string `yaml:"prefix" env:"PREFIX"`
	} `yaml:"sqlite" envPrefix:"JOBSTATS_SQLITE_"`

	Log struct {
		Level    string   `yaml:"level" env:"LEVEL"`
		Writer   []string `yaml:"writer" env:"WRITER" envSeparator:","`
		FilePath string   `yaml:"filePath" env:"FILE_PATH"`
	} `yaml:"log" envPrefix:"JOBSTATS_LOG_"`
}

// DefaultSelector 职位详情中“申请人数”附近的锚点
const DefaultSelector = "body > div:nth-child(42) > div:nth-child(4) > div:nth-child(4) > div:nth-child(2) > div:nth-child(1) > main:nth-child(1) > div:nth-child(1) > div:nth-child(2) > div:nth-child(2) > div:nth-child(1) > div:nth-child(2) > div:nth-child(1) > div:nth-child(2) > div:nth-child(1) > div:nth-child(1) > div:nth-child(1) > div:nth-child(1) > div:nth-child(1) > div:nth-child(1) > div:nth-child(3) > div:nth-child(1) > span:nth-child(1) > span:nth-child(5)"

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.DevTools.URL = "http://127.0.0.1:9222"
	c.Capture.Mode = "fetch"
	c.Capture.APIPath = "/voyager/api/jobs/"
	c.Capture.QueryParam = "currentJobId"
	c.Capture.Concurrency = 4
	c.Capture.PendingCapacity = 64
	c.Capture.BodySizeThreshold = 8 << 20
	c.Capture.ProcessTimeoutMS = 3000
	c.Badge.Selectors = []string{
		DefaultSelector,
		".job-details-jobs-unified-top-card__primary-description-container span.tvm__text:last-child",
	}
	c.Badge.AnchorTimeout = 10 * time.Second
	c.Badge.FrameInterval = 16 * time.Millisecond
	c.Sqlite.Dsn = "file::memory:?cache=shared"
	c.Sqlite.Prefix = "cdpjobstats_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	return c
}

// Load 读取默认配置，依次叠加配置文件与环境变量
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return c, c.Validate()
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Capture.Mode {
	case "fetch", "network":
	default:
		return fmt.Errorf("capture.mode %q: want fetch or network", c.Capture.Mode)
	}
	if c.Capture.APIPath == "" {
		return errors.New("capture.apiPath is empty")
	}
	if c.Capture.QueryParam == "" {
		return errors.New("capture.queryParam is empty")
	}
	if len(c.Badge.Selectors) == 0 {
		return errors.New("badge.selectors is empty")
	}
	return nil
}
