package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Labeling struct {
		VideoBatchSize       int     `yaml:"video_batch_size"`
		VideoGoldStandards   int     `yaml:"video_gold_standards"`
		SegmentBatchSize     int     `yaml:"segment_batch_size"`
		SegmentGoldStandards int     `yaml:"segment_gold_standards"`
		PartialLabelRatio    float64 `yaml:"partial_label_ratio"`
		IoUThreshold         float64 `yaml:"iou_threshold"`
		// MinCorrectGold below 1 means every gold standard in the batch
		// must be answered correctly.
		MinCorrectGold       int   `yaml:"min_correct_gold"`
		BatchCooldownSeconds int64 `yaml:"batch_cooldown_seconds"`
	} `yaml:"labeling"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

// LoadConfig reads configuration from the specified YAML file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}
