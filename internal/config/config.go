package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models greendesk.yml.
type Config struct {
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Queue       QueueConfig       `yaml:"queue"`
	Webhooks    []WebhookConfig   `yaml:"webhooks,omitempty"`
}

type MarketplaceConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// QueueConfig tunes how each domain assigns task priorities. Lower numbers
// are more urgent.
type QueueConfig struct {
	Payment  PaymentQueueConfig  `yaml:"payment"`
	Shipment ShipmentQueueConfig `yaml:"shipment"`
	Auction  AuctionQueueConfig  `yaml:"auction"`
}

type PaymentQueueConfig struct {
	BasePriority     int `yaml:"base_priority"`
	UrgencyStepHours int `yaml:"urgency_step_hours"`
	MinPriority      int `yaml:"min_priority"`
}

type ShipmentQueueConfig struct {
	Priority          int `yaml:"priority"`
	OverdueAfterHours int `yaml:"overdue_after_hours"`
	OverduePriority   int `yaml:"overdue_priority"`
}

type AuctionQueueConfig struct {
	Priority int `yaml:"priority"`
}

// WebhookConfig points audit-event notifications at an external receiver.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with gd config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("config.marketplace.base_url is required")
	}
	if c.Marketplace.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.marketplace.timeout_seconds must be positive")
	}
	q := c.Queue
	if q.Payment.BasePriority <= 0 {
		return fmt.Errorf("config.queue.payment.base_priority must be positive")
	}
	if q.Payment.UrgencyStepHours <= 0 {
		return fmt.Errorf("config.queue.payment.urgency_step_hours must be positive")
	}
	if q.Payment.MinPriority <= 0 || q.Payment.MinPriority > q.Payment.BasePriority {
		return fmt.Errorf("config.queue.payment.min_priority must be in [1, base_priority]")
	}
	if q.Shipment.Priority <= 0 {
		return fmt.Errorf("config.queue.shipment.priority must be positive")
	}
	if q.Shipment.OverdueAfterHours <= 0 {
		return fmt.Errorf("config.queue.shipment.overdue_after_hours must be positive")
	}
	if q.Shipment.OverduePriority <= 0 || q.Shipment.OverduePriority >= q.Shipment.Priority {
		return fmt.Errorf("config.queue.shipment.overdue_priority must be positive and more urgent than the routine priority")
	}
	if q.Auction.Priority <= 0 {
		return fmt.Errorf("config.queue.auction.priority must be positive")
	}
	if q.Auction.Priority >= q.Shipment.Priority {
		return fmt.Errorf("config.queue.auction.priority must outrank routine shipments; settlement blocks payment collection")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "greendesk.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct pointed at baseURL.
func Default(baseURL string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(baseURL)))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `marketplace:
  base_url: %s
  api_key: ""
  timeout_seconds: 10

queue:
  payment:
    # Payment tasks start at base_priority and gain one step of urgency per
    # urgency_step_hours elapsed since placement, down to min_priority.
    base_priority: 8
    urgency_step_hours: 24
    min_priority: 4

  shipment:
    priority: 5
    overdue_after_hours: 48
    overdue_priority: 2

  auction:
    # Must outrank routine shipments: an unsettled winner blocks the buyer's
    # payment, which blocks everything downstream.
    priority: 3
`
