package tenant

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	"gopkg.in/yaml.v3"
)

//go:embed solimi.yaml
var defaultRaw []byte

type Tone string

const (
	ToneFormal     Tone = "formal"
	ToneFriendly   Tone = "friendly"
	ToneEmpathetic Tone = "empathetic"
	ToneDirect     Tone = "direct"
)

const (
	DefaultTone     = ToneFormal
	DefaultLanguage = "Français"
	DefaultTimezone = "Africa/Abidjan"
)

// Config is the per-deployment business configuration. It is loaded once and
// never mutated afterwards.
type Config struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Industry      string  `yaml:"industry"`
	Tone          Tone    `yaml:"tone"`
	Language      string  `yaml:"language"`
	Timezone      string  `yaml:"timezone"`
	BusinessRules string  `yaml:"business_rules"`
	Modules       Modules `yaml:"modules"`
}

type Modules struct {
	Support    SupportModule     `yaml:"support"`
	Payment    *PaymentModule    `yaml:"payment,omitempty"`
	Compliance *ComplianceModule `yaml:"compliance,omitempty"`
}

type SupportModule struct {
	Enabled   bool `yaml:"enabled"`
	AutoReply bool `yaml:"auto_reply"`
}

type PaymentModule struct {
	Enabled   bool                `yaml:"enabled"`
	Providers []MobileMoneyConfig `yaml:"providers"`
}

type MobileMoneyConfig struct {
	Provider      string `yaml:"provider"`
	USSDCodeCheck string `yaml:"ussd_code_check,omitempty"`
	Fees          *Fees  `yaml:"fees,omitempty"`
}

type Fees struct {
	Deposit  string `yaml:"deposit"`
	Withdraw string `yaml:"withdraw"`
}

type ComplianceModule struct {
	Enabled            bool     `yaml:"enabled"`
	KYCRequired        bool     `yaml:"kyc_required"`
	FraudAlertKeywords []string `yaml:"fraud_alert_keywords"`
}

// Default returns the embedded Solimi Pay tenant.
func Default() Config {
	cfg, err := Parse(defaultRaw)
	if err != nil {
		panic(fmt.Sprintf("embedded tenant is invalid: %v", err))
	}
	return cfg
}

// Load reads a tenant file. An empty path selects the embedded default.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read tenant file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode tenant: %v", contractx.ErrValidation, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = c.ID
	}
	switch c.Tone {
	case ToneFormal, ToneFriendly, ToneEmpathetic, ToneDirect:
	default:
		c.Tone = DefaultTone
	}
	if strings.TrimSpace(c.Language) == "" {
		c.Language = DefaultLanguage
	}
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
}

func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: tenant id is required", contractx.ErrValidation)
	}
	if c.PaymentEnabled() {
		for i, p := range c.Modules.Payment.Providers {
			if strings.TrimSpace(p.Provider) == "" {
				return fmt.Errorf("%w: payment provider #%d has no name", contractx.ErrValidation, i)
			}
		}
	}
	return nil
}

func (c Config) PaymentEnabled() bool {
	return c.Modules.Payment != nil && c.Modules.Payment.Enabled
}

func (c Config) ComplianceEnabled() bool {
	return c.Modules.Compliance != nil && c.Modules.Compliance.Enabled
}

// Intents returns the specialist labels this tenant routes to. The info
// specialist is always present because it is the classification fallback.
func (c Config) Intents() []contractx.Intent {
	out := []contractx.Intent{contractx.IntentInfo}
	if c.PaymentEnabled() {
		out = append(out, contractx.IntentPayment)
	}
	if c.ComplianceEnabled() {
		out = append(out, contractx.IntentCompliance)
	}
	return out
}

func (c Config) Providers() []MobileMoneyConfig {
	if !c.PaymentEnabled() {
		return nil
	}
	return c.Modules.Payment.Providers
}

func (c Config) FraudKeywords() []string {
	if !c.ComplianceEnabled() {
		return nil
	}
	return c.Modules.Compliance.FraudAlertKeywords
}

// Provider looks a provider up by case-insensitive name.
func (c Config) Provider(name string) (MobileMoneyConfig, bool) {
	for _, p := range c.Providers() {
		if strings.EqualFold(strings.TrimSpace(p.Provider), strings.TrimSpace(name)) {
			return p, true
		}
	}
	return MobileMoneyConfig{}, false
}
