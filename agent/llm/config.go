package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	openaicompatx "github.com/tanpawarit/chative-fintech-support/pkg/openaicompat"
)

// Role names a model consumer: the dispatcher or one specialist intent.
type Role string

const RoleDispatcher Role = "dispatcher"

func RoleFor(intent contractx.Intent) Role {
	return Role(intent)
}

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
	MaxToolRounds      int           `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"4"`

	DispatcherModel       string  `envconfig:"DISPATCHER_MODEL" split_words:"true"`
	InfoModel             string  `envconfig:"INFO_MODEL" split_words:"true"`
	PaymentModel          string  `envconfig:"PAYMENT_MODEL" split_words:"true"`
	ComplianceModel       string  `envconfig:"COMPLIANCE_MODEL" split_words:"true"`
	DispatcherTemperature float32 `envconfig:"DISPATCHER_TEMPERATURE" split_words:"true" default:"0"`
	InfoTemperature       float32 `envconfig:"INFO_TEMPERATURE" split_words:"true" default:"-1"`
	PaymentTemperature    float32 `envconfig:"PAYMENT_TEMPERATURE" split_words:"true" default:"-1"`
	ComplianceTemperature float32 `envconfig:"COMPLIANCE_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrNotConfigured)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) ModelFor(role Role) openaicompatx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(name string, t float32) {
		if v := strings.TrimSpace(name); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch role {
	case RoleDispatcher:
		override(c.DispatcherModel, c.DispatcherTemperature)
	case RoleFor(contractx.IntentInfo):
		override(c.InfoModel, c.InfoTemperature)
	case RoleFor(contractx.IntentPayment):
		override(c.PaymentModel, c.PaymentTemperature)
	case RoleFor(contractx.IntentCompliance):
		override(c.ComplianceModel, c.ComplianceTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openaicompatx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// Client returns the provider settings shared by the non-chat endpoints.
func (c Config) Client() openaicompatx.Config {
	return c.ModelFor("")
}
