package delivery

import (
	"context"
	"fmt"

	"notification-workers/internal/common/aws"
	"notification-workers/internal/common/config"
)

// NewProviderFromConfig builds the provider named by integrations.email.provider.
func NewProviderFromConfig(ctx context.Context, cfg config.IntegrationConfig) (Provider, error) {
	switch cfg.Email.Provider {
	case "", "ses":
		awsCfg, err := aws.LoadConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		return NewSESProvider(aws.NewSESClient(awsCfg), cfg.AWS.SES.ConfigurationSet), nil
	case "resend":
		if cfg.Resend.APIKey == "" {
			return nil, fmt.Errorf("resend api key is required")
		}
		return NewResendProviderFromKey(cfg.Resend.APIKey), nil
	default:
		return nil, fmt.Errorf("email provider %q is not supported", cfg.Email.Provider)
	}
}
