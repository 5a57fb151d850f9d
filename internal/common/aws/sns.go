// internal/common/aws/sns.go
package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClient confirms the topic subscriptions that carry SES delivery events.
type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(cfg awssdk.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

// ConfirmSubscription answers an SNS SubscriptionConfirmation message.
func (s *SNSClient) ConfirmSubscription(ctx context.Context, topicARN, token string) (string, error) {
	out, err := s.client.ConfirmSubscription(ctx, &sns.ConfirmSubscriptionInput{
		TopicArn: awssdk.String(topicARN),
		Token:    awssdk.String(token),
	})
	if err != nil {
		return "", err
	}
	return awssdk.ToString(out.SubscriptionArn), nil
}
