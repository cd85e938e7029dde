package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/dmitrijs2005/zkvault/internal/server/auth"
)

// sqsAPI is the part of *sqs.Client used here.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// envelopeValidity bounds how long a queued alert is accepted downstream.
const envelopeValidity = 24 * time.Hour

// SQSSender publishes each alert as a signed envelope to an SQS queue where a
// mail worker picks it up.
type SQSSender struct {
	client    sqsAPI
	queueURL  string
	secretKey []byte
}

type envelope struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

func NewSQSSender(client sqsAPI, queueURL string, secretKey []byte) *SQSSender {
	return &SQSSender{client: client, queueURL: queueURL, secretKey: secretKey}
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewSQSClient builds a client. A non-empty endpoint selects a local emulator
// with static dummy credentials.
func NewSQSClient(ctx context.Context, endpoint, region string) (*sqs.Client, error) {
	if endpoint != "" {
		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")),
		)
		if err != nil {
			return nil, err
		}
		return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}), nil
	}

	cfg, err := loadDefaultAWSConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}

func (s *SQSSender) Send(ctx context.Context, a Alert) error {
	token, err := auth.SignAlert(auth.AlertClaims{
		Kind:      string(a.Kind),
		Recipient: a.Recipient,
		Subject:   a.Subject,
		Body:      a.Body,
		Fields:    a.Fields,
	}, s.secretKey, envelopeValidity)
	if err != nil {
		return fmt.Errorf("sign alert: %w", err)
	}

	body, err := json.Marshal(envelope{Kind: string(a.Kind), Token: token})
	if err != nil {
		return err
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}
