package awsx

import (
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// NewSQSClient returns an SQS client that talks to the host of queueURL,
// so a LocalStack queue works next to a MinIO bucket endpoint.
func NewSQSClient(cfg aws.Config, queueURL string) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if ep := QueueEndpoint(queueURL); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
	})
}

// QueueEndpoint returns scheme://host of queueURL, or "" when it is not an
// absolute URL.
func QueueEndpoint(queueURL string) string {
	u, err := url.Parse(queueURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
