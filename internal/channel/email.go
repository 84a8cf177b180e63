package channel

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"golang.org/x/time/rate"
	mail "gopkg.in/gomail.v2"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESTransport delivers email through AWS SES.
type SESTransport struct {
	client  SESAPI
	from    string
	limiter *rate.Limiter
}

// NewSESClient loads AWS config for region, using static credentials when
// both keys are set and the default chain otherwise.
func NewSESClient(ctx context.Context, region, accessKey, secretKey string) (*sesv2.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(cfg), nil
}

// NewSESTransport sends as "fromName <from>".
func NewSESTransport(client SESAPI, from, fromName string, ratePerSec int) *SESTransport {
	t := &SESTransport{client: client, from: formatFrom(from, fromName)}
	if ratePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return t
}

func (t *SESTransport) Deliver(ctx context.Context, r *domain.Recipient, content *Content) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(t.from),
		Destination:      &types.Destination{ToAddresses: []string{r.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(content.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(content.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("recipient_id"), Value: aws.String(r.ID)},
		},
	}
	if _, err := t.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPTransport delivers email over SMTP.
type SMTPTransport struct {
	dialer  Dialer
	from    string
	limiter *rate.Limiter
}

// NewSMTPDialer builds a gomail dialer for host:port.
func NewSMTPDialer(host string, port int, user, pass string) *mail.Dialer {
	return mail.NewDialer(host, port, user, pass)
}

func NewSMTPTransport(dialer Dialer, from, fromName string, ratePerSec int) *SMTPTransport {
	t := &SMTPTransport{dialer: dialer, from: formatFrom(from, fromName)}
	if ratePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return t
}

func (t *SMTPTransport) Deliver(ctx context.Context, r *domain.Recipient, content *Content) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", r.Email)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/html", content.Body)
	if err := t.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func formatFrom(addr, name string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}
