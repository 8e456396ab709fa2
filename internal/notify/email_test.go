package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeSendGrid struct {
	status int
	err    error
	sent   []*mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, email)
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	err   error
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil); sender != nil {
		t.Fatal("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != defaultFromName {
		t.Fatalf("expected default from name %q, got %q", defaultFromName, sender.fromName)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	sender := newSendGridSenderWithClient(client, SendGridConfig{FromEmail: "hello@example.com"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "Hi", Body: "Body"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(client.sent))
	}
	if client.sent[0].Subject != "Hi" {
		t.Fatalf("unexpected subject %q", client.sent[0].Subject)
	}
}

func TestSendGridSender_Send_ErrorStatus(t *testing.T) {
	sender := newSendGridSenderWithClient(&fakeSendGrid{status: 401}, SendGridConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@example.com"}); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if err := sender.Send(context.Background(), EmailMessage{To: "a@example.com"}); err == nil {
		t.Fatal("expected error when client is nil")
	}
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "hello@example.com", FromName: "Outlet"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "Hi", Body: "text", HTML: "<p>text</p>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := aws.ToString(client.input.FromEmailAddress); got != "Outlet <hello@example.com>" {
		t.Fatalf("unexpected from address %q", got)
	}
	body := client.input.Content.Simple.Body
	if body.Text == nil || body.Html == nil {
		t.Fatalf("expected both text and html bodies")
	}
}

func TestSESSender_Send_Error(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@example.com"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSESSender_NilClient(t *testing.T) {
	if sender := NewSESSender(nil, SESConfig{}, nil); sender != nil {
		t.Fatal("expected nil sender for nil client")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@example.com"}); err != nil {
		t.Fatalf("stub sender should not return error, got: %v", err)
	}
}
