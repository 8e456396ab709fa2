package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/wolfman30/whatsapp-booking-agent/internal/conversation"
	"github.com/wolfman30/whatsapp-booking-agent/internal/ghl"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
)

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) Send(context.Context, conversation.OutboundMessage) error {
	s.calls++
	return s.err
}

type stubGHL struct {
	contactID, text string
	err             error
}

func (s *stubGHL) SendMessage(_ context.Context, contactID, text string) (ghl.MessageResult, error) {
	s.contactID, s.text = contactID, text
	return ghl.MessageResult{MessageID: "m-1"}, s.err
}

func TestFailoverUsesSecondaryOnError(t *testing.T) {
	primary := &stubSender{err: errors.New("down")}
	secondary := &stubSender{}
	f := NewFailoverSender(primary, "ghl", secondary, "twilio", logging.Discard())

	if err := f.Send(context.Background(), conversation.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("unexpected calls primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestFailoverSkipsSecondaryOnSuccess(t *testing.T) {
	primary := &stubSender{}
	secondary := &stubSender{}
	f := NewFailoverSender(primary, "ghl", secondary, "twilio", nil)
	if err := f.Send(context.Background(), conversation.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary must not be called")
	}
}

func TestFailoverBothFail(t *testing.T) {
	first := errors.New("ghl down")
	second := errors.New("twilio down")
	f := NewFailoverSender(&stubSender{err: first}, "ghl", &stubSender{err: second}, "twilio", logging.Discard())
	err := f.Send(context.Background(), conversation.OutboundMessage{})
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected both errors, got %v", err)
	}
}

func TestGHLSender(t *testing.T) {
	api := &stubGHL{}
	s := NewGHLSender(api, logging.Discard())
	if err := s.Send(context.Background(), conversation.OutboundMessage{ContactID: "c-1", Text: "hola"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.contactID != "c-1" || api.text != "hola" {
		t.Fatalf("unexpected call %+v", api)
	}
	if err := s.Send(context.Background(), conversation.OutboundMessage{Text: "x"}); err == nil {
		t.Fatal("expected error without contact id")
	}
}

func TestLogSenderRecords(t *testing.T) {
	s := NewLogSender(logging.Discard())
	_ = s.Send(context.Background(), conversation.OutboundMessage{ContactID: "c", Text: "one"})
	_ = s.Send(context.Background(), conversation.OutboundMessage{ContactID: "c", Text: "two"})
	if sent := s.Sent(); len(sent) != 2 || sent[1].Text != "two" {
		t.Fatalf("unexpected sent %+v", sent)
	}
}

func TestBuildSender(t *testing.T) {
	client, err := ghl.New(ghl.Config{APIKey: "k", LocationID: "l"})
	if err != nil {
		t.Fatalf("ghl client: %v", err)
	}
	twilio := ProviderSelectionConfig{TwilioAccountSID: "AC", TwilioAuthToken: "tok", TwilioFromNumber: "+1"}

	cases := []struct {
		name    string
		cfg     ProviderSelectionConfig
		wantErr bool
		check   func(conversation.Sender) bool
	}{
		{"default is ghl", ProviderSelectionConfig{GHL: client}, false, func(s conversation.Sender) bool { _, ok := s.(*GHLSender); return ok }},
		{"ghl missing client", ProviderSelectionConfig{Preference: ProviderGHL}, true, nil},
		{"log", ProviderSelectionConfig{Preference: ProviderLog}, false, func(s conversation.Sender) bool { _, ok := s.(*LogSender); return ok }},
		{"twilio", withPref(twilio, ProviderTwilio, nil), false, func(s conversation.Sender) bool { _, ok := s.(*TwilioWhatsAppSender); return ok }},
		{"twilio missing creds", ProviderSelectionConfig{Preference: ProviderTwilio}, true, nil},
		{"failover", withPref(twilio, ProviderFailover, client), false, func(s conversation.Sender) bool { _, ok := s.(*FailoverSender); return ok }},
		{"failover needs ghl", withPref(twilio, ProviderFailover, nil), true, nil},
		{"unknown", ProviderSelectionConfig{Preference: "pigeon"}, true, nil},
	}
	for _, tc := range cases {
		sender, err := BuildSender(tc.cfg, logging.Discard())
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.check(sender) {
			t.Fatalf("%s: unexpected sender %T", tc.name, sender)
		}
	}
}

func withPref(cfg ProviderSelectionConfig, pref string, client *ghl.Client) ProviderSelectionConfig {
	cfg.Preference = pref
	cfg.GHL = client
	return cfg
}
