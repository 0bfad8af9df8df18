package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/wolfman30/vetclinic-platform/internal/directory"
)

type fakeEmailSender struct {
	sent []EmailMessage
	err  error
}

func (f *fakeEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type sentText struct {
	channel Channel
	to      string
	body    string
}

type fakeTextSender struct {
	texts []sentText
	calls []sentText
	err   error
}

func (f *fakeTextSender) SendText(ctx context.Context, channel Channel, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, sentText{channel: channel, to: to, body: body})
	return nil
}

func (f *fakeTextSender) Call(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sentText{channel: ChannelVoice, to: to, body: body})
	return nil
}

func fullRecipient() directory.Recipient {
	return directory.Recipient{
		Name:     "Jamie Alvarez",
		Email:    "jamie@example.com",
		Phone:    "+15550001111",
		WhatsApp: "+15550002222",
	}
}

func TestDispatcherRoutesEmail(t *testing.T) {
	email := &fakeEmailSender{}
	texts := &fakeTextSender{}
	d := NewDispatcher(email, texts, 0, nil, nil)

	msg := Message{Subject: "Appointment reminder", Body: "See you at 9:00"}
	if err := d.Send(context.Background(), fullRecipient(), ChannelEmail, msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	got := email.sent[0]
	if got.To != "jamie@example.com" || got.ToName != "Jamie Alvarez" {
		t.Errorf("unexpected addressing: %+v", got)
	}
	if got.Subject != "Appointment reminder" || got.Body != "See you at 9:00" {
		t.Errorf("unexpected content: %+v", got)
	}
	if len(texts.texts) != 0 || len(texts.calls) != 0 {
		t.Error("text sender should not have been used")
	}
}

func TestDispatcherRoutesSMS(t *testing.T) {
	texts := &fakeTextSender{}
	d := NewDispatcher(&fakeEmailSender{}, texts, 0, nil, nil)

	if err := d.Send(context.Background(), fullRecipient(), ChannelSMS, Message{Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(texts.texts) != 1 {
		t.Fatalf("expected 1 text, got %d", len(texts.texts))
	}
	got := texts.texts[0]
	if got.channel != ChannelSMS || got.to != "+15550001111" || got.body != "hi" {
		t.Errorf("unexpected text: %+v", got)
	}
}

func TestDispatcherWhatsAppPrefersWhatsAppNumber(t *testing.T) {
	texts := &fakeTextSender{}
	d := NewDispatcher(&fakeEmailSender{}, texts, 0, nil, nil)

	if err := d.Send(context.Background(), fullRecipient(), ChannelWhatsApp, Message{Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := texts.texts[0].to; got != "+15550002222" {
		t.Errorf("expected whatsapp number, got %s", got)
	}
}

func TestDispatcherWhatsAppFallsBackToPhone(t *testing.T) {
	texts := &fakeTextSender{}
	d := NewDispatcher(&fakeEmailSender{}, texts, 0, nil, nil)

	rec := fullRecipient()
	rec.WhatsApp = ""
	if err := d.Send(context.Background(), rec, ChannelWhatsApp, Message{Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := texts.texts[0].to; got != "+15550001111" {
		t.Errorf("expected phone fallback, got %s", got)
	}
}

func TestDispatcherVoiceUsesCall(t *testing.T) {
	texts := &fakeTextSender{}
	d := NewDispatcher(&fakeEmailSender{}, texts, 0, nil, nil)

	if err := d.Send(context.Background(), fullRecipient(), ChannelVoice, Message{Body: "your pet is due"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(texts.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(texts.calls))
	}
	if got := texts.calls[0]; got.to != "+15550001111" || got.body != "your pet is due" {
		t.Errorf("unexpected call: %+v", got)
	}
}

func TestDispatcherMissingAddress(t *testing.T) {
	d := NewDispatcher(&fakeEmailSender{}, &fakeTextSender{}, 0, nil, nil)

	rec := fullRecipient()
	rec.Email = ""
	err := d.Send(context.Background(), rec, ChannelEmail, Message{Body: "hi"})
	if err == nil {
		t.Fatal("expected error for missing email address")
	}
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if te.Channel != ChannelEmail {
		t.Errorf("expected email channel on error, got %s", te.Channel)
	}
}

func TestDispatcherWrapsSenderFailure(t *testing.T) {
	cause := errors.New("provider down")
	d := NewDispatcher(&fakeEmailSender{err: cause}, &fakeTextSender{}, 0, nil, nil)

	err := d.Send(context.Background(), fullRecipient(), ChannelEmail, Message{Body: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if te.Channel != ChannelEmail {
		t.Errorf("expected email channel, got %s", te.Channel)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
}

func TestDispatcherUnknownChannel(t *testing.T) {
	d := NewDispatcher(&fakeEmailSender{}, &fakeTextSender{}, 0, nil, nil)

	err := d.Send(context.Background(), fullRecipient(), Channel("pigeon"), Message{Body: "hi"})
	if err == nil {
		t.Fatal("expected error for unknown channel")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T", err)
	}
}

func TestDispatcherUnconfiguredSenders(t *testing.T) {
	d := NewDispatcher(nil, nil, 0, nil, nil)

	for _, ch := range []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelVoice} {
		err := d.Send(context.Background(), fullRecipient(), ch, Message{Body: "hi"})
		if err == nil {
			t.Errorf("expected error for unconfigured %s sender", ch)
			continue
		}
		var te *TransportError
		if !errors.As(err, &te) {
			t.Errorf("%s: expected TransportError, got %T", ch, err)
		}
	}
}

func TestValidChannel(t *testing.T) {
	for _, ch := range []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelVoice} {
		if !ValidChannel(ch) {
			t.Errorf("expected %s to be valid", ch)
		}
	}
	if ValidChannel(Channel("pigeon")) {
		t.Error("expected pigeon to be invalid")
	}
}
