package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-booking-agent/internal/catalog"
	"github.com/wolfman30/whatsapp-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-booking-agent/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Status is how an inbound message was handled.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusDuplicate Status = "duplicate"
	StatusHeld      Status = "held"
)

// InboundMessage is a customer message delivered by the CRM webhook.
type InboundMessage struct {
	Phone          string
	Text           string
	ContactID      string
	ConversationID string
	// MessageID identifies the delivery; redeliveries carry the same id.
	MessageID string
}

// Result is what the webhook reports back to the CRM.
type Result struct {
	Status    Status
	Response  string
	NextStep  Step
	ContactID string
}

// Custom field names synced to the CRM after every message.
const (
	FieldBookingStep         = "booking_step"
	FieldLanguage            = "language"
	FieldConversationStarted = "conversation_started"
	FieldLastInteraction     = "last_interaction"
)

// OrchestratorConfig wires the orchestrator.
type OrchestratorConfig struct {
	Machine  *Machine
	Triage   *Triage
	Catalog  *catalog.Catalog
	Profiles ProfileStore
	Contacts ContactService
	Sender   Sender
	History  HistoryStore
	Locker   Locker
	Metrics  *metrics.ConversationMetrics
	Logger   *logging.Logger
	// Timeout bounds each collaborator call.
	Timeout time.Duration
	// SyncContactFields pushes step and language to the CRM contact.
	SyncContactFields bool
	Now               func() time.Time
}

// Orchestrator handles one inbound message end to end: one load, one
// machine step, one persist, one send.
type Orchestrator struct {
	machine   *Machine
	triage    *Triage
	catalog   *catalog.Catalog
	profiles  ProfileStore
	contacts  ContactService
	sender    Sender
	history   HistoryStore
	locker    Locker
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	timeout   time.Duration
	syncField bool
	now       func() time.Time
}

const defaultCollaboratorTimeout = 10 * time.Second

// NewOrchestrator validates cfg. History, Locker and Triage are optional.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Machine == nil {
		panic("conversation: machine cannot be nil")
	}
	if cfg.Catalog == nil {
		panic("conversation: catalog cannot be nil")
	}
	if cfg.Profiles == nil {
		panic("conversation: profile store cannot be nil")
	}
	if cfg.Contacts == nil {
		panic("conversation: contact service cannot be nil")
	}
	if cfg.Sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if cfg.Locker == nil {
		cfg.Locker = NewMemoryLocker()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCollaboratorTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		machine:   cfg.Machine,
		triage:    cfg.Triage,
		catalog:   cfg.Catalog,
		profiles:  cfg.Profiles,
		contacts:  cfg.Contacts,
		sender:    cfg.Sender,
		history:   cfg.History,
		locker:    cfg.Locker,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		timeout:   cfg.Timeout,
		syncField: cfg.SyncContactFields,
		now:       cfg.Now,
	}
}

// Handle processes msg. Collaborator failures return a held Result together
// with an error wrapping ErrCollaborator; no partial profile is written.
func (o *Orchestrator) Handle(ctx context.Context, msg InboundMessage) (Result, error) {
	msg.Phone = strings.TrimSpace(msg.Phone)
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Phone == "" {
		return Result{}, ErrInvalidMessage
	}

	release, err := o.locker.Lock(ctx, msg.Phone)
	if err != nil {
		return o.hold(ctx, nil, msg, collaboratorError("lock contact", err), true)
	}
	defer release()

	contactID := strings.TrimSpace(msg.ContactID)
	if contactID == "" {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		contact, err := o.contacts.FindOrCreateContact(callCtx, msg.Phone)
		cancel()
		if err != nil {
			return o.hold(ctx, nil, msg, collaboratorError("find contact", err), true)
		}
		contactID = contact.ID
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	profile, err := o.profiles.Get(callCtx, contactID)
	cancel()
	switch {
	case errors.Is(err, ErrProfileNotFound):
		profile = NewProfile(contactID, msg.Phone, o.now())
	case err != nil:
		return o.hold(ctx, &Profile{ContactID: contactID, Phone: msg.Phone}, msg, collaboratorError("load profile", err), true)
	}
	if profile.Phone == "" {
		profile.Phone = msg.Phone
	}

	if msg.MessageID != "" && profile.LastMessageID == msg.MessageID {
		return o.replay(ctx, profile, msg)
	}

	in := Input{Message: msg.Text, Profile: *profile}
	transition, spam, err := o.triage.Check(in)
	if err != nil {
		return o.hold(ctx, profile, msg, err, true)
	}
	if spam {
		o.metrics.ObserveSpam()
	} else {
		// Booking writes must not be torn by a cancelled webhook.
		stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*o.timeout)
		transition, err = o.machine.Step(stepCtx, in)
		cancel()
		if err != nil {
			return o.hold(ctx, profile, msg, err, true)
		}
	}

	next := profile.Advance(transition, o.now())
	next.LastMessageID = msg.MessageID

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	err = o.profiles.Upsert(writeCtx, &next)
	cancel()
	if err != nil {
		return o.hold(ctx, profile, msg, collaboratorError("persist profile", err), true)
	}

	o.observe(profile.Step, next, transition)

	result := Result{
		Status:    StatusProcessed,
		Response:  transition.Response,
		NextStep:  next.Step,
		ContactID: contactID,
	}

	if err := o.send(ctx, next, transition.Response); err != nil {
		// The persisted step stands; a redelivery replays the response.
		return o.hold(ctx, &next, msg, collaboratorError("send reply", err), false)
	}

	o.afterSend(ctx, *profile, next, msg.Text)
	o.metrics.ObserveInbound(string(StatusProcessed))
	return result, nil
}

// replay answers a redelivered message with the stored response without
// running the machine again.
func (o *Orchestrator) replay(ctx context.Context, profile *Profile, msg InboundMessage) (Result, error) {
	o.logger.Info("duplicate webhook delivery", "contact_id", profile.ContactID, "message_id", msg.MessageID)
	result := Result{
		Status:    StatusDuplicate,
		Response:  profile.LastResponse,
		NextStep:  profile.Step,
		ContactID: profile.ContactID,
	}
	if profile.LastResponse != "" {
		if err := o.send(ctx, *profile, profile.LastResponse); err != nil {
			return o.hold(ctx, profile, msg, collaboratorError("send reply", err), false)
		}
	}
	o.metrics.ObserveInbound(string(StatusDuplicate))
	return result, nil
}

func (o *Orchestrator) send(ctx context.Context, profile Profile, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	return o.sender.Send(sendCtx, OutboundMessage{
		ContactID: profile.ContactID,
		Phone:     profile.Phone,
		Text:      text,
	})
}

// afterSend records history and syncs CRM fields. Both are best effort.
func (o *Orchestrator) afterSend(ctx context.Context, prev, next Profile, inbound string) {
	base := context.WithoutCancel(ctx)
	var g errgroup.Group

	if o.history != nil {
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(base, o.timeout)
			defer cancel()
			now := next.LastInteraction
			err := o.history.Append(hctx, next.ContactID,
				HistoryEntry{Direction: DirectionInbound, Text: inbound, Step: prev.Step, At: now},
				HistoryEntry{Direction: DirectionOutbound, Text: next.LastResponse, Step: next.Step, At: now},
			)
			if err != nil {
				o.logger.Warn("history append failed", "contact_id", next.ContactID, "error", err)
			}
			return nil
		})
	}

	if o.syncField {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(base, o.timeout)
			defer cancel()
			if _, err := o.contacts.UpsertContact(sctx, contactFieldUpdate(next)); err != nil {
				o.logger.Warn("contact field sync failed", "contact_id", next.ContactID, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

func contactFieldUpdate(p Profile) ContactUpdate {
	fields := map[string]string{
		FieldBookingStep:         string(p.Step),
		FieldLanguage:            string(p.Language.OrDefault()),
		FieldConversationStarted: p.ConversationStarted.Format(time.RFC3339),
		FieldLastInteraction:     p.LastInteraction.Format(time.RFC3339),
	}
	if p.CustomerPainPoint != "" {
		fields[FieldPainPoint] = p.CustomerPainPoint
	}
	if p.CustomerEmail != "" {
		fields[FieldEmail] = p.CustomerEmail
	}
	if p.CustomerBudget != nil {
		fields[FieldBudget] = strconv.FormatFloat(*p.CustomerBudget, 'f', -1, 64)
	}
	return ContactUpdate{ContactID: p.ContactID, CustomFields: fields}
}

func (o *Orchestrator) observe(from Step, next Profile, t Transition) {
	if from != next.Step {
		o.metrics.ObserveTransition(string(from), string(next.Step))
	}
	if t.Retry {
		o.metrics.ObserveRetry(string(from))
	}
	if t.Booked && next.BookingResult != nil {
		o.metrics.ObserveBooking(next.BookingResult.Success)
	}
}

// hold logs cause and answers with the hold template. When notify is set
// the hold text is also sent to the customer on a best-effort basis.
func (o *Orchestrator) hold(ctx context.Context, profile *Profile, msg InboundMessage, cause error, notify bool) (Result, error) {
	result := Result{Status: StatusHeld}
	lang := LanguageEnglish
	if profile != nil {
		result.ContactID = profile.ContactID
		result.NextStep = profile.Step
		lang = profile.Language.OrDefault()
	}
	o.logger.Error("message held", "phone", msg.Phone, "contact_id", result.ContactID, "error", cause)
	o.metrics.ObserveInbound(string(StatusHeld))

	text, err := o.catalog.Render(catalog.KeyHold, string(lang), nil)
	if err != nil {
		o.logger.Error("render hold template", "error", err)
	}
	result.Response = text

	if notify && text != "" {
		target := Profile{Phone: msg.Phone}
		if profile != nil {
			target.ContactID = profile.ContactID
		}
		if err := o.send(ctx, target, text); err != nil {
			o.logger.Warn("hold notice not delivered", "phone", msg.Phone, "error", err)
		}
	}
	return result, cause
}
