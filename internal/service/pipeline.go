package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"telerelay/internal/constants"
	"telerelay/internal/errors"
	"telerelay/internal/metrics"
	"telerelay/internal/models"
	"telerelay/internal/tracing"
	sendertypes "telerelay/pkg/sender/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// sentinelEnvelopeID marks the shutdown envelope pushed by Stop. The
// consumer drains everything queued before it, then exits.
const sentinelEnvelopeID = "__shutdown__"

// Pipeline is the single consumer of the ingestion queue. It re-checks
// each envelope's rule against the store, applies extraction and
// decoration, and dispatches to the sender. Delivery is at-most-once:
// a failed send gets one plain-text downgrade retry, then the envelope
// is discarded.
type Pipeline struct {
	queue           *ingestQueue
	store           Store
	sender          sendertypes.Client
	logger          *logrus.Logger
	shutdownTimeout time.Duration

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewPipeline(store Store, sender sendertypes.Client, logger *logrus.Logger, shutdownTimeout time.Duration) *Pipeline {
	if shutdownTimeout <= 0 {
		shutdownTimeout = time.Duration(constants.DefaultQueueShutdownTimeoutSec) * time.Second
	}
	return &Pipeline{
		queue:           newIngestQueue(),
		store:           store,
		sender:          sender,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Enqueue accepts one captured envelope. Never blocks; safe to call
// from transport event callbacks.
func (p *Pipeline) Enqueue(env models.MessageEnvelope) {
	p.queue.push(env)
	metrics.IncrementCounter("relay.enqueued", map[string]string{"kind": string(env.Payload.Kind)}, "Envelopes accepted into the ingestion queue")
	metrics.SetGauge("relay.queue.depth", float64(p.queue.len()), nil, "Current ingestion queue depth")
}

// Start launches the consumer loop.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("Relay pipeline is already running")
		return
	}
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	// The consumer must outlive the caller's context: envelopes still
	// queued when the process is signalled are drained by Stop's
	// sentinel, not abandoned against a cancelled context.
	go p.consumeLoop(context.WithoutCancel(ctx))
	p.logger.Info("Relay pipeline started")
}

// Stop pushes the shutdown sentinel and waits for the consumer to
// drain everything queued before it, up to the shutdown timeout.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	done := p.done
	p.mu.Unlock()

	p.queue.push(models.MessageEnvelope{ID: sentinelEnvelopeID})

	select {
	case <-done:
		p.logger.Info("Relay pipeline drained")
	case <-time.After(p.shutdownTimeout):
		p.logger.Warn("Relay pipeline drain timed out, abandoning consumer")
	}
}

func (p *Pipeline) consumeLoop(ctx context.Context) {
	defer close(p.done)

	for {
		env, ok := p.queue.pop(ctx)
		if !ok {
			return
		}
		if env.ID == sentinelEnvelopeID {
			return
		}
		p.processEnvelope(ctx, env)
	}
}

func (p *Pipeline) processEnvelope(ctx context.Context, env models.MessageEnvelope) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.process",
		attribute.Int64("user.id", env.UserID),
		attribute.Int64("rule.id", env.RuleID),
		attribute.String("payload.kind", string(env.Payload.Kind)),
	)
	defer span.End()

	log := p.logger.WithFields(logrus.Fields{
		"envelopeId": env.ID,
		"userId":     env.UserID,
		"ruleId":     env.RuleID,
	})

	// The rule may have been deleted or deactivated while the envelope
	// sat in the queue.
	rule, err := p.store.GetRule(ctx, env.RuleID)
	if err != nil {
		tracing.RecordError(ctx, err)
		log.WithError(err).Error("Failed to look up rule, dropping envelope")
		return
	}
	if rule == nil || !rule.Active || rule.UserID != env.UserID {
		metrics.IncrementCounter("relay.dropped.stale", nil, "Envelopes dropped because their rule was gone or inactive")
		log.Debug("Rule gone or inactive, dropping envelope")
		return
	}

	content, ok := p.extract(rule, env.Payload.Text, log)
	if !ok {
		return
	}

	body := Compose(rule, content)
	if env.Payload.IsText() && strings.TrimSpace(body) == "" {
		metrics.IncrementCounter("relay.dropped.empty", nil, "Text envelopes dropped because composition produced nothing to send")
		log.Debug("Composed text is empty, dropping envelope")
		return
	}

	if err := p.dispatch(ctx, env, rule, body); err != nil {
		tracing.RecordError(ctx, err)
		log.WithError(err).Warn("Delivery failed, retrying as bare plain text")

		if err := p.downgrade(ctx, env, content, body); err != nil {
			metrics.IncrementCounter("relay.delivery.dropped", nil, "Envelopes discarded after the downgrade retry failed")
			log.WithError(err).Error("Downgrade delivery failed, discarding envelope")
			return
		}
		metrics.IncrementCounter("relay.delivery.downgraded", nil, "Deliveries that succeeded only as bare plain text")
	}

	metrics.IncrementCounter("relay.delivered", map[string]string{"kind": string(env.Payload.Kind)}, "Envelopes delivered to the sender")
	if err := p.store.TouchUserActivity(ctx, env.UserID); err != nil {
		log.WithError(err).Debug("Failed to refresh user activity timestamp")
	}
}

// extract applies the rule's pattern. Zero matches filter the message
// out entirely; an uncompilable pattern degrades to the raw text.
func (p *Pipeline) extract(rule *models.ForwardingRule, text string, log *logrus.Entry) (string, bool) {
	content, matched, err := ExtractContent(rule.ExtractPattern, text)
	if err != nil {
		metrics.IncrementCounter("relay.pattern.invalid", nil, "Envelopes relayed unmodified because the pattern failed to compile")
		log.WithError(err).Warn("Extraction pattern invalid, relaying original content")
		return text, true
	}
	if !matched {
		metrics.IncrementCounter("relay.pattern.dropped", nil, "Envelopes dropped because the extraction pattern matched nothing")
		log.Debug("Extraction pattern matched nothing, dropping envelope")
		return "", false
	}
	return content, true
}

func (p *Pipeline) dispatch(ctx context.Context, env models.MessageEnvelope, rule *models.ForwardingRule, body string) error {
	var button *sendertypes.Button
	if rule.HasButton() {
		button = &sendertypes.Button{Label: rule.ButtonLabel, URL: rule.ButtonURL}
	}

	target := env.TargetChatID
	payload := env.Payload

	if payload.IsText() {
		_, err := p.sender.SendText(ctx, target, body, button)
		return err
	}

	if payload.Media == nil {
		return errors.New(errors.ErrCodeInternalError, "media payload without media reference")
	}
	fileID := payload.Media.FileID

	switch payload.Kind {
	case models.MediaKindPhoto:
		_, err := p.sender.SendPhoto(ctx, target, fileID, body, button)
		return err
	case models.MediaKindVideo:
		_, err := p.sender.SendVideo(ctx, target, fileID, body, button)
		return err
	case models.MediaKindDocument:
		_, err := p.sender.SendDocument(ctx, target, fileID, body, button)
		return err
	case models.MediaKindAudio:
		_, err := p.sender.SendAudio(ctx, target, fileID, body, button)
		return err
	case models.MediaKindVoice:
		_, err := p.sender.SendVoice(ctx, target, fileID, body, button)
		return err
	case models.MediaKindSticker:
		// Stickers cannot carry captions; decorated text follows as a
		// separate message.
		if _, err := p.sender.SendSticker(ctx, target, fileID); err != nil {
			return err
		}
		if body != "" {
			_, err := p.sender.SendText(ctx, target, body, button)
			return err
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInternalError, "unknown media kind: "+string(payload.Kind))
	}
}

// downgrade is the single best-effort retry: a bare text send without
// media, decoration, or button.
func (p *Pipeline) downgrade(ctx context.Context, env models.MessageEnvelope, content, body string) error {
	text := content
	if text == "" {
		text = body
	}
	if text == "" {
		return errors.New(errors.ErrCodeDeliveryFailed, "nothing to downgrade to plain text")
	}

	_, err := p.sender.SendText(ctx, env.TargetChatID, text, nil)
	return err
}
