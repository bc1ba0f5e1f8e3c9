// Package agent is the turn engine: it takes one utterance at a time,
// resolves it into a pipeline decision, enforces action preconditions, and
// appends every outcome to the conversation.
package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vidbot/internal/domain"
	"vidbot/internal/intent"
	"vidbot/internal/metrics"
	"vidbot/internal/store"
)

// User-facing texts. These are part of the conversational contract; tests pin
// them.
const (
	MsgUploadFirst    = "Upload a video first."
	MsgNoTranscript   = "No transcript."
	MsgTranscribing   = "Transcribing..."
	MsgDetecting      = "Detecting objects..."
	MsgTranscribeFail = "Transcription failed."
	MsgDetectFail     = "Object detection failed."
	MsgReportFail     = "Report generation failed."
	MsgUploadFail     = "Upload failed."
)

// Engine states. A turn transitions idle→busy on entry and busy→idle on
// completion, success or failure. Utterances arriving while busy queue FIFO
// on the turn mutex and the inbound bus.
type State int32

const (
	StateIdle State = iota
	StateBusy
)

// Orchestrator owns the session state: the conversation log and the single
// active asset reference. All mutations happen from the one running turn.
type Orchestrator struct {
	pipeline domain.Pipeline
	conv     *store.Conversation
	resolver *intent.Resolver
	bus      domain.MessageBus
	logger   *slog.Logger

	turnMu  sync.Mutex // serializes turns; waiters form the FIFO queue
	stateMu sync.RWMutex
	state   State

	assetMu sync.RWMutex
	asset   *domain.AssetRef
}

type Config struct {
	Pipeline     domain.Pipeline
	Conversation *store.Conversation
	Resolver     *intent.Resolver
	Bus          domain.MessageBus // optional; only needed for Run
	Logger       *slog.Logger
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		pipeline: cfg.Pipeline,
		conv:     cfg.Conversation,
		resolver: cfg.Resolver,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
}

// State returns the current engine state.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
	if s == StateBusy {
		metrics.EngineBusy.Set(1)
	} else {
		metrics.EngineBusy.Set(0)
	}
}

// Asset returns the active asset reference, if an upload has succeeded.
func (o *Orchestrator) Asset() (domain.AssetRef, bool) {
	o.assetMu.RLock()
	defer o.assetMu.RUnlock()
	if o.asset == nil {
		return domain.AssetRef{}, false
	}
	return *o.asset, true
}

// Run consumes utterances from the bus one at a time and routes each turn's
// assistant output back to the channel that sent it. Strictly serial: the
// bus buffer is the queue for anything arriving mid-turn.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("turn engine started")

	inbound := o.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("turn engine stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				o.logger.Info("inbound channel closed, turn engine stopping")
				return
			}
			turn := o.HandleUtterance(ctx, msg.Content)
			o.bus.SendOutbound(domain.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: replyText(turn),
			})
		}
	}
}

// replyText flattens a turn's assistant messages into one channel reply.
func replyText(turn []domain.Message) string {
	var parts []string
	for _, m := range turn {
		if m.Role == domain.RoleAssistant {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// HandleUtterance runs one full turn: append the user message, resolve the
// decision, append the clarification/acknowledgement, act on it. Returns the
// messages appended during the turn. Never returns an error: every failure
// ends up in the transcript as an assistant message.
func (o *Orchestrator) HandleUtterance(ctx context.Context, text string) []domain.Message {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	o.setState(StateBusy)
	defer o.setState(StateIdle)

	metrics.TurnsTotal.Inc()
	mark := o.conv.Len()

	o.conv.Append(ctx, domain.Message{Role: domain.RoleUser, Text: text})

	decision, message := o.resolver.Resolve(ctx, text)
	o.logger.Info("utterance resolved", "decision", string(decision))
	countDecision(decision)

	if message != "" {
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: message})
	}

	o.act(ctx, decision)
	return o.conv.Since(mark)
}

// Upload sends a media file to the pipeline and, on success, replaces the
// active asset. Serializes with turns since it mutates session state.
func (o *Orchestrator) Upload(ctx context.Context, filename string, data io.Reader) (domain.AssetRef, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	o.setState(StateBusy)
	defer o.setState(StateIdle)

	asset, err := o.pipeline.Upload(ctx, filename, data)
	if err != nil {
		o.logger.Warn("upload failed", "file", filename, "err", err)
		metrics.RemoteFailures.Inc()
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgUploadFail})
		return domain.AssetRef{}, err
	}

	o.assetMu.Lock()
	o.asset = &asset // overwrite, never merge
	o.assetMu.Unlock()

	metrics.UploadsTotal.Inc()
	o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "Uploaded " + asset.Name})
	return asset, nil
}

// act dispatches a resolved decision. Exhaustive over the closed decision
// set; anything unknown behaves like unresolved.
func (o *Orchestrator) act(ctx context.Context, decision domain.Decision) {
	if decision.IsAction() {
		asset, ok := o.Asset()
		if !ok {
			perr := &domain.PreconditionError{Action: decision}
			o.logger.Info("action rejected", "reason", perr.Error())
			metrics.PreconditionsTotal.Inc()
			o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgUploadFirst})
			return
		}

		switch decision {
		case domain.DecisionTranscribe:
			o.runTranscribe(ctx, asset)
		case domain.DecisionDetect:
			o.runDetect(ctx, asset)
		case domain.DecisionGeneratePDF:
			o.runGenerate(ctx, asset, domain.ReportPDF)
		case domain.DecisionGeneratePPTX:
			o.runGenerate(ctx, asset, domain.ReportPPTX)
		case domain.DecisionGenerateBoth:
			// Strictly sequential: the pptx call must not start before the
			// pdf outcome is in the transcript.
			o.runGenerate(ctx, asset, domain.ReportPDF)
			o.runGenerate(ctx, asset, domain.ReportPPTX)
		}
		return
	}

	switch decision {
	case domain.DecisionAskFormat, domain.DecisionUnresolved:
		// Clarification message only; terminal for this turn.
	default:
		o.logger.Warn("unhandled decision treated as unresolved", "decision", string(decision))
	}
}

func (o *Orchestrator) runTranscribe(ctx context.Context, asset domain.AssetRef) {
	o.conv.Append(ctx, domain.Message{Role: domain.RoleUser, Text: MsgTranscribing})

	transcript, err := o.pipeline.Transcribe(ctx, asset)
	if err != nil {
		o.logger.Warn("transcribe failed", "asset", asset.Name, "err", err)
		metrics.RemoteFailures.Inc()
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgTranscribeFail})
		return
	}
	if transcript == "" {
		transcript = MsgNoTranscript
	}
	o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: transcript})
}

func (o *Orchestrator) runDetect(ctx context.Context, asset domain.AssetRef) {
	o.conv.Append(ctx, domain.Message{Role: domain.RoleUser, Text: MsgDetecting})

	objects, err := o.pipeline.Detect(ctx, asset)
	if err != nil {
		o.logger.Warn("detect failed", "asset", asset.Name, "err", err)
		metrics.RemoteFailures.Inc()
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgDetectFail})
		return
	}
	if objects == nil {
		objects = []string{}
	}
	serialized, err := json.Marshal(objects)
	if err != nil {
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgDetectFail})
		return
	}
	o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: string(serialized)})
}

func (o *Orchestrator) runGenerate(ctx context.Context, asset domain.AssetRef, kind domain.ReportKind) {
	start := "Generating " + strings.ToUpper(string(kind)) + " report..."
	o.conv.Append(ctx, domain.Message{Role: domain.RoleUser, Text: start})

	began := time.Now()
	path, err := o.pipeline.Generate(ctx, asset, kind)
	if err != nil {
		o.logger.Warn("generate failed", "asset", asset.Name, "kind", string(kind), "err", err)
		metrics.RemoteFailures.Inc()
		o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: MsgReportFail})
		return
	}

	metrics.ReportsTotal.Inc()
	o.logger.Info("report ready", "kind", string(kind), "path", path, "took", time.Since(began))
	o.conv.Append(ctx, domain.Message{Role: domain.RoleAssistant, Text: "Report ready: " + path})
}

func countDecision(d domain.Decision) {
	switch d {
	case domain.DecisionTranscribe:
		metrics.DecisionTranscribe.Inc()
	case domain.DecisionDetect:
		metrics.DecisionDetect.Inc()
	case domain.DecisionGeneratePDF, domain.DecisionGeneratePPTX, domain.DecisionGenerateBoth:
		metrics.DecisionGenerate.Inc()
	case domain.DecisionAskFormat:
		metrics.DecisionAskFormat.Inc()
	default:
		metrics.DecisionUnresolved.Inc()
	}
}
