// Package chat turns a chat request into a model call that carries the
// conversation context as a rendered image, and keeps per-session token
// accounting.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aixgo-dev/pixelctx/internal/llm/cost"
	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
	"github.com/aixgo-dev/pixelctx/internal/observability"
	metrics "github.com/aixgo-dev/pixelctx/pkg/observability"
	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/session"
	"github.com/aixgo-dev/pixelctx/pkg/tokens"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidRequest marks requests rejected before any session work.
var ErrInvalidRequest = errors.New("invalid request")

// SendRequest is one user turn appended below ParentNodeID.
type SendRequest struct {
	SessionID    string    `json:"session_id"`
	UserMessage  string    `json:"user_message"`
	ParentNodeID string    `json:"parent_node_id,omitempty"`
	Tree         tree.Tree `json:"tree"`
}

// SendResult is the model reply together with its token accounting.
type SendResult struct {
	NodeID   string `json:"node_id"`
	Response string `json:"response"`
	tokens.Breakdown
	// ContextImageBase64 is the PNG sent as context; empty without context.
	ContextImageBase64 string `json:"context_image_base64,omitempty"`

	ContextMessages int    `json:"-"`
	ImageWidth      int    `json:"-"`
	ImageHeight     int    `json:"-"`
	ContextPNG      []byte `json:"-"`
}

// ContextPrompt is the text part sent next to a context image.
func ContextPrompt(userMessage string) string {
	return "Continue the conversation. User: " + userMessage
}

// Options configures a Service.
type Options struct {
	Sessions   session.Manager
	Renderer   *render.Renderer
	Calculator *cost.Calculator
	// Artifacts receives every rendered image; nil disables artifacts.
	Artifacts *ArtifactSink
	// PricingModel prices savings in Summary.
	PricingModel string
}

// Service orchestrates resolve, render, estimate, call and bookkeeping.
type Service struct {
	sessions     session.Manager
	renderer     *render.Renderer
	calculator   *cost.Calculator
	artifacts    *ArtifactSink
	pricingModel string
	now          func() time.Time

	idMu   sync.Mutex
	lastID int64
}

// NewService creates a chat service.
func NewService(opts Options) (*Service, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if opts.Renderer == nil {
		r, err := render.New(render.DefaultOptions())
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}
	if opts.Calculator == nil {
		opts.Calculator = cost.DefaultCalculator
	}
	return &Service{
		sessions:     opts.Sessions,
		renderer:     opts.Renderer,
		calculator:   opts.Calculator,
		artifacts:    opts.Artifacts,
		pricingModel: opts.PricingModel,
		now:          time.Now,
	}, nil
}

// Sessions returns the session manager.
func (s *Service) Sessions() session.Manager {
	return s.sessions
}

// Renderer returns the context renderer.
func (s *Service) Renderer() *render.Renderer {
	return s.renderer
}

// Send resolves the context of ParentNodeID, renders it, calls the session's
// model and records the call's token accounting.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, fmt.Errorf("%w: user_message is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}
	if err := req.Tree.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "chat.send", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("chat.parent_node_id", req.ParentNodeID),
	))
	defer span.End()

	now := s.now()
	nodeID := s.nextNodeID(now)
	messages := tree.ResolveMessages(req.ParentNodeID, req.Tree.Nodes)

	result := &SendResult{NodeID: nodeID, ContextMessages: len(messages)}
	parts := []provider.Part{provider.TextPart(req.UserMessage)}
	promptText := req.UserMessage

	if len(messages) > 0 {
		start := time.Now()
		img, err := s.renderer.Render(messages)
		if err != nil {
			return nil, fmt.Errorf("render context: %w", err)
		}
		png, err := render.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		bounds := img.Bounds()
		result.ImageWidth, result.ImageHeight = bounds.Dx(), bounds.Dy()
		result.ContextPNG = png
		result.ContextImageBase64 = render.Base64(png)
		metrics.RecordRender(time.Since(start), result.ImageHeight)

		if s.artifacts != nil {
			if _, err := s.artifacts.Save(png, nodeID, now); err != nil {
				log.Printf("[Chat] artifact not saved: %v", err)
			}
		}

		promptText = ContextPrompt(req.UserMessage)
		parts = []provider.Part{provider.PNGPart(png), provider.TextPart(promptText)}
	}

	result.Breakdown = tokens.Estimate(messages, promptText, result.ImageWidth, result.ImageHeight)
	span.SetAttributes(
		attribute.Int("chat.context_messages", len(messages)),
		attribute.Int("chat.vision_tokens", result.VisionTokens),
		attribute.Int("chat.token_savings", result.Savings),
	)

	start := time.Now()
	resp, err := sess.Provider.Generate(ctx, provider.GenerateRequest{Parts: parts})
	if err != nil {
		metrics.RecordChatCall(sess.Provider.Name(), "error", time.Since(start))
		span.RecordError(err)
		log.Printf("[Chat] session=%s model call failed: %v", sess.ID, err)
		return nil, fmt.Errorf("generate: %w", err)
	}
	metrics.RecordChatCall(sess.Provider.Name(), "success", time.Since(start))
	result.Response = resp.Text

	stats := session.CallStats{
		NodeID:               nodeID,
		VisionTokens:         result.VisionTokens,
		TextTokens:           result.TextTokens,
		TextEquivalentTokens: result.TextEquivalentTokens,
		TokenSavings:         result.Savings,
		ImageWidth:           result.ImageWidth,
		ImageHeight:          result.ImageHeight,
		ContextMessages:      len(messages),
		Timestamp:            now.UTC(),
	}
	if err := s.sessions.Append(ctx, sess.ID, stats); err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	metrics.RecordTokens(result.VisionTokens, result.TextTokens, result.TextEquivalentTokens, result.Savings)

	log.Printf("[Chat] session=%s node=%s context=%d vision=%d text=%d equivalent=%d savings=%d",
		sess.ID, nodeID, len(messages), result.VisionTokens, result.TextTokens, result.TextEquivalentTokens, result.Savings)
	return result, nil
}

// nextNodeID returns the Unix millisecond timestamp of now, bumped past the
// last id handed out so two calls in the same millisecond stay distinct.
func (s *Service) nextNodeID(now time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

// Recompute re-estimates every node of t without calling the model and
// replaces the session's stats log. Each node is priced as if it had been
// sent with its ancestors as context.
func (s *Service) Recompute(ctx context.Context, sessionID string, t tree.Tree) (session.Summary, error) {
	if err := t.Validate(); err != nil {
		return session.Summary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	calls := make([]session.CallStats, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		est, err := EstimateNode(s.renderer, n, t.Nodes)
		if err != nil {
			return session.Summary{}, err
		}
		calls = append(calls, session.CallStats{
			NodeID:               n.ID,
			VisionTokens:         est.VisionTokens,
			TextTokens:           est.TextTokens,
			TextEquivalentTokens: est.TextEquivalentTokens,
			TokenSavings:         est.Savings,
			ImageWidth:           est.ImageWidth,
			ImageHeight:          est.ImageHeight,
			ContextMessages:      est.ContextMessages,
			Timestamp:            parseTimestamp(n.Timestamp, s.now()),
		})
	}

	if err := s.sessions.Reset(ctx, sessionID, calls); err != nil {
		return session.Summary{}, fmt.Errorf("replace stats: %w", err)
	}
	log.Printf("[Chat] session=%s recomputed %d calls", sessionID, len(calls))
	return s.summarize(sessionID, calls), nil
}

// NodeEstimate is the token accounting of a node priced offline.
type NodeEstimate struct {
	tokens.Breakdown
	ContextMessages int
	ImageWidth      int
	ImageHeight     int
}

// EstimateNode prices n as if it had been sent with its ancestors in nodes
// as context. The image is measured, not drawn.
func EstimateNode(r *render.Renderer, n tree.Node, nodes []tree.Node) (NodeEstimate, error) {
	messages := tree.ResolveMessages(n.ParentID, nodes)
	est := NodeEstimate{ContextMessages: len(messages)}
	promptText := n.Prompt
	if len(messages) > 0 {
		var err error
		est.ImageWidth, est.ImageHeight, err = r.Measure(messages)
		if err != nil {
			return NodeEstimate{}, fmt.Errorf("measure context of %s: %w", n.ID, err)
		}
		promptText = ContextPrompt(n.Prompt)
	}
	est.Breakdown = tokens.Estimate(messages, promptText, est.ImageWidth, est.ImageHeight)
	return est, nil
}

// Summary aggregates the session's stats log. Unknown sessions yield a
// zeroed summary.
func (s *Service) Summary(ctx context.Context, sessionID string) (session.Summary, error) {
	calls, err := s.sessions.Stats(ctx, sessionID)
	if err != nil {
		return session.Summary{}, err
	}
	return s.summarize(sessionID, calls), nil
}

// Delete forgets the session and its stats.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *Service) summarize(sessionID string, calls []session.CallStats) session.Summary {
	summary := session.Summarize(sessionID, calls)
	if s.pricingModel != "" {
		if usd, err := s.calculator.InputSavings(s.pricingModel, summary.TotalTokenSavings); err == nil {
			summary.EstimatedSavingsUSD = usd
		}
	}
	return summary
}

// parseTimestamp accepts RFC 3339 or Unix milliseconds, falling back to def.
func parseTimestamp(s string, def time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return def.UTC()
}
