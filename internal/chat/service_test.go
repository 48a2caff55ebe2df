package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/session"
	"github.com/aixgo-dev/pixelctx/pkg/tokens"
	"github.com/aixgo-dev/pixelctx/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

func newTestService(t *testing.T, mock *provider.MockProvider, artifacts *ArtifactSink) *Service {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryBackend(), func(ctx context.Context, id string) (provider.Provider, error) {
		return mock, nil
	})
	svc, err := NewService(Options{Sessions: mgr, Artifacts: artifacts, PricingModel: "gemini-2.0-flash"})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func hiHelloTree() tree.Tree {
	return tree.Tree{SessionID: "s1", Nodes: []tree.Node{
		{ID: "n1", Prompt: "Hi", Response: "Hello", Timestamp: "2025-03-14T15:00:00Z"},
		{ID: "other", Prompt: "Unrelated", Response: "Branch"},
	}}
}

func TestSend_WithContext(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.Responses = []*provider.GenerateResponse{{Text: "I'm fine, thanks!"}}
	svc := newTestService(t, mock, nil)

	res, err := svc.Send(context.Background(), SendRequest{
		SessionID:    "s1",
		UserMessage:  "How are you?",
		ParentNodeID: "n1",
		Tree:         hiHelloTree(),
	})
	require.NoError(t, err)

	assert.Equal(t, "I'm fine, thanks!", res.Response)
	assert.Equal(t, "1741964966535", res.NodeID)
	assert.Equal(t, 2, res.ContextMessages)

	call, ok := mock.LastCall()
	require.True(t, ok)
	require.Len(t, call.Parts, 2)
	assert.True(t, call.Parts[0].IsImage())
	assert.Equal(t, "image/png", call.Parts[0].Image.MIMEType)
	assert.Equal(t, "Continue the conversation. User: How are you?", call.Parts[1].Text)

	// the base64 payload decodes to the image that was sent
	raw, err := base64.StdEncoding.DecodeString(res.ContextImageBase64)
	require.NoError(t, err)
	assert.Equal(t, call.Parts[0].Image.Data, raw)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 768, img.Bounds().Dx())
	assert.Equal(t, res.ImageHeight, img.Bounds().Dy())

	assert.Equal(t, 258, res.VisionTokens)
	assert.Equal(t, tokens.TextTokens("Continue the conversation. User: How are you?"), res.TextTokens)
	assert.Equal(t, (len("Hi")+len("Hello")+2*15)/4, res.TextEquivalentTokens)
	assert.Equal(t, res.TextEquivalentTokens-258-res.TextTokens, res.Savings)

	summary, err := svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalAPICalls)
	assert.Equal(t, res.NodeID, summary.Calls[0].NodeID)
	assert.Equal(t, 2, summary.Calls[0].ContextMessages)
	assert.Equal(t, res.Savings, summary.TotalTokenSavings)
	assert.Less(t, summary.EstimatedSavingsUSD, 0.0)
}

func TestSend_WithoutContext(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	svc := newTestService(t, mock, nil)

	res, err := svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "Hello there, model"})
	require.NoError(t, err)

	call, _ := mock.LastCall()
	require.Len(t, call.Parts, 1)
	assert.Equal(t, "Hello there, model", call.Parts[0].Text)

	assert.Zero(t, res.VisionTokens)
	assert.Zero(t, res.Savings)
	assert.Equal(t, res.TextTokens, res.TextEquivalentTokens)
	assert.Empty(t, res.ContextImageBase64)
	assert.Zero(t, res.ContextMessages)
}

func TestSend_DanglingParentTruncates(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	svc := newTestService(t, mock, nil)

	tr := tree.Tree{Nodes: []tree.Node{
		{ID: "b", ParentID: "missing", Prompt: "p", Response: "r"},
	}}
	res, err := svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "next", ParentNodeID: "b", Tree: tr})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ContextMessages)

	// unknown parent: no context at all
	res, err = svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "next", ParentNodeID: "nope", Tree: tr})
	require.NoError(t, err)
	assert.Zero(t, res.ContextMessages)
}

func TestSend_Errors(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	svc := newTestService(t, mock, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, SendRequest{SessionID: "s1", UserMessage: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Send(ctx, SendRequest{UserMessage: "Hi"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "session_id")

	dup := tree.Tree{Nodes: []tree.Node{{ID: "a"}, {ID: "a"}}}
	_, err = svc.Send(ctx, SendRequest{SessionID: "s1", UserMessage: "x", Tree: dup})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, tree.ErrDuplicateNode)
	assert.Zero(t, mock.CallCount())

	mock.Errors = []error{provider.NewProviderError("mock", provider.ErrorCodeServerError, "backend down", nil)}
	_, err = svc.Send(ctx, SendRequest{SessionID: "s1", UserMessage: "x"})
	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "backend down")

	// failed calls leave no stats behind
	summary, err := svc.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, summary.TotalAPICalls)
}

func TestSend_MissingCredential(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryBackend(), func(ctx context.Context, id string) (provider.Provider, error) {
		return provider.New("gemini", provider.Settings{})
	})
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	svc, err := NewService(Options{Sessions: mgr})
	require.NoError(t, err)

	_, err = svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "hi"})
	require.ErrorIs(t, err, provider.ErrMissingCredential)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY not set")
}

func TestSend_SavesArtifact(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewArtifactSink(dir)
	require.NoError(t, err)
	svc := newTestService(t, provider.NewMockProvider("mock"), sink)

	res, err := svc.Send(context.Background(), SendRequest{
		SessionID: "s1", UserMessage: "How are you?", ParentNodeID: "n1", Tree: hiHelloTree(),
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "context_20250314_150926_"+res.NodeID+".png")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, res.ContextPNG, data)

	// no context, no artifact
	_, err = svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "fresh"})
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecompute(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	svc := newTestService(t, mock, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, SendRequest{SessionID: "s1", UserMessage: "stale"})
	require.NoError(t, err)

	tr := tree.Tree{Nodes: []tree.Node{
		{ID: "1", Prompt: "Hi", Response: "Hello", Timestamp: "1741964966535"},
		{ID: "2", ParentID: "1", Prompt: "How are you?", Response: "Fine"},
		{ID: "3", ParentID: "1", Prompt: "Other branch", Response: "Sure"},
	}}
	summary, err := svc.Recompute(ctx, "s1", tr)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.CallCount())

	require.Equal(t, 3, summary.TotalAPICalls)
	assert.Equal(t, []string{"1", "2", "3"}, []string{summary.Calls[0].NodeID, summary.Calls[1].NodeID, summary.Calls[2].NodeID})
	assert.Zero(t, summary.Calls[0].VisionTokens)
	assert.Zero(t, summary.Calls[0].TokenSavings)
	assert.Equal(t, time.UnixMilli(1741964966535).UTC(), summary.Calls[0].Timestamp)
	assert.Equal(t, 258, summary.Calls[1].VisionTokens)
	assert.Equal(t, 2, summary.Calls[1].ContextMessages)
	assert.Equal(t, 2, summary.Calls[2].ContextMessages)

	stored, err := svc.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, summary.TotalTokenSavings, stored.TotalTokenSavings)
	assert.Equal(t, 3, stored.TotalAPICalls)
}

func TestDeleteResetsStats(t *testing.T) {
	svc := newTestService(t, provider.NewMockProvider("mock"), nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, SendRequest{SessionID: "s1", UserMessage: "hi"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "s1"))

	summary, err := svc.Summary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Summary{SessionID: "s1", Calls: []session.CallStats{}}, summary)
}

func TestEstimateNode(t *testing.T) {
	r, err := render.New(render.DefaultOptions())
	require.NoError(t, err)
	nodes := []tree.Node{
		{ID: "a", Prompt: "Hi", Response: "Hello"},
		{ID: "b", ParentID: "a", Prompt: "How are you?", Response: "Fine"},
	}

	root, err := EstimateNode(r, nodes[0], nodes)
	require.NoError(t, err)
	assert.Zero(t, root.ContextMessages)
	assert.Zero(t, root.VisionTokens)
	assert.Zero(t, root.Savings)
	assert.Equal(t, tokens.TextTokens("Hi"), root.TextTokens)

	child, err := EstimateNode(r, nodes[1], nodes)
	require.NoError(t, err)
	assert.Equal(t, 2, child.ContextMessages)
	assert.Equal(t, 768, child.ImageWidth)
	assert.Equal(t, 258, child.VisionTokens)
	assert.Equal(t, tokens.TextTokens(ContextPrompt("How are you?")), child.TextTokens)
}

func TestSend_NodeIDsUniqueWithinMillisecond(t *testing.T) {
	svc := newTestService(t, provider.NewMockProvider("mock"), nil)

	first, err := svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "a"})
	require.NoError(t, err)
	second, err := svc.Send(context.Background(), SendRequest{SessionID: "s1", UserMessage: "b"})
	require.NoError(t, err)

	assert.Equal(t, "1741964966535", first.NodeID)
	assert.Equal(t, "1741964966536", second.NodeID)
}
