package anthropic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPollBatch_EndsImmediately(t *testing.T) {
	mc := new(MockClient)

	mc.On("GetBatch", mock.Anything, "batch_1").Return(&BatchResponse{
		ID:               "batch_1",
		ProcessingStatus: "ended",
		RequestCounts:    RequestCounts{Succeeded: 3},
	}, nil)

	resp, err := PollBatch(context.Background(), mc, "batch_1",
		WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, "ended", resp.ProcessingStatus)
	mc.AssertExpectations(t)
}

func TestPollBatch_InProgressThenEnded(t *testing.T) {
	mc := new(MockClient)

	mc.On("GetBatch", mock.Anything, "batch_2").Return(&BatchResponse{
		ID:               "batch_2",
		ProcessingStatus: "in_progress",
	}, nil).Twice()
	mc.On("GetBatch", mock.Anything, "batch_2").Return(&BatchResponse{
		ID:               "batch_2",
		ProcessingStatus: "ended",
	}, nil).Once()

	resp, err := PollBatch(context.Background(), mc, "batch_2",
		WithPollInterval(time.Millisecond),
		WithPollCap(5*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, "ended", resp.ProcessingStatus)
	mc.AssertExpectations(t)
}

func TestPollBatch_Expired(t *testing.T) {
	mc := new(MockClient)

	mc.On("GetBatch", mock.Anything, "batch_3").Return(&BatchResponse{
		ID:               "batch_3",
		ProcessingStatus: "expired",
	}, nil)

	_, err := PollBatch(context.Background(), mc, "batch_3",
		WithPollInterval(time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestPollBatch_Canceled(t *testing.T) {
	mc := new(MockClient)

	mc.On("GetBatch", mock.Anything, "batch_4").Return(&BatchResponse{
		ID:               "batch_4",
		ProcessingStatus: "canceled",
	}, nil)

	_, err := PollBatch(context.Background(), mc, "batch_4",
		WithPollInterval(time.Millisecond),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestPollBatch_ContextCancelled(t *testing.T) {
	mc := new(MockClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mc.On("GetBatch", mock.Anything, "batch_cancel").Return(nil, context.Canceled)

	_, err := PollBatch(ctx, mc, "batch_cancel",
		WithPollInterval(time.Millisecond),
	)
	require.Error(t, err)
}

func TestPollBatch_Timeout(t *testing.T) {
	mc := new(MockClient)

	mc.On("GetBatch", mock.Anything, "batch_slow").Return(&BatchResponse{
		ID:               "batch_slow",
		ProcessingStatus: "in_progress",
	}, nil)

	_, err := PollBatch(context.Background(), mc, "batch_slow",
		WithPollInterval(time.Millisecond),
		WithPollCap(2*time.Millisecond),
		WithPollTimeout(20*time.Millisecond),
	)
	require.Error(t, err)
}

func TestCollectBatchResults_AllSucceeded(t *testing.T) {
	items := []BatchResultItem{
		{CustomID: "geo-0", Type: "succeeded", Message: &MessageResponse{
			ID: "msg_1", Content: []ContentBlock{{Type: "text", Text: `{"lat": 36.16}`}},
		}},
		{CustomID: "geo-1", Type: "succeeded", Message: &MessageResponse{
			ID: "msg_2", Content: []ContentBlock{{Type: "text", Text: `{"lat": 36.12}`}},
		}},
	}

	results, failures, err := CollectBatchResults(NewMockBatchResultIterator(items))
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 2)
	assert.Equal(t, `{"lat": 36.16}`, results["geo-0"].Content[0].Text)
}

func TestCollectBatchResults_PartialFailure(t *testing.T) {
	items := []BatchResultItem{
		{CustomID: "geo-0", Type: "succeeded", Message: &MessageResponse{
			ID: "msg_1", Content: []ContentBlock{{Type: "text", Text: "ok"}},
		}},
		{CustomID: "geo-1", Type: "errored"},
		{CustomID: "geo-2", Type: "expired"},
	}

	results, failures, err := CollectBatchResults(NewMockBatchResultIterator(items))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	require.Len(t, failures, 2)
	assert.Equal(t, "geo-1", failures[0].CustomID)
	assert.Equal(t, "errored", failures[0].Type)
	assert.Equal(t, "expired", failures[1].Type)
}

func TestCollectBatchResults_IteratorError(t *testing.T) {
	items := []BatchResultItem{
		{CustomID: "geo-0", Type: "succeeded", Message: &MessageResponse{ID: "msg_1"}},
	}
	iter := NewMockBatchResultIteratorWithError(items, errors.New("stream truncated"))

	_, _, err := CollectBatchResults(iter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream truncated")
}

func TestPrimerRequest_WithBatchWorkflow(t *testing.T) {
	// Primer warms the shared system prompt, then the batch requests
	// reuse it via cache reads.
	mc := new(MockClient)
	ctx := context.Background()

	systemBlocks := BuildCachedSystemBlocks("Known venue directory for Nashville...")

	primerReq := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 128,
		System:    systemBlocks,
		Messages:  []Message{{Role: "user", Content: "Ack."}},
	}
	mc.On("CreateMessage", ctx, primerReq).Return(&MessageResponse{
		ID:         "msg_primer",
		StopReason: "end_turn",
		Usage:      TokenUsage{CacheCreationInputTokens: 10000},
	}, nil)

	batchReq := BatchRequest{
		Requests: []BatchRequestItem{
			{CustomID: "geo-0", Params: MessageRequest{
				Model: "claude-haiku-4-5-20251001", MaxTokens: 1024,
				System:   systemBlocks,
				Messages: []Message{{Role: "user", Content: "Complete the address for venue A"}},
			}},
			{CustomID: "geo-1", Params: MessageRequest{
				Model: "claude-haiku-4-5-20251001", MaxTokens: 1024,
				System:   systemBlocks,
				Messages: []Message{{Role: "user", Content: "Complete the address for venue B"}},
			}},
		},
	}
	mc.On("CreateBatch", ctx, batchReq).Return(&BatchResponse{
		ID:               "batch_001",
		ProcessingStatus: "in_progress",
	}, nil)

	mc.On("GetBatch", mock.Anything, "batch_001").Return(&BatchResponse{
		ID:               "batch_001",
		ProcessingStatus: "ended",
		RequestCounts:    RequestCounts{Succeeded: 2},
	}, nil)

	resultItems := []BatchResultItem{
		{CustomID: "geo-0", Type: "succeeded", Message: &MessageResponse{
			ID: "msg_r1", Content: []ContentBlock{{Type: "text", Text: `{"zip": "37203"}`}},
			Usage: TokenUsage{CacheReadInputTokens: 10000},
		}},
		{CustomID: "geo-1", Type: "succeeded", Message: &MessageResponse{
			ID: "msg_r2", Content: []ContentBlock{{Type: "text", Text: `{"zip": "37212"}`}},
			Usage: TokenUsage{CacheReadInputTokens: 10000},
		}},
	}
	mc.On("GetBatchResults", ctx, "batch_001").Return(
		NewMockBatchResultIterator(resultItems), nil,
	)

	resp, err := PrimerRequest(ctx, mc, primerReq)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), resp.Usage.CacheCreationInputTokens)

	batchResp, err := mc.CreateBatch(ctx, batchReq)
	require.NoError(t, err)

	polled, err := PollBatch(ctx, mc, batchResp.ID,
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, "ended", polled.ProcessingStatus)

	iter, err := mc.GetBatchResults(ctx, "batch_001")
	require.NoError(t, err)

	results, failures, err := CollectBatchResults(iter)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Len(t, results, 2)
	assert.Equal(t, int64(10000), results["geo-0"].Usage.CacheReadInputTokens)

	mc.AssertExpectations(t)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("Venue directory context")

	require.Len(t, blocks, 1)
	assert.Equal(t, "Venue directory context", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
