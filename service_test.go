// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package memvault

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/memvault/ai/mock"
	"github.com/poiesic/memvault/core"
	"github.com/poiesic/memvault/pipeline"
)

const moonSentence = "The moon orbits the earth."

func newTestService(t *testing.T) (*Service, *mock.Provider) {
	t.Helper()

	config := DefaultConfig()
	config.Queue.Backend = BackendMemory
	config.Artifacts.Backend = BackendMemory
	config.Index.Backend = BackendMemory
	config.Workers = 2

	provider := mock.NewProvider()
	svc, err := NewService(config, WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, svc.Close())
	})
	return svc, provider
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(cancel)
}

func textUpload(id, name, content string) UploadRequest {
	return UploadRequest{
		DocumentID: id,
		Files:      []core.File{{Name: name, Content: []byte(content)}},
	}
}

func waitReady(t *testing.T, svc *Service, index, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ready, err := svc.IsDocumentReady(context.Background(), index, id)
		return err == nil && ready
	}, 15*time.Second, 20*time.Millisecond)
}

func TestServiceUploadRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	docID, err := svc.Upload(ctx, textUpload("", "hello.txt", moonSentence))
	require.NoError(t, err)
	require.NotEmpty(t, docID)

	waitReady(t, svc, "", docID)

	results, err := svc.Search(ctx, "", moonSentence, nil, 0.99, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Chunk.Text, "moon orbits")
	assert.Equal(t, docID, results[0].Chunk.Tags.First(core.TagDocumentID))
	assert.Equal(t, docID, results[0].Chunk.DocumentID)

	status, err := svc.Status(ctx, "", docID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusComplete, status.Status)
	assert.Empty(t, status.Remaining)
}

func TestServiceUploadValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, UploadRequest{})
	require.ErrorIs(t, err, core.ErrNoFiles)

	_, err = svc.Upload(ctx, UploadRequest{Index: "!!!"})
	require.ErrorIs(t, err, core.ErrInvalidIndexName)

	req := textUpload("", "a.txt", "text")
	req.Tags = core.TagCollection{"__secret": {"x"}}
	_, err = svc.Upload(ctx, req)
	require.ErrorIs(t, err, core.ErrValidation)

	req = textUpload("", "a.txt", "text")
	req.Steps = []string{"no_such_step"}
	_, err = svc.Upload(ctx, req)
	require.ErrorIs(t, err, core.ErrValidation)
	require.ErrorIs(t, err, pipeline.ErrUnknownStep)
}

func TestServiceRejectsReingestWhileInFlight(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// No workers running, so the first run stays pending.
	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", "first payload"))
	require.NoError(t, err)

	_, err = svc.Upload(ctx, textUpload("doc-1", "a.txt", "second payload"))
	require.ErrorIs(t, err, ErrDocumentInFlight)
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestServiceReingestReplacesChunks(t *testing.T) {
	svc, _ := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", "Original content here."))
	require.NoError(t, err)
	waitReady(t, svc, "", "doc-1")

	_, err = svc.Upload(ctx, textUpload("doc-1", "a.txt", "Replacement content here."))
	require.NoError(t, err)
	waitReady(t, svc, "", "doc-1")

	filter := []core.MemoryFilter{{core.TagDocumentID: {"doc-1"}}}
	require.Eventually(t, func() bool {
		results, err := svc.Search(ctx, "", "Replacement content here.", filter, -1, -1)
		if err != nil || len(results) != 1 {
			return false
		}
		return results[0].Chunk.Text == "Replacement content here."
	}, 15*time.Second, 20*time.Millisecond)
}

func TestServiceCancel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", "some text"))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, "", "doc-1"))

	status, err := svc.Status(ctx, "", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, status.Status)

	ready, err := svc.IsDocumentReady(ctx, "", "doc-1")
	require.NoError(t, err)
	assert.False(t, ready)

	// Cancelling a document already in a terminal status is a no-op.
	require.NoError(t, svc.Cancel(ctx, "", "doc-1"))
}

func TestServiceDeleteDocument(t *testing.T) {
	svc, _ := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", moonSentence))
	require.NoError(t, err)
	waitReady(t, svc, "", "doc-1")

	require.NoError(t, svc.DeleteDocument(ctx, "", "doc-1"))

	_, err = svc.Status(ctx, "", "doc-1")
	require.ErrorIs(t, err, pipeline.ErrStateNotFound)

	filter := []core.MemoryFilter{{core.TagDocumentID: {"doc-1"}}}
	results, err := svc.Search(ctx, "", moonSentence, filter, -1, -1)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Idempotent.
	require.NoError(t, svc.DeleteDocument(ctx, "", "doc-1"))
}

func TestServiceDeleteIndex(t *testing.T) {
	svc, _ := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", moonSentence))
	require.NoError(t, err)
	waitReady(t, svc, "", "doc-1")

	indexes, err := svc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, indexes)

	require.NoError(t, svc.DeleteIndex(ctx, ""))

	indexes, err = svc.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Empty(t, indexes)

	_, err = svc.Status(ctx, "", "doc-1")
	require.ErrorIs(t, err, pipeline.ErrStateNotFound)
}

func TestServiceAsk(t *testing.T) {
	svc, provider := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	docID, err := svc.Upload(ctx, textUpload("", "hello.txt", moonSentence))
	require.NoError(t, err)
	waitReady(t, svc, "", docID)

	answer, err := svc.Ask(ctx, "", moonSentence, nil, 0.99, 5)
	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, docID, answer.Citations[0].DocumentID)
	assert.NotEmpty(t, answer.Text)
	assert.Equal(t, moonSentence, provider.MockAnswerGenerator().LastQuestion)
}

func TestServiceConcurrentUploads(t *testing.T) {
	svc, _ := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	const docs = 20
	ids := make([]string, 0, docs)
	for i := 0; i < docs; i++ {
		content := fmt.Sprintf("Document number %d talks about topic %d.", i, i)
		id, err := svc.Upload(ctx, textUpload("", fmt.Sprintf("doc%d.txt", i), content))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitReady(t, svc, "", id)
	}

	for i, id := range ids {
		content := fmt.Sprintf("Document number %d talks about topic %d.", i, i)
		results, err := svc.Search(ctx, "", content, nil, 0.99, 5)
		require.NoError(t, err)
		require.Len(t, results, 1, "document %d", i)
		assert.Equal(t, id, results[0].Chunk.DocumentID)
	}

	assert.GreaterOrEqual(t, svc.Stats().Advanced, int64(docs*4))
}

func TestServiceReembedIndex(t *testing.T) {
	svc, provider := newTestService(t)
	startService(t, svc)
	ctx := context.Background()

	_, err := svc.Upload(ctx, textUpload("doc-1", "a.txt", moonSentence))
	require.NoError(t, err)
	waitReady(t, svc, "", "doc-1")

	callsBefore := provider.MockEmbedder().CallCount()

	enqueued, err := svc.ReembedIndex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
	waitReady(t, svc, "", "doc-1")

	// The embedder ran again and the chunk is still searchable.
	require.Eventually(t, func() bool {
		return provider.MockEmbedder().CallCount() > callsBefore
	}, 15*time.Second, 20*time.Millisecond)

	results, err := svc.Search(ctx, "", moonSentence, nil, 0.99, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	status, err := svc.Status(ctx, "", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusComplete, status.Status)

	// An empty index enqueues nothing.
	enqueued, err = svc.ReembedIndex(ctx, "elsewhere")
	require.NoError(t, err)
	assert.Zero(t, enqueued)
}

func TestServiceUnknownDocumentStatus(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Status(context.Background(), "", "nope")
	require.ErrorIs(t, err, pipeline.ErrStateNotFound)

	_, err = svc.IsDocumentReady(context.Background(), "", "nope")
	require.ErrorIs(t, err, pipeline.ErrStateNotFound)
}

func TestServiceIsDocumentReadyTracksReadyFlag(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A complete status with work still planned is not ready. Readiness
	// must follow the reporter's Ready flag, not the status value alone.
	st := core.NewPipelineState("notes", "half-done", nil, []string{"generate_embeddings"})
	st.Status = core.StatusComplete
	require.NoError(t, svc.states.Save(ctx, st))

	status, err := svc.Status(ctx, "notes", "half-done")
	require.NoError(t, err)
	require.False(t, status.Ready)

	ready, err := svc.IsDocumentReady(ctx, "notes", "half-done")
	require.NoError(t, err)
	assert.False(t, ready)

	// A document that actually finished is ready.
	startService(t, svc)
	docID, err := svc.Upload(ctx, textUpload("", "hello.txt", moonSentence))
	require.NoError(t, err)
	waitReady(t, svc, "default", docID)

	status, err = svc.Status(ctx, "default", docID)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, core.StatusComplete, status.Status)
}
