package tool

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/blobstore"
)

type fakeImageGenerator struct {
	data     []byte
	mimeType string
	err      error
}

func (f *fakeImageGenerator) GenerateImage(tc *Context, prompt, aspectRatio string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mimeType, nil
}

func newTestBlobStore(t *testing.T) *blobstore.Store {
	t.Helper()
	store, err := blobstore.New(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return store
}

func TestGenerateImageStoresAttachment(t *testing.T) {
	gen := &fakeImageGenerator{data: []byte("fake-png-bytes"), mimeType: "image/png"}
	blobs := newTestBlobStore(t)
	tool := NewGenerateImageTool(gen, blobs)

	res, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"prompt":"a cat"}`))
	require.NoError(t, err)

	require.Len(t, res.Attachments, 1)
	assert.Equal(t, "image/png", res.Attachments[0].MimeType)

	stored, err := blobs.Get(res.Attachments[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, "fake-png-bytes", string(stored))
}

func TestGenerateImageDefaultsAspectRatio(t *testing.T) {
	gen := &fakeImageGenerator{data: []byte("x"), mimeType: "image/png"}
	tool := NewGenerateImageTool(gen, newTestBlobStore(t))

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"prompt":"a dog"}`))
	assert.NoError(t, err)
}

func TestGenerateImageRejectsInvalidAspectRatio(t *testing.T) {
	tool := NewGenerateImageTool(&fakeImageGenerator{}, newTestBlobStore(t))

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"prompt":"a dog","aspect_ratio":"2:7"}`))
	assert.Error(t, err)
}

func TestGenerateImageRequiresPrompt(t *testing.T) {
	tool := NewGenerateImageTool(&fakeImageGenerator{}, newTestBlobStore(t))

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"prompt":""}`))
	assert.Error(t, err)
}

func TestGenerateImagePropagatesGeneratorError(t *testing.T) {
	tool := NewGenerateImageTool(&fakeImageGenerator{err: assert.AnError}, newTestBlobStore(t))

	_, err := tool.Handler(newTestToolContext(), json.RawMessage(`{"prompt":"a dog"}`))
	assert.Error(t, err)
}
