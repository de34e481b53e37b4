package tool

import (
	"encoding/json"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/blobstore"
	"github.com/agentserver/agentserver/pkg/types"
)

const generateImageDescription = `Generates an image from a text description and attaches it to the conversation. Supports aspect ratios "1:1" (default), "3:4", "4:3", "9:16", "16:9".`

// ImageGenerator produces image bytes from a text prompt, implemented
// against whichever provider (C5) is configured for image generation.
type ImageGenerator interface {
	GenerateImage(tc *Context, prompt, aspectRatio string) (data []byte, mimeType string, err error)
}

type generateImageArgs struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

var validAspectRatios = map[string]bool{
	"1:1": true, "3:4": true, "4:3": true, "9:16": true, "16:9": true,
}

// NewGenerateImageTool builds the generate_image built-in, storing the
// model's output content-addressed in blobs and returning it as an
// attachment rather than inline bytes.
func NewGenerateImageTool(generator ImageGenerator, blobs *blobstore.Store) *Definition {
	return &Definition{
		Name:        "generate_image",
		Description: generateImageDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string", "description": "Text description of the image to generate"},
				"aspect_ratio": {"type": "string", "enum": ["1:1", "3:4", "4:3", "9:16", "16:9"]}
			},
			"required": ["prompt"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "prompt", "aspect_ratio"); err != nil {
				return nil, err
			}
			var args generateImageArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid generate_image arguments: %v", err)
			}
			if args.Prompt == "" {
				return nil, apierror.BadRequest("generate_image requires a prompt")
			}
			if args.AspectRatio == "" {
				args.AspectRatio = "1:1"
			}
			if !validAspectRatios[args.AspectRatio] {
				return nil, apierror.BadRequest("unsupported aspect_ratio %q", args.AspectRatio)
			}

			data, mimeType, err := generator.GenerateImage(tc, args.Prompt, args.AspectRatio)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindToolError, "generate image", err)
			}

			hash, err := blobs.Put(data)
			if err != nil {
				return nil, apierror.Wrap(apierror.KindInternal, "store generated image", err)
			}

			attachment := types.FileAttachment{
				FileName: "generated-image",
				MimeType: mimeType,
				Hash:     hash,
			}
			return &Result{
				Value:       map[string]any{"hash": hash, "mimeType": mimeType},
				Attachments: []types.FileAttachment{attachment},
			}, nil
		},
	}
}
