package tools

import (
	"context"
	"encoding/base64"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"github.com/pkg/errors"

	"github.com/parleyhq/parley/llm"
)

// MediaAttachment is the structured result of a media generation tool. The
// payload is base64 so it can travel inside the JSON message log.
type MediaAttachment struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ImageGenerator renders an image from a text prompt.
type ImageGenerator struct {
	client *openai.Client
	model  string
}

func NewImageGenerator(apiKey, baseURL, model string) *ImageGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	return &ImageGenerator{client: openai.NewClientWithConfig(config), model: model}
}

func (g *ImageGenerator) Name() string { return ToolGenerateImage }

func (g *ImageGenerator) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolGenerateImage,
		Description: "Generate an image from a text prompt. Returns the image as inline base64 data.",
		Parameters: `{
			"type": "object",
			"properties": {
				"prompt": {"type": "string", "description": "Description of the image to generate"}
			},
			"required": ["prompt"]
		}`,
	}
}

func (g *ImageGenerator) Payload(args map[string]any) string {
	return stringArg(args, "prompt")
}

func (g *ImageGenerator) Execute(ctx context.Context, args map[string]any) (any, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return nil, errors.New("prompt required")
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, errors.Wrap(err, "image generation failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("image generation returned no data")
	}
	return &MediaAttachment{MimeType: "image/png", Data: resp.Data[0].B64JSON}, nil
}

// AudioGenerator synthesizes speech from text.
type AudioGenerator struct {
	client *openai.Client
	model  openai.SpeechModel
}

func NewAudioGenerator(apiKey, baseURL string) *AudioGenerator {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &AudioGenerator{client: openai.NewClientWithConfig(config), model: openai.TTSModel1}
}

func (g *AudioGenerator) Name() string { return ToolGenerateAudio }

func (g *AudioGenerator) Descriptor() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolGenerateAudio,
		Description: "Synthesize spoken audio from text. Returns the audio as inline base64 data.",
		Parameters: `{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Text to speak"}
			},
			"required": ["text"]
		}`,
	}
}

func (g *AudioGenerator) Payload(args map[string]any) string {
	return stringArg(args, "text")
}

func (g *AudioGenerator) Execute(ctx context.Context, args map[string]any) (any, error) {
	text := stringArg(args, "text")
	if text == "" {
		return nil, errors.New("text required")
	}

	resp, err := g.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: g.model,
		Input: text,
		Voice: openai.VoiceAlloy,
	})
	if err != nil {
		return nil, errors.Wrap(err, "audio generation failed")
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audio stream")
	}
	return &MediaAttachment{MimeType: "audio/mpeg", Data: base64.StdEncoding.EncodeToString(raw)}, nil
}
