// Package llm adapts OpenAI-compatible APIs (OpenAI, xAI, Gemini's OpenAI
// endpoint) to the gateway capabilities.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/core/services/gateway"
	apperrors "github.com/alejandroruanova/sfumato/internal/pkg/errors"
)

const synthesizeSystemPrompt = `You write prompts for text-to-image models.
Rewrite the user's idea as a single detailed English prompt describing subject,
composition, lighting, style and mood. Reply with the prompt text only.`

const judgeSystemPrompt = `You are an art director reviewing a generated image.
Compare the image with the prompt that produced it and with the user's critique.
Reply with a JSON object only:
{"approved": bool, "refinement_clause": string, "score": integer 0-100, "notes": string}
Set approved to true only if the critique is fully addressed. Otherwise
refinement_clause is one imperative sentence to append to the prompt.`

// Settings configures one OpenAI-compatible endpoint
type Settings struct {
	APIKey  string
	BaseURL string
	Model   string
}

func requestOptions(s Settings) ([]option.RequestOption, error) {
	if s.APIKey == "" {
		return nil, errors.New("api key missing")
	}
	if s.Model == "" {
		return nil, errors.New("model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey), option.WithMaxRetries(0)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return opts, nil
}

// ImageURLResolver turns an image reference into a URL a vision model accepts
type ImageURLResolver interface {
	DataURL(ctx context.Context, ref domain.ImageRef) (string, error)
}

// ChatClient implements prompt synthesis and judging over chat completions
type ChatClient struct {
	client      openai.Client
	promptModel string
	judgeModel  string
	images      ImageURLResolver
	logger      *slog.Logger
}

// NewChatClient creates the chat-backed synthesizer and judge. Retries are
// left to the caller so failures surface as typed outcomes.
func NewChatClient(prompt Settings, judgeModel string, images ImageURLResolver, logger *slog.Logger) (*ChatClient, error) {
	opts, err := requestOptions(prompt)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}
	if judgeModel == "" {
		judgeModel = prompt.Model
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatClient{
		client:      openai.NewClient(opts...),
		promptModel: prompt.Model,
		judgeModel:  judgeModel,
		images:      images,
		logger:      logger,
	}, nil
}

// SynthesizePrompt asks the prompt model to expand the idea
func (c *ChatClient) SynthesizePrompt(ctx context.Context, idea domain.Idea) (domain.Prompt, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.promptModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(synthesizeSystemPrompt),
			openai.UserMessage(string(idea)),
		},
	})
	if err != nil {
		return domain.Prompt{}, classifyAPIError(gateway.OpSynthesizePrompt, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Prompt{}, apperrors.ModelUnavailable(nil, "prompt model returned no choices")
	}

	text := CleanPrompt(resp.Choices[0].Message.Content)
	prompt, err := domain.NewPrompt(text)
	if err != nil {
		return domain.Prompt{}, apperrors.ModelUnavailable(err, "prompt model returned an empty prompt")
	}

	c.logger.Debug("prompt synthesized",
		slog.String("model", c.promptModel),
		slog.Int64("total_tokens", resp.Usage.TotalTokens))
	return prompt, nil
}

// Judge sends the image with the prompt and critique to the judge model
func (c *ChatClient) Judge(ctx context.Context, image domain.ImageRef, prompt domain.Prompt, feedback domain.Feedback) (domain.JudgeVerdict, error) {
	url, err := c.images.DataURL(ctx, image)
	if err != nil {
		return domain.JudgeVerdict{}, apperrors.ModelUnavailable(err, "judge could not load the image")
	}

	user := fmt.Sprintf("Prompt:\n%s\n\nUser critique:\n%s", prompt.Text, feedback)
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.judgeModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(judgeSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(user),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}),
			}),
		},
	})
	if err != nil {
		return domain.JudgeVerdict{}, classifyAPIError(gateway.OpJudge, err)
	}
	if len(resp.Choices) == 0 {
		return domain.JudgeVerdict{}, apperrors.ModelUnavailable(nil, "judge returned no choices")
	}

	verdict, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.JudgeVerdict{}, apperrors.ModelUnavailable(err, "judge returned an unreadable verdict")
	}

	c.logger.Debug("image judged",
		slog.String("model", c.judgeModel),
		slog.Bool("approved", verdict.Approved),
		slog.Int64("total_tokens", resp.Usage.TotalTokens))
	return verdict, nil
}

// ImageClient renders prompts with one image model
type ImageClient struct {
	client   openai.Client
	model    domain.ImageModel
	apiModel string
	sendSize bool
	store    Base64Saver
	logger   *slog.Logger
}

// Base64Saver stores a base64 image and returns its reference
type Base64Saver func(ctx context.Context, model domain.ImageModel, prompt string, encoded string) (domain.ImageRef, error)

// ImageOptions configures an ImageClient
type ImageOptions struct {
	Model domain.ImageModel
	// SendSize passes the capability size to the API. Some providers reject it.
	SendSize bool
	// Save stores base64 responses; without it only URL responses are usable
	Save   Base64Saver
	Logger *slog.Logger
}

// NewImageClient creates an image generator for one provider
func NewImageClient(s Settings, opts ImageOptions) (*ImageClient, error) {
	reqOpts, err := requestOptions(s)
	if err != nil {
		return nil, fmt.Errorf("image client %s: %w", opts.Model, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageClient{
		client:   openai.NewClient(reqOpts...),
		model:    opts.Model,
		apiModel: s.Model,
		sendSize: opts.SendSize,
		store:    opts.Save,
		logger:   logger,
	}, nil
}

// GenerateImage renders the prompt and returns a stored or remote reference
func (c *ImageClient) GenerateImage(ctx context.Context, prompt domain.Prompt, cfg domain.GenerationConfig) (domain.ImageRef, error) {
	params := openai.ImageGenerateParams{
		Prompt: prompt.Text,
		Model:  openai.ImageModel(c.apiModel),
		N:      openai.Int(1),
	}
	if c.store != nil {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	} else {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatURL
	}
	if c.sendSize {
		if caps, err := domain.CapabilitiesFor(c.model); err == nil {
			params.Size = openai.ImageGenerateParamsSize(caps.SizeFor(cfg.AspectRatio))
		}
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return "", classifyAPIError(gateway.OpGenerateImage, err)
	}
	if len(resp.Data) == 0 {
		return "", apperrors.ModelUnavailable(nil, "image model returned no images")
	}

	img := resp.Data[0]
	switch {
	case img.B64JSON != "" && c.store != nil:
		ref, err := c.store(ctx, c.model, prompt.Text, img.B64JSON)
		if err != nil {
			return "", apperrors.InternalWrap(err, "failed to store generated image")
		}
		return ref, nil
	case img.URL != "":
		return domain.ImageRef(img.URL), nil
	default:
		return "", apperrors.ModelUnavailable(nil, "image model returned neither URL nor data")
	}
}

// CleanPrompt strips code fences, surrounding quotes and a leading "Prompt:" label
func CleanPrompt(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"') {
		s = s[1 : len(s)-1]
	}
	if label, rest, ok := strings.Cut(s, ":"); ok && strings.EqualFold(strings.TrimSpace(label), "prompt") {
		s = rest
	}
	return strings.TrimSpace(s)
}
