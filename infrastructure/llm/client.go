package llm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AzielCF/az-wabot/core/config"
	"github.com/dustin/go-humanize"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const (
	chatTimeout       = 60 * time.Second
	visionTimeout     = 90 * time.Second
	transcribeTimeout = 120 * time.Second

	// MaxAudioBytes matches the provider's transcription limit.
	MaxAudioBytes = 25 * 1024 * 1024
)

// transcribeBackoff is the delay schedule between transcription attempts.
var transcribeBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Client wraps the OpenAI-style provider with the three capabilities the
// bots need. Only Transcribe retries; Complete and CompleteVision surface
// the first failure to the caller.
type Client struct {
	inner openai.Client
	sleep func(time.Duration)
}

func NewClient(cfg config.LLMConfig) *Client {
	// Retry policy lives in Transcribe; the SDK must not add its own
	// attempts underneath it.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		inner: openai.NewClient(opts...),
		sleep: time.Sleep,
	}
}

// Complete performs a plain chat completion.
func (c *Client) Complete(ctx context.Context, model, system, userText string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(userText))

	completion, err := c.inner.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", &Error{Kind: KindPermanent, Message: "no choices in completion"}
	}
	return completion.Choices[0].Message.Content, nil
}

// CompleteVision performs a completion over a prompt plus one image. The
// image format is detected from magic bytes; unknown formats are rejected.
func (c *Client) CompleteVision(ctx context.Context, model, system, userText string, image []byte) (string, error) {
	format, ok := DetectImageFormat(image)
	if !ok {
		return "", &Error{Kind: KindUnsupported, Message: "unrecognized image format"}
	}

	callCtx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	dataURL := fmt.Sprintf("data:%s;base64,%s", format.Mime, base64.StdEncoding.EncodeToString(image))
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(userText),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(parts))

	completion, err := c.inner.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", &Error{Kind: KindPermanent, Message: "no choices in vision completion"}
	}
	return completion.Choices[0].Message.Content, nil
}

// Transcribe converts audio to text, retrying transient failures up to
// three attempts (2s, 4s, 8s). Each attempt re-forms the request with a
// fresh filename so the provider cannot serve a cached identity.
func (c *Client) Transcribe(ctx context.Context, model string, audio []byte, hintLanguage string) (string, error) {
	if len(audio) > MaxAudioBytes {
		return "", &Error{
			Kind:    KindTooLarge,
			Message: fmt.Sprintf("audio is %s, limit is %s", humanize.IBytes(uint64(len(audio))), humanize.IBytes(MaxAudioBytes)),
		}
	}
	format, ok := DetectAudioFormat(audio)
	if !ok {
		return "", &Error{Kind: KindUnsupported, Message: "unrecognized audio format"}
	}

	var lastErr error
	for attempt := 0; attempt < len(transcribeBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &Error{Kind: KindTransient, Message: ctx.Err().Error()}
			default:
			}
			c.sleep(transcribeBackoff[attempt-1])
		}

		text, err := c.transcribeOnce(ctx, model, audio, format, hintLanguage)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetriable(err) {
			return "", err
		}
		logrus.WithError(err).Warnf("[LLM] Transcription attempt %d/%d failed", attempt+1, len(transcribeBackoff))
	}
	return "", lastErr
}

func (c *Client) transcribeOnce(ctx context.Context, model string, audio []byte, format AudioFormat, hintLanguage string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	filename := freshFilename(format.Ext)
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(model),
		File:  openai.File(bytes.NewReader(audio), filename, format.Mime),
	}
	if hintLanguage != "" {
		params.Language = openai.String(hintLanguage)
	}

	resp, err := c.inner.Audio.Transcriptions.New(callCtx, params)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// freshFilename derives a unique upload name from wall clock plus a random
// suffix.
func freshFilename(ext string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("audio-%d-%s.%s", time.Now().UnixNano(), hex.EncodeToString(suffix), ext)
}
