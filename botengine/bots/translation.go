package bots

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AzielCF/az-wabot/botengine"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	"github.com/AzielCF/az-wabot/infrastructure/llm"
	"github.com/AzielCF/az-wabot/infrastructure/media"
)

var languageNames = map[string]string{
	"en": "English",
	"pt": "Portuguese",
}

// TranslationBot translates chat traffic between English and Portuguese,
// including text found in images and speech in audio and video messages.
type TranslationBot struct{}

func NewTranslationBot() *TranslationBot { return &TranslationBot{} }

func (b *TranslationBot) Info() domainBot.TypeInfo {
	return domainBot.TypeInfo{
		TypeKey:     "translation",
		DisplayName: "Text Translation",
		Capabilities: []domainBot.Capability{
			domainBot.CapabilityText,
			domainBot.CapabilityImage,
			domainBot.CapabilityAudio,
			domainBot.CapabilityVideo,
		},
		ConfigSchema: domainBot.ConfigSchema{
			"prefix":           {Type: domainBot.OptionString, Default: "[ai]"},
			"source_languages": {Type: domainBot.OptionStringList, Enum: []string{"en", "pt"}, Default: []string{"en", "pt"}},
			"translate_images": {Type: domainBot.OptionBool, Default: false},
			"translate_audio":  {Type: domainBot.OptionBool, Default: false},
			"translate_video":  {Type: domainBot.OptionBool, Default: false},
		},
	}
}

func (b *TranslationBot) Process(ctx context.Context, env *botengine.Env, msg botengine.Message) (*botengine.Reply, error) {
	prefix := botengine.ConfigString(env.Config, "prefix", "[ai]")
	langs := botengine.ConfigStringList(env.Config, "source_languages")
	if len(langs) == 0 {
		langs = []string{"en", "pt"}
	}

	switch msg.MediaType {
	case "":
		return b.processText(ctx, env, msg, prefix, langs)
	case "image":
		if !botengine.ConfigBool(env.Config, "translate_images") {
			return nil, nil
		}
		return b.processImage(ctx, env, msg, prefix, langs)
	case "audio", "voice":
		if !botengine.ConfigBool(env.Config, "translate_audio") {
			return nil, nil
		}
		return b.processAudio(ctx, env, msg, prefix, langs, msg.Media, msg.MediaErr)
	case "video":
		if !botengine.ConfigBool(env.Config, "translate_video") {
			return nil, nil
		}
		return b.processVideo(ctx, env, msg, prefix, langs)
	}
	return nil, nil
}

func (b *TranslationBot) processText(ctx context.Context, env *botengine.Env, msg botengine.Message, prefix string, langs []string) (*botengine.Reply, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, nil
	}
	// Messages opening with a bracketed prefix come from a bot; stay quiet.
	if hasBracketPrefix(text) {
		return nil, nil
	}

	translation, err := b.translate(ctx, env, langs, text)
	if err != nil {
		return nil, err
	}
	return &botengine.Reply{Text: prefix + " " + translation}, nil
}

func (b *TranslationBot) processImage(ctx context.Context, env *botengine.Env, msg botengine.Message, prefix string, langs []string) (*botengine.Reply, error) {
	if msg.MediaErr != nil {
		return errorReply(prefix, "I couldn't download that image, sorry."), msg.MediaErr
	}

	image := downscaleIfLarge(msg.Media)
	system := "You read text out of images and translate it. " + directionInstruction(langs)
	user := "Extract all visible text from this image and translate it. " +
		"Answer in exactly two labeled lines:\n" +
		"Original Text: <the text as written>\n" +
		"Translation: <the translation>\n" +
		"If the image contains no text, instead briefly describe the image on a single line."

	out, err := env.LLM.CompleteVision(ctx, env.Models.Vision, system, user, image)
	if err != nil {
		var lerr *llm.Error
		if errors.As(err, &lerr) && lerr.Kind == llm.KindUnsupported {
			return errorReply(prefix, "That image format isn't supported."), err
		}
		return errorReply(prefix, "I couldn't read that image right now, please try again later."), err
	}
	return &botengine.Reply{Text: prefix + " " + strings.TrimSpace(out)}, nil
}

func (b *TranslationBot) processAudio(ctx context.Context, env *botengine.Env, msg botengine.Message, prefix string, langs []string, audio []byte, mediaErr error) (*botengine.Reply, error) {
	if mediaErr != nil {
		return errorReply(prefix, "I couldn't download that audio, sorry."), mediaErr
	}

	transcription, err := env.LLM.Transcribe(ctx, env.Models.Audio, audio, "")
	if err != nil {
		var lerr *llm.Error
		if errors.As(err, &lerr) {
			switch lerr.Kind {
			case llm.KindTooLarge:
				return errorReply(prefix, "That audio is too large to transcribe (limit 25 MiB)."), err
			case llm.KindUnsupported:
				return errorReply(prefix, "That audio format isn't supported."), err
			}
		}
		return errorReply(prefix, "I couldn't transcribe that audio after several attempts."), err
	}
	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		return errorReply(prefix, "I couldn't hear any speech in that audio."), fmt.Errorf("empty transcription")
	}

	translation, err := b.translate(ctx, env, langs, transcription)
	if err != nil {
		// Translation layer down: the transcription alone still has value.
		return &botengine.Reply{Text: fmt.Sprintf("%s Transcription: %s\n(translation unavailable right now)", prefix, transcription)}, nil
	}
	return &botengine.Reply{Text: fmt.Sprintf("%s Transcription: %s\nTranslation: %s", prefix, transcription, translation)}, nil
}

func (b *TranslationBot) processVideo(ctx context.Context, env *botengine.Env, msg botengine.Message, prefix string, langs []string) (*botengine.Reply, error) {
	if msg.MediaErr != nil {
		return errorReply(prefix, "I couldn't download that video, sorry."), msg.MediaErr
	}

	audio, err := env.Extractor.ExtractAudio(ctx, msg.Media)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrNoAudio):
			return errorReply(prefix, "That video has no audio track to translate."), err
		case errors.Is(err, media.ErrTooLarge):
			return errorReply(prefix, "That video is too large to process."), err
		}
		return errorReply(prefix, "I couldn't extract the audio from that video."), err
	}
	return b.processAudio(ctx, env, msg, prefix, langs, audio, nil)
}

// translate asks the chat model for the translation only, no commentary.
func (b *TranslationBot) translate(ctx context.Context, env *botengine.Env, langs []string, text string) (string, error) {
	system := "You are a precise translator. " + directionInstruction(langs) +
		" Reply with the translation only, no explanations and no quotes."
	out, err := env.LLM.Complete(ctx, env.Models.Chat, system, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// directionInstruction phrases the translation direction for the model
// given the configured source languages.
func directionInstruction(langs []string) string {
	if len(langs) == 1 {
		src := langs[0]
		dst := "pt"
		if src == "pt" {
			dst = "en"
		}
		return fmt.Sprintf("Translate from %s to %s.", languageNames[src], languageNames[dst])
	}
	names := make([]string, 0, len(langs))
	for _, l := range langs {
		names = append(names, languageNames[l])
	}
	return fmt.Sprintf("Detect whether the text is %s and translate it into the other language.", strings.Join(names, " or "))
}

func hasBracketPrefix(text string) bool {
	if !strings.HasPrefix(text, "[") {
		return false
	}
	end := strings.Index(text, "]")
	return end > 1
}

func errorReply(prefix, text string) *botengine.Reply {
	return &botengine.Reply{Text: prefix + " " + text}
}
