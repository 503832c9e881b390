package bots

import (
	"context"
	"strings"

	"github.com/AzielCF/az-wabot/botengine"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
)

// JokeBot replies to any text message with a short joke themed by it.
type JokeBot struct{}

func NewJokeBot() *JokeBot { return &JokeBot{} }

func (b *JokeBot) Info() domainBot.TypeInfo {
	return domainBot.TypeInfo{
		TypeKey:      "joke",
		DisplayName:  "Joke",
		Capabilities: []domainBot.Capability{domainBot.CapabilityText},
		ConfigSchema: domainBot.ConfigSchema{
			"prefix": {Type: domainBot.OptionString, Default: "[joke]"},
		},
	}
}

func (b *JokeBot) Process(ctx context.Context, env *botengine.Env, msg botengine.Message) (*botengine.Reply, error) {
	if msg.MediaType != "" {
		return nil, nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || hasBracketPrefix(text) {
		return nil, nil
	}

	prefix := botengine.ConfigString(env.Config, "prefix", "[joke]")
	system := "You tell short, family-friendly jokes. Given a chat message, reply with one joke themed by it. One or two sentences, no preamble."
	joke, err := env.LLM.Complete(ctx, env.Models.Chat, system, text)
	if err != nil {
		return nil, err
	}
	return &botengine.Reply{Text: prefix + " " + strings.TrimSpace(joke)}, nil
}
