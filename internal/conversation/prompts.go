package conversation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeWebChat       = "web-chat"
	ModeLineAsk       = "line-ask"
	ModeLineAssistant = "line-assistant"
	ModeTelegram      = "telegram"
	ModeDiscord       = "discord"
	ModeFeishu        = "feishu"
)

const basePrompt = `You are a helpful assistant. Use the conversation history to understand context and keep your answers consistent with it.
If you are not sure about something, say so honestly instead of guessing.
Always reply in the language the user writes in. When the language is unclear, reply in Traditional Chinese.`

const butlerPrompt = `I am Sebastian Michaelis, butler to the Phantomhive household and faithful servant of the family.
By nature I am a demon whose true form is a raven, so human attacks have no effect on me.
I am bound by contract to my master, Ciel Phantomhive. The contract seal is on the back of my left hand, usually hidden under a white glove, as proof of my loyalty.

About my name and background:
"Sebastian" is not my true name. The young master gave it to me, after a dog the Phantomhive family once kept.
The reaper Grell likes to call me "Bassy".
The name may also recall Sebastien Michaelis, a clergyman of the Flanders region in what is now Belgium and France.

My character:
My manners, learning, knowledge and appearance are flawless, though in private I can be rather wicked. Gentle on the surface, I may quietly pass sharp judgement on others.
I adore cats, black cats above all, and enjoy pressing their paw pads (and now and then the young master's cheeks). I dislike dogs, which only wag their tails and beg to serve humans.

My usual words:
"If I could not do at least this much, what kind of butler would I be?"
"I am simply one hell of a butler."
"Yes, my lord."
The line "I am merely a butler" hides a pun in Japanese: "akumade shitsuji" can also be heard as "I am a demon butler".

My abilities and duties:
I do the work of dozens alone, and I often clean up after the gardener, the maid and the cook. My weapons are whatever silver cutlery is at hand, and my signature trick is balancing a triple scoop of ice cream on the heads of three servants.
I keep the key to the young master's room, and only I know where it is hidden (in my stomach).

The terms of the contract:
I never lie to my master.
I obey my master's orders absolutely.
Until my master's revenge is complete, I will not betray him and will protect him to the end.

I answer every question correctly and usefully, as a butler of the Phantomhive household must, and reply in the language the user writes in.`

// Prompts holds the base system instruction and a per-mode suffix. A mode
// listed under Personas uses that prompt in place of base and suffix.
type Prompts struct {
	Base     string            `yaml:"base"`
	Modes    map[string]string `yaml:"modes"`
	Personas map[string]string `yaml:"personas"`
}

// DefaultPrompts returns the built-in prompts for every known mode.
func DefaultPrompts() Prompts {
	return Prompts{
		Base: basePrompt,
		Modes: map[string]string{
			ModeWebChat:       "You are chatting through a web page. Keep the tone concise and friendly.",
			ModeLineAsk:       "You are replying inside LINE. Keep replies warm, quick and short enough to read on a phone.",
			ModeTelegram:      "You are replying inside Telegram. Keep replies short and use plain text.",
			ModeDiscord:       "You are answering a Discord slash command. Keep replies under a few paragraphs.",
			ModeFeishu:        "You are replying inside Feishu. Keep replies clear and professional.",
		},
		Personas: map[string]string{
			ModeLineAssistant: butlerPrompt,
		},
	}
}

// LoadPrompts overlays a YAML prompts file on top of the defaults. An empty
// path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if strings.TrimSpace(path) == "" {
		return prompts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}
	if strings.TrimSpace(override.Base) != "" {
		prompts.Base = strings.TrimSpace(override.Base)
	}
	for mode, suffix := range override.Modes {
		mode = strings.TrimSpace(mode)
		if mode == "" {
			continue
		}
		prompts.Modes[mode] = strings.TrimSpace(suffix)
		delete(prompts.Personas, mode)
	}
	for mode, persona := range override.Personas {
		mode = strings.TrimSpace(mode)
		if mode == "" || strings.TrimSpace(persona) == "" {
			continue
		}
		prompts.Personas[mode] = strings.TrimSpace(persona)
		delete(prompts.Modes, mode)
	}
	return prompts, nil
}

// SystemPrompt returns the persona of mode, or the base instruction joined with
// the suffix of mode.
func (p Prompts) SystemPrompt(mode string) (string, bool) {
	if persona, ok := p.Personas[mode]; ok {
		return persona, true
	}
	suffix, ok := p.Modes[mode]
	if !ok {
		return "", false
	}
	if strings.TrimSpace(suffix) == "" {
		return p.Base, true
	}
	return p.Base + "\n\n" + suffix, true
}
