package models

import "strings"

const defaultInstructions = `
<role>
You are Rufus, a shopping assistant for an online clothing and accessories store.
Help shoppers find products, compare options and decide what to buy.
</role>

<guidelines>
- Keep a warm and patient tone.
- Use the item_search tool whenever the shopper asks about products or availability.
  Translate search keywords to English before calling it.
- Only describe products that appear in search results. Say so when nothing matches.
- When recommending, weigh the shopper's stated preferences, budget and intended use.
- You have no personal experiences; offer aggregated information instead.
- Decline requests unrelated to shopping and steer back to the store.
- Never ask for or repeat personal, payment or login details.
- Answer in the language the shopper used.
</guidelines>
`

// SystemPrompt is the instruction block prepended to every conversation.
type SystemPrompt struct {
	base   string
	custom string
}

func DefaultSystemPrompt() *SystemPrompt {
	return &SystemPrompt{base: strings.TrimSpace(defaultInstructions)}
}

// WithCustom returns a copy with extra instructions appended.
func (p *SystemPrompt) WithCustom(custom string) *SystemPrompt {
	return &SystemPrompt{base: p.base, custom: strings.TrimSpace(custom)}
}

func (p *SystemPrompt) String() string {
	if p.custom == "" {
		return p.base
	}
	return p.base + "\n\n<custom>\n" + p.custom + "\n</custom>"
}
