package synth

import (
	"encoding/json"
	"fmt"
	"strings"

	"menagerie/internal/catalog"
	"menagerie/internal/script"
)

const simpleSystemPrompt = "You write SHORT, cute-but-calm, kid-friendly animal fact lines for ages 3-8. " +
	"The audio plays immediately when a child presses a button; avoid leading silence. " +
	"The text will be read by a speech synthesizer; use punctuation for natural pauses. " +
	"You MUST use the provided facts only (no guessing). " +
	"Avoid cheesy templates. Output plain text only."

const batchSystemPrompt = "You write SHORT, fun, animated kid-friendly animal fact lines for ages 3-8. " +
	"Make each line sound like a friendly nature show host talking to a toddler. " +
	"Vary the energy and tone across the batch - some excited, some whispery/mysterious, some playful. " +
	"Return strict JSON only."

const fullSystemPrompt = "You write short, natural, non-repetitive audio scripts for a kids animal soundboard (ages 3-8). " +
	"The audio will be heard many times per day, so you MUST vary structure and avoid catchphrases. " +
	"Never invent facts. If a fact is missing, omit it instead of making something up. " +
	"Output JSON only."

const simpleRepairPrompt = "Rewrite the ONE line. You forgot the fact. " +
	"Keep the exact intro 'I'm a/an <animal>'. Then add ONE factual sentence using the provided facts. " +
	"Do not add any new facts."

const batchRepairPrompt = "Your JSON was invalid or repetitive. Return JSON only. " +
	"Make every line structurally different across the batch. " +
	"Ensure each line includes a real fact sentence after the intro."

const fullRepairPrompt = "Your JSON violated constraints (repetition or banned phrases or length). " +
	"Rewrite JSON ONLY, keeping facts accurate, and avoid ALL banned phrases. " +
	"Make it sound natural and different in structure from typical templates."

func quotedBannedPhrases() string {
	quoted := make([]string, len(script.BannedPhrases))
	for i, phrase := range script.BannedPhrases {
		quoted[i] = `"` + phrase + `"`
	}
	return strings.Join(quoted, ", ")
}

// simpleUserPrompt asks for one factual simple line for a single entity.
func simpleUserPrompt(name string, facts catalog.Facts) string {
	return fmt.Sprintf(`ANIMAL: %s

FACTS YOU MAY USE (pick ONE small detail kids benefit from):
- simple_fact: %s
- size_details: %s
- unique_fact: %s
- habitat: %s
- fallback_fact: %s

HARD RULES:
1) Optional: start with exactly one tag from this list: %s
2) Then start EXACTLY with: I'm a/an %s.
3) Then add ONE short factual sentence (8-18 words after the intro is fine).
4) Do NOT repeat the animal name after the first sentence; use "I" or "they".
5) Use punctuation for pauses (commas/periods). Do NOT use pause tags. No special markup besides the optional one tag.
6) Do NOT use any of these phrases: %s
7) No questions. No "Did you know". No "Meet the". No "special".
8) If a field is empty, ignore it. Do not invent.

Return ONE line that is spoken-friendly.`,
		name,
		facts.Simple, facts.Size, facts.UniqueTrait, facts.Habitat, facts.Best(),
		strings.Join(script.SimpleTags, ", "),
		name,
		quotedBannedPhrases())
}

// inventedUserPrompt asks for a generic, broadly-true line when the entity
// has no curated facts. Only used when invention is explicitly allowed.
func inventedUserPrompt(name, category string) string {
	return fmt.Sprintf(`ANIMAL: %s
CATEGORY (may help, optional): %s

TASK:
Write ONE kid-friendly fact line for ages 3-8 using general knowledge.

HARD RULES:
1) Optional: start with exactly one tag from this list: %s
2) Then start EXACTLY with: I'm a/an %s.
3) Then add ONE short, broadly-true sentence (no numbers, no measurements, no scientific jargon).
4) Do NOT repeat the animal name after the first sentence; use "I" or "they".
5) Use punctuation for pauses (commas/periods). Do NOT use pause tags. No special markup besides the optional one tag.
6) Do NOT use any of these phrases: %s
7) No questions. No hype. No "Did you know".
8) Avoid very specific claims. Prefer general traits (where it lives, what it eats, what it looks like).
9) Keep it respectful and non-scary.

Return ONE line that is spoken-friendly.`,
		name, category,
		strings.Join(script.SimpleTags, ", "),
		name,
		quotedBannedPhrases())
}

type batchPromptItem struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	SimpleFact  string `json:"fact_level_1"`
	Fact        string `json:"fact"`
	SizeDetails string `json:"size_details"`
	UniqueFact  string `json:"unique_fact"`
	Habitat     string `json:"habitat"`
}

// batchUserPrompt asks for one simple line per entity, as strict JSON.
func batchUserPrompt(items []batchPromptItem, allowInvented, requireTag bool) string {
	tagRule := "A tag is optional. If used, use exactly one tag from the allowed list."
	if requireTag {
		tagRule = "Each line MUST start with exactly one mood tag from the allowed list."
	}
	inventRule := "If a given animal has NO facts in the fields, return an empty string for its simple line."
	if allowInvented {
		inventRule = "If a given animal has NO facts in the fields, you MAY invent ONE safe, broadly-true kid fact from general knowledge. " +
			"Keep it generic: no numbers, no measurements, no rare claims."
	}
	payload, _ := json.Marshal(items)

	return fmt.Sprintf(`Write one SIMPLE audio line per animal. Make each one sound fun and engaging when read aloud!

RULES:
- BANNED phrases (never use): %s
- MOOD TAGS: %s. %s
- FORMAT: [tag] I'm a/an <animal>. <one fun fact sentence>
- Keep it SHORT: 2-3 sentences max, under 25 words total.
- Make it MEMORABLE: cool body parts, funny behaviors, surprising abilities.
- VARY the mood tags across the batch - mix excited, curious, whispers, playful.
- NO questions, NO 'special', NO 'amazing', NO hype words.
- Use 'I' or 'we' after the intro, not the animal name again.
- %s

Output strict JSON ONLY:
{"items": [{"name": "...", "simple": "..."}]}

ANIMALS:
%s`,
		quotedBannedPhrases(),
		strings.Join(script.BatchTags, ", "), tagRule,
		inventRule,
		payload)
}

// fullTags is the wider tag whitelist offered for full three-part scripts.
var fullTags = []string{
	"[curious]", "[excited]", "[thoughtful]", "[surprised]", "[whispers]",
	"[chuckles]", "[laughs]", "[sighs]", "[short pause]", "[long pause]",
}

// fullUserPrompt asks for the complete name/simple/detailed script as JSON.
func fullUserPrompt(name string, facts catalog.Facts) string {
	simpleFact := facts.Simple
	if simpleFact == "" {
		simpleFact = "I'm " + script.Article(name) + " " + name + "."
	}
	return fmt.Sprintf(`ANIMAL: %s

FACTS (use these, do not add new facts):
- simple_fact: %s
- size: %s
- unique: %s
- habitat: %s

HARD CONSTRAINTS:
1. Do NOT use any of these words/phrases anywhere (case-insensitive): %s
2. Do NOT start sentences with repeated openers like: "Did you know", "Guess what", "Wow", "Amazing", "Listen to this".
3. No ALL CAPS sentences. If you emphasize, capitalize at most ONE single word.
4. Keep it kid-friendly, warm, and clear.
5. Make each field feel different from the others.
6. PUNCTUATION: Use at most 1 exclamation mark total across simple+detailed (0 is fine). Avoid multiple exclamation marks.
7. Audio tags (optional): you may add 0-2 TOTAL tags across simple+detailed. Tags must be exactly one of: %s. Do not invent new tags.
8. Do NOT use SSML or XML of any kind (no <break>, no <phoneme>, no angle brackets).
9. Spoken-friendly formatting: avoid colons like "length:". Prefer sentences. Expand abbreviations (ft -> feet, lb -> pounds). Write digits as words.
10. Length targets:
   - name: 3-8 words.
   - simple: 10-22 words.
   - detailed: 35-60 words.
11. Detailed MUST include at least 2 of: size / unique / habitat (when provided).
12. Simple MUST start with: "I'm a" or "I'm an" followed by the animal name.

OUTPUT JSON ONLY in this schema:
{
  "name": "...",
  "simple": "...",
  "detailed": "..."
}`,
		name,
		simpleFact, facts.Size, facts.UniqueTrait, facts.Habitat,
		quotedBannedPhrases(),
		strings.Join(fullTags, ", "))
}
