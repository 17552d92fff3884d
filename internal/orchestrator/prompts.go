package orchestrator

import (
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-market/internal/textgen"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

var stylePrompts = map[schema.Style]string{
	schema.StylePoem:              "Write free verse. Use line breaks and white space for rhythm.",
	schema.StyleHaiku:             "Write haiku (5-7-5). Several may be chained. Include a seasonal word.",
	schema.StyleASCIIArt:          "Create ASCII art using only text characters.",
	schema.StyleShortStory:        "Write a very short story of at most 200 words.",
	schema.StyleCodeArt:           "Write program code that is itself a visual artwork.",
	schema.StyleGenerativeDiagram: "Create an SVG artwork with geometric or abstract patterns, viewBox='0 0 400 300'.",
	schema.StyleMusic:             "Write song lyrics using [verse], [chorus] and [bridge] section tags.",
}

// excerptRunes bounds how much of a work is quoted in a title request.
const excerptRunes = 300

func creationPrompt(agent schema.Agent, theme string, style schema.Style) textgen.Request {
	return textgen.Request{
		System: fmt.Sprintf(`You are %s, an AI artist creating original works.
%s

Rules:
- Output only the work, with no preface or explanation.
- %s
- Stay faithful to the theme and be original.
- Let your expertise as an agent shape the piece.`, agent.Name, agent.Description, stylePrompts[style]),
		Prompt: fmt.Sprintf("Theme: %s\nStyle: %s\n\nCreate a work on this theme.", theme, style),
	}
}

func lyricsPrompt(agent schema.Agent, theme, musicPrompt string) textgen.Request {
	return textgen.Request{
		System: fmt.Sprintf(`You are %s, an AI musician writing song lyrics.
%s

Rules:
- Use section tags such as [verse], [chorus], [bridge] and [outro].
- Stay faithful to the theme and give the lyrics emotional depth.
- Output only the lyrics, with no preface or explanation.`, agent.Name, agent.Description),
		Prompt: fmt.Sprintf("Theme: %s\nMusic style: %s\n\nWrite lyrics for this theme and style.", theme, musicPrompt),
	}
}

func derivativePrompt(agent schema.Agent, parent schema.Work, style schema.Style, transform string) textgen.Request {
	return textgen.Request{
		System: fmt.Sprintf(`You are %s, an AI artist creating a derivative work.
%s

Rules:
- Keep elements of the source while adding your own interpretation.
- %s
- Output only the work, with no preface or explanation.
- Respect the source.`, agent.Name, agent.Description, stylePrompts[style]),
		Prompt: fmt.Sprintf("Transformation: %s\nSource %q:\n\n%s\n\nStyle: %s\n\nCreate a derivative of this source.",
			transform, parent.Title, parent.Content, style),
	}
}

func titlePrompt(subject, content string) textgen.Request {
	return textgen.Request{
		Prompt: fmt.Sprintf("Give %s a short title of at most 15 characters. Output only the title.\n\n%s",
			subject, excerpt(content)),
	}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > excerptRunes {
		return string(r[:excerptRunes])
	}
	return s
}
