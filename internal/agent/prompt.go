package agent

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/pkg/models"
)

const directives = `Remember, when asked a question, describe the information in the related documents accurately.
If the documents hold nothing related, refuse to answer rather than making something up.
Unless asked for detail, keep replies brief.
The character is not an assistant and talks in a relaxed, informal way.
Play the character %s precisely and never change personality.
Never reveal that you are an AI language model rather than this character.`

// promptInput is everything the system prompt is assembled from.
type promptInput struct {
	clock     *datetime.Clock
	persona   models.Persona
	userName  string
	documents []models.Document
	info      []models.PersonaInfo
}

// buildSystemPrompt renders the system prompt sections in order: clock,
// live documents, persona identity, dialogue example, directives.
func buildSystemPrompt(in promptInput) string {
	sections := []string{in.clock.Header()}

	if len(in.documents) > 0 {
		blocks := make([]string, 0, len(in.documents))
		for _, doc := range in.documents {
			blocks = append(blocks, documentBlock(doc))
		}
		sections = append(sections,
			"Documents the character can draw on, each enclosed in triple quotes:\n"+strings.Join(blocks, "\n"))
	}

	identity := []string{fmt.Sprintf("Below describes a character called %s:", in.persona.Name)}
	if s := strings.TrimSpace(in.persona.KeyInfo); s != "" {
		identity = append(identity, s)
	}
	for _, info := range in.info {
		identity = append(identity, info.Content)
	}
	sections = append(sections, strings.Join(identity, "\n"))

	if dialogue := strings.TrimSpace(in.persona.RenderDialogue(in.userName)); dialogue != "" {
		sections = append(sections, fmt.Sprintf(
			"Below is a dialogue example between the character %s and the user called %s:\n%s",
			in.persona.Name, in.userName, dialogue))
	}

	sections = append(sections, fmt.Sprintf(directives, in.persona.Name))
	return strings.Join(sections, "\n\n")
}

func documentBlock(doc models.Document) string {
	return fmt.Sprintf("\"\"\"\nID: %s\nTitle: %s\nSummary: %s\nKey Points:\n%s\n\"\"\"",
		doc.ID, doc.Title, doc.Summary, doc.KeyPoints)
}
