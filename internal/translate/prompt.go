package translate

import (
	"fmt"
	"strings"

	"github.com/persistorai/threadline/internal/roster"
)

// Llama 3 chat template markers.
const (
	beginOfText = "<|begin_of_text|>"
	startHeader = "<|start_header_id|>"
	endHeader   = "<|end_header_id|>"
	endOfTurn   = "<|eot_id|>"
)

// PromptBuilder renders prompts for one language pair and roster.
type PromptBuilder struct {
	roster *roster.Roster
	source string
	target string
}

// NewPromptBuilder creates a PromptBuilder. source and target name the
// language turns, e.g. "Japanese" and "English".
func NewPromptBuilder(r *roster.Roster, source, target string) *PromptBuilder {
	return &PromptBuilder{roster: r, source: source, target: target}
}

// SpeakerPrefix is the label every generated line must begin with.
func SpeakerPrefix(target string) string {
	if target == "" {
		return ""
	}

	return "[" + target + "]: "
}

// Grammar returns a GBNF grammar forcing the output to begin with prefix.
func Grammar(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

	return `root ::= "` + r.Replace(prefix) + `" [^\x00]*`
}

// Build renders the metadata header, the window and the upcoming line. It
// fails only when a speaker label cannot be decoded.
func (b *PromptBuilder) Build(w *Window, speaker *string, line string) (string, error) {
	var sb strings.Builder

	if err := b.writeHeader(&sb, w, speaker, line); err != nil {
		return "", err
	}

	for _, e := range w.Entries() {
		b.writeTurn(&sb, b.source, speakerSource(e.Speaker), e.Source)
		b.writeTurn(&sb, b.target, speakerTarget(e.Speaker), e.Target)
	}

	src := ""
	if speaker != nil {
		src = *speaker
	}

	b.writeTurn(&sb, b.source, src, line)
	sb.WriteString(startHeader + b.target + endHeader + "\n\n")

	return sb.String(), nil
}

func (b *PromptBuilder) writeTurn(sb *strings.Builder, lang, speaker, text string) {
	sb.WriteString(startHeader + lang + endHeader + "\n\n")

	if speaker != "" {
		sb.WriteString("[" + speaker + "]: ")
	}

	sb.WriteString(text + endOfTurn)
}

// writeHeader lists the characters speaking in the window or upcoming line,
// the characters mentioned by name in the upcoming line, and glossary
// entries triggered anywhere in the window or upcoming line.
func (b *PromptBuilder) writeHeader(sb *strings.Builder, w *Window, speaker *string, line string) error {
	chars := make(map[*roster.Character]struct{})

	addSpeaker := func(label string) error {
		sp, err := b.roster.Decode(label)
		if err != nil {
			return fmt.Errorf("building prompt header: %w", err)
		}

		if sp.Character != nil {
			chars[sp.Character] = struct{}{}
		}

		return nil
	}

	sources := make([]string, 0, w.Len()+1)

	for _, e := range w.Entries() {
		if e.Speaker != nil {
			if err := addSpeaker(e.Speaker.Source); err != nil {
				return err
			}
		}

		sources = append(sources, e.Source)
	}

	if speaker != nil {
		if err := addSpeaker(*speaker); err != nil {
			return err
		}
	}

	for _, c := range b.roster.Mentioned(line) {
		chars[c] = struct{}{}
	}

	sb.WriteString(beginOfText + startHeader + "Metadata" + endHeader + "\n")

	for i := range b.roster.Characters {
		if _, ok := chars[&b.roster.Characters[i]]; ok {
			sb.WriteString("\n[character] " + b.roster.Characters[i].Display())
		}
	}

	for _, entry := range b.roster.Entries(append(sources, line)...) {
		sb.WriteString("\n" + entry)
	}

	sb.WriteString(endOfTurn)

	return nil
}

func speakerSource(p *SpeakerPair) string {
	if p == nil {
		return ""
	}

	return p.Source
}

func speakerTarget(p *SpeakerPair) string {
	if p == nil {
		return ""
	}

	return p.Target
}
