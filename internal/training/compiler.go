// Package training compiles conversations into supervised training
// examples: one rendered prompt per eligible message of the primary user.
package training

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zaporter/jake/internal/conversation"
	"github.com/zaporter/jake/internal/logging"
)

// TimeFormat is how the target message time appears in the prompt metadata.
const TimeFormat = "2006-01-02 15:04:05"

// DefaultTemplate is the embedded prompt template.
const DefaultTemplate = "prompt.txt.tmpl"

var (
	ErrNotEligible = errors.New("message is not a training target")
	ErrOutOfRange  = errors.New("message index out of range")
)

// MessageEntry is one rendered history turn.
type MessageEntry struct {
	Author string
	Value  string
}

// MetaEntry is one key of the prompt metadata block.
type MetaEntry struct {
	Key   string
	Value string
}

// PromptData is what the prompt template is rendered with.
type PromptData struct {
	Messages []MessageEntry
	Meta     []MetaEntry
	Response string
}

// Compiler turns conversations into rendered training examples.
type Compiler struct {
	renderer Renderer
	template string
}

// NewCompiler returns a compiler rendering template through renderer.
func NewCompiler(renderer Renderer, template string) *Compiler {
	if template == "" {
		template = DefaultTemplate
	}
	return &Compiler{renderer: renderer, template: template}
}

// Eligible reports whether m becomes a training example.
func Eligible(m conversation.Message) bool {
	return m.User.IsPrimary() && !m.Meta.ExcludeFromTraining
}

// Examples renders one example per eligible message, in conversation order.
func (c *Compiler) Examples(conv *conversation.Conversation) ([]string, error) {
	var out []string
	for i, m := range conv.Messages {
		if !Eligible(m) {
			continue
		}
		text, err := c.Example(conv, i)
		if err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	logging.TrainingDebug("Conversation %s: %d example(s) from %d message(s)", conv.ID, len(out), len(conv.Messages))
	return out, nil
}

// Example renders the training example whose target is the message at i.
// The exclusion flag is not consulted here, only the author.
func (c *Compiler) Example(conv *conversation.Conversation, i int) (string, error) {
	if i < 0 || i >= len(conv.Messages) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(conv.Messages))
	}
	target := conv.Messages[i]
	if !target.User.IsPrimary() {
		return "", fmt.Errorf("%w: message %s at %d is authored by %s", ErrNotEligible, target.ID, i, target.User)
	}

	data, err := BuildPromptData(conv.Messages[:i], target, conv)
	if err != nil {
		return "", fmt.Errorf("prompt data for message %s: %w", target.ID, err)
	}
	return c.renderer.Render(c.template, data)
}

// BuildPromptData windows history and assembles the template input for target.
func BuildPromptData(history []conversation.Message, target conversation.Message, conv *conversation.Conversation) (PromptData, error) {
	meta, err := metaEntries(target, conv)
	if err != nil {
		return PromptData{}, err
	}

	kept := Window(history)
	entries := make([]MessageEntry, len(kept))
	for i, m := range kept {
		entries[i] = messageEntry(m)
	}

	return PromptData{Messages: entries, Meta: meta, Response: target.Text}, nil
}

// Window applies omission windowing to history. Walking from newest to
// oldest, a message carrying OmitHistoryUntil hides everything older until
// the message with that id, which is kept and may start a window of its own.
func Window(history []conversation.Message) []conversation.Message {
	var (
		kept      []conversation.Message
		omitUntil string
	)
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if omitUntil != "" {
			if m.ID != omitUntil {
				continue
			}
			omitUntil = ""
		}
		if m.Meta.OmitHistoryUntil != "" {
			omitUntil = m.Meta.OmitHistoryUntil
		}
		kept = append(kept, m)
	}

	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

func messageEntry(m conversation.Message) MessageEntry {
	return MessageEntry{
		Author: m.User.String(),
		Value:  "\t" + strings.ReplaceAll(m.Text, "\n", "\n\t"),
	}
}

func metaEntries(target conversation.Message, conv *conversation.Conversation) ([]MetaEntry, error) {
	entries := []MetaEntry{{Key: "Time", Value: target.Time.UTC().Format(TimeFormat)}}

	stack, err := conv.TaskStack(target.ID, false)
	if err != nil {
		return nil, err
	}
	if len(stack) > 0 {
		var b strings.Builder
		for _, t := range stack {
			fmt.Fprintf(&b, "\t- %s\n", t.Name)
		}
		entries = append(entries, MetaEntry{Key: "Tasks", Value: strings.TrimRight(b.String(), " \t\r\n")})
	}
	return entries, nil
}
