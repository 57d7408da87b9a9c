package conversation

import "strings"

// CommandKind distinguishes the two embedded directive forms.
type CommandKind int

const (
	// CommandExecution is written [< body >] and runs on the execution backend.
	CommandExecution CommandKind = iota
	// CommandSystem is written [( body )] and is interpreted by the engine.
	CommandSystem
)

func (k CommandKind) String() string {
	if k == CommandSystem {
		return "system"
	}
	return "execution"
}

// Command is a directive extracted from message text.
type Command struct {
	Kind CommandKind
	Body string
}

// ExtractCommands scans text left to right and returns every complete
// command in order. Openers inside a capture are plain text, and a capture
// still open at the end of input is dropped.
func ExtractCommands(text string) []Command {
	var (
		commands  []Command
		body      strings.Builder
		capturing bool
		closer    rune
		kind      CommandKind
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if !capturing {
			if r != '[' {
				continue
			}
			switch next {
			case '<':
				kind, closer = CommandExecution, '>'
			case '(':
				kind, closer = CommandSystem, ')'
			default:
				continue
			}
			capturing = true
			body.Reset()
			i++
			continue
		}

		if r == closer && next == ']' {
			commands = append(commands, Command{Kind: kind, Body: body.String()})
			capturing = false
			i++
			continue
		}
		body.WriteRune(r)
	}

	return commands
}
