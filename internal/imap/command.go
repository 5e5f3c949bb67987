package imap

import (
	"fmt"
	"strings"
)

// Tag identifies one command on a session. Tags render as command_NN.
type Tag int

// FirstTag is the tag of the first command on a new session.
const FirstTag Tag = 1

// String formats the tag as sent on the wire.
func (t Tag) String() string {
	return fmt.Sprintf("command_%02d", int(t))
}

// Command is one tagged client command.
type Command struct {
	Tag  Tag
	Verb string
	Args string
}

// String formats the command line without its terminator.
func (c Command) String() string {
	if c.Args == "" {
		return c.Tag.String() + " " + c.Verb
	}
	return c.Tag.String() + " " + c.Verb + " " + c.Args
}

// nextCommand builds the command for verb and args using tag and returns it
// together with the tag for the following command.
func nextCommand(tag Tag, verb, args string) (Command, Tag) {
	return Command{Tag: tag, Verb: verb, Args: args}, tag + 1
}

// astring renders s as an IMAP atom when possible and as a quoted string
// otherwise.
func astring(s string) string {
	if s != "" && !strings.ContainsAny(s, " (){%*\"\\]\r\n") {
		return s
	}
	return quote(s)
}

func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}

// sequenceSet joins message identifiers into a comma separated set.
func sequenceSet(ids []string) string {
	return strings.Join(ids, ",")
}
