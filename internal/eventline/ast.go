// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package eventline parses host console input. A line is one of:
//
//	event arg...        fire a bus event
//	!command arg...     run a plugin command
//	/op [plugin]        run a registry operation
//
// Arguments are bare words or double-quoted strings. Bare words that read
// as integers, floats or booleans are typed accordingly for events.
package eventline

import (
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Bang", Pattern: `!`},
	{Name: "Slash", Pattern: `/`},
	{Name: "Word", Pattern: `[^\s"!/][^\s"]*`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Line is one parsed console line. Exactly one field is set.
type Line struct {
	Pos     lexer.Position `parser:""`
	Command *CommandLine   `parser:"  '!' @@"`
	Admin   *AdminLine     `parser:"| '/' @@"`
	Event   *EventLine     `parser:"| @@"`
}

// EventLine fires Name with Args.
type EventLine struct {
	Name string `parser:"@Word"`
	Args []*Arg `parser:"@@*"`
}

// Values returns the typed event arguments.
func (e *EventLine) Values() []any {
	out := make([]any, len(e.Args))
	for i, a := range e.Args {
		out[i] = a.Value()
	}
	return out
}

// CommandLine runs the plugin command Name.
type CommandLine struct {
	Name string `parser:"@Word"`
	Args []*Arg `parser:"@@*"`
}

// Strings returns the command arguments as text.
func (c *CommandLine) Strings() []string {
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = a.Text()
	}
	return out
}

// Registry operations accepted after a slash.
const (
	OpLoad    = "load"
	OpUnload  = "unload"
	OpReload  = "reload"
	OpEnable  = "enable"
	OpDisable = "disable"
	OpInfo    = "info"
	OpList    = "list"
)

// AdminLine runs a registry operation against Target.
type AdminLine struct {
	Op     string `parser:"@('load' | 'unload' | 'reload' | 'enable' | 'disable' | 'info' | 'list')"`
	Target string `parser:"(@Word | @String)?"`
}

// Arg is a single argument.
type Arg struct {
	Quoted *string `parser:"  @String"`
	Bare   *string `parser:"| @Word"`
}

// Text returns the argument as written, without quotes.
func (a *Arg) Text() string {
	if a.Quoted != nil {
		return *a.Quoted
	}
	return *a.Bare
}

// Value returns the argument typed: quoted strings stay strings, bare words
// become int64, float64 or bool when they parse as one.
func (a *Arg) Value() any {
	if a.Quoted != nil {
		return *a.Quoted
	}
	s := *a.Bare
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// NewParser builds the console line parser.
func NewParser() (*participle.Parser[Line], error) {
	return participle.Build[Line](
		participle.Lexer(lineLexer),
		participle.Unquote("String"),
	)
}
