// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventline

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"
)

// Error codes.
const (
	CodeEmptyLine   = "EMPTY_LINE"
	CodeSyntax      = "SYNTAX_ERROR"
	CodeMissingName = "MISSING_TARGET"
)

var parser *participle.Parser[Line]

func init() {
	var err error
	parser, err = NewParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build console line parser: %v", err))
	}
}

// Parse parses a single console line.
func Parse(text string) (*Line, error) {
	if strings.TrimSpace(text) == "" {
		return nil, oops.Code(CodeEmptyLine).In("eventline").New("empty line")
	}

	line, err := parser.ParseString("", text)
	if err != nil {
		return nil, oops.Code(CodeSyntax).In("eventline").With("line", text).Wrapf(err, "parsing console line")
	}

	if a := line.Admin; a != nil {
		switch {
		case a.Op == OpList && a.Target != "":
			return nil, oops.Code(CodeSyntax).In("eventline").With("line", text).Errorf("/%s takes no argument", a.Op)
		case a.Op != OpList && a.Target == "":
			return nil, oops.Code(CodeMissingName).In("eventline").With("line", text).Errorf("/%s requires a plugin name", a.Op)
		}
	}
	return line, nil
}
