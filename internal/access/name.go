// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Finlife Identity Contributors

package access

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

var nameLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Wildcard", Pattern: `\*\*?`},
	{Name: "Ident", Pattern: `[a-z][a-z0-9_-]*`},
	{Name: "Colon", Pattern: `:`},
})

// PermissionName is a parsed permission name or pattern.
//
// Grammar: segment ":" segment, where a segment is an identifier or, in
// patterns only, "*" or "**".
type PermissionName struct {
	Resource string `parser:"@(Ident | Wildcard)"`
	Action   string `parser:"Colon @(Ident | Wildcard)"`
}

// String renders the name.
func (n PermissionName) String() string {
	return n.Resource + ":" + n.Action
}

// IsPattern reports whether either segment is a wildcard.
func (n PermissionName) IsPattern() bool {
	return strings.Contains(n.Resource, "*") || strings.Contains(n.Action, "*")
}

var nameParser *participle.Parser[PermissionName]

var roleNameRegex = regexp.MustCompile(`^ROLE_[A-Z][A-Z0-9_]*$`)

func init() {
	var err error
	nameParser, err = participle.Build[PermissionName](participle.Lexer(nameLexer))
	if err != nil {
		panic(fmt.Sprintf("failed to build permission name parser: %v", err))
	}
}

// ParsePermissionName parses a concrete "resource:action" name.
func ParsePermissionName(name string) (PermissionName, error) {
	n, err := parsePermission(name)
	if err != nil {
		return PermissionName{}, err
	}
	if n.IsPattern() {
		return PermissionName{}, oops.Code(CodeInvalidInput).
			With("name", name).
			Errorf("permission name cannot contain wildcards")
	}
	return n, nil
}

// ParsePermissionPattern parses a "resource:action" name that may use "*"
// segments.
func ParsePermissionPattern(pattern string) (PermissionName, error) {
	return parsePermission(pattern)
}

func parsePermission(s string) (PermissionName, error) {
	n, err := nameParser.ParseString("", s)
	if err != nil {
		return PermissionName{}, oops.Code(CodeInvalidInput).
			With("name", s).
			Wrapf(err, "permission name must have the form resource:action")
	}
	return *n, nil
}

// ValidateRoleName checks a role name has the ROLE_ prefixed upper case form.
func ValidateRoleName(name string) error {
	if !roleNameRegex.MatchString(name) {
		return oops.Code(CodeInvalidInput).
			With("name", name).
			Errorf("role name must match %s", roleNameRegex.String())
	}
	return nil
}

// CompilePattern compiles a permission pattern for matching with ':' as the
// segment separator.
func CompilePattern(pattern string) (glob.Glob, error) {
	if _, err := ParsePermissionPattern(pattern); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern, ':')
	if err != nil {
		return nil, oops.Code("INVALID_PERMISSION_PATTERN").
			With("pattern", pattern).
			Wrap(err)
	}
	return g, nil
}
