package fonts

import (
	"strings"

	"github.com/typetrace/fontinspector/internal/inspector"
)

// Generic CSS families that never map to a loadable font.
var genericFamilies = map[string]bool{
	"serif":         true,
	"sans-serif":    true,
	"monospace":     true,
	"cursive":       true,
	"fantasy":       true,
	"system-ui":     true,
	"ui-serif":      true,
	"ui-sans-serif": true,
	"ui-monospace":  true,
	"ui-rounded":    true,
	"math":          true,
	"emoji":         true,
	"inherit":       true,
	"initial":       true,
	"unset":         true,
}

// cssSheet holds what one stylesheet contributed.
type cssSheet struct {
	faces    []inspector.FontFace
	families []string
	imports  []string
}

// scanCSS walks a stylesheet and collects @font-face rules, font-family
// declarations, and @import targets. It is comment- and string-aware but
// deliberately not a full CSS parser: selectors and values it does not
// recognize are skipped, never errors.
func scanCSS(css string) cssSheet {
	var sheet cssSheet
	s := newScanner(css)
	for !s.done() {
		s.skipSpaceAndComments()
		if s.done() {
			break
		}
		if s.peekByte() == '@' {
			name := s.readAtName()
			switch strings.ToLower(name) {
			case "@font-face":
				block, ok := s.readBlock()
				if ok {
					if face, valid := parseFontFace(block); valid {
						sheet.faces = append(sheet.faces, face)
					}
				}
			case "@import":
				target := s.readUntil(';')
				if url := extractImportURL(target); url != "" {
					sheet.imports = append(sheet.imports, url)
				}
			case "@media", "@supports", "@layer":
				// Conditional group rules nest full rule lists; recurse.
				s.readUntil('{')
				inner, ok := s.readNestedBlockBody()
				if ok {
					nested := scanCSS(inner)
					sheet.faces = append(sheet.faces, nested.faces...)
					sheet.families = append(sheet.families, nested.families...)
					sheet.imports = append(sheet.imports, nested.imports...)
				}
			default:
				// Other at-rules (keyframes, page, charset...) carry no fonts.
				s.skipRule()
			}
			continue
		}
		// Ordinary style rule: selector then declaration block.
		s.readUntil('{')
		block, ok := s.readNestedBlockBody()
		if !ok {
			break
		}
		sheet.families = append(sheet.families, familiesFromDeclarations(block)...)
	}
	return sheet
}

// parseFontFace turns a @font-face declaration block into a FontFace.
func parseFontFace(block string) (inspector.FontFace, bool) {
	var face inspector.FontFace
	for _, decl := range splitDeclarations(block) {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		switch prop {
		case "font-family":
			face.Family = unquote(value)
		case "font-style":
			face.Style = strings.ToLower(value)
		case "font-weight":
			face.Weight = strings.ToLower(value)
		case "font-display":
			face.Display = strings.ToLower(value)
		case "unicode-range":
			face.UnicodeRange = value
		case "src":
			face.Sources = parseSrc(value)
		}
	}
	return face, face.Family != ""
}

// parseSrc parses a @font-face src value: comma-separated url()/local()
// entries, each optionally followed by format().
func parseSrc(value string) []inspector.FontSource {
	var sources []inspector.FontSource
	for _, part := range splitTopLevel(value, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var src inspector.FontSource
		lower := strings.ToLower(part)
		switch {
		case strings.HasPrefix(lower, "url("):
			src.URL = unquote(insideParens(part))
		case strings.HasPrefix(lower, "local("):
			src.Local = unquote(insideParens(part))
		default:
			continue
		}
		if idx := strings.Index(lower, "format("); idx >= 0 {
			src.Format = strings.ToLower(unquote(insideParens(part[idx:])))
		}
		if src.URL == "" && src.Local == "" {
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// familiesFromDeclarations extracts font families from font-family and the
// font shorthand inside a declaration block.
func familiesFromDeclarations(block string) []string {
	var families []string
	for _, decl := range splitDeclarations(block) {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(prop)) {
		case "font-family":
			families = append(families, splitFamilyList(value)...)
		case "font":
			families = append(families, familiesFromShorthand(value)...)
		}
	}
	return families
}

// familiesFromShorthand pulls the family list out of a font shorthand value.
// The family list is everything after the size (the first token containing a
// slash or a digit followed by a unit); system keywords yield nothing.
func familiesFromShorthand(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	tokens := splitTopLevel(value, ' ')
	for i, tok := range tokens {
		if looksLikeFontSize(tok) {
			rest := strings.TrimSpace(strings.Join(tokens[i+1:], " "))
			if rest == "" {
				return nil
			}
			return splitFamilyList(rest)
		}
	}
	return nil
}

func looksLikeFontSize(token string) bool {
	if token == "" {
		return false
	}
	if strings.ContainsRune(token, '/') {
		return true
	}
	if token[0] >= '0' && token[0] <= '9' {
		for _, unit := range []string{"px", "em", "rem", "pt", "%", "vw", "vh", "ex", "ch"} {
			if strings.HasSuffix(strings.ToLower(token), unit) {
				return true
			}
		}
	}
	switch strings.ToLower(token) {
	case "xx-small", "x-small", "small", "medium", "large", "x-large", "xx-large", "smaller", "larger":
		return true
	}
	return false
}

// splitFamilyList splits a font-family value on top-level commas and unquotes
// each entry. CSS-wide keywords and var() references are dropped.
func splitFamilyList(value string) []string {
	var families []string
	for _, part := range splitTopLevel(value, ',') {
		name := unquote(strings.TrimSpace(part))
		if name == "" || strings.HasPrefix(strings.ToLower(name), "var(") {
			continue
		}
		if lower := strings.ToLower(name); lower == "inherit" || lower == "initial" || lower == "unset" || lower == "revert" {
			continue
		}
		if strings.HasSuffix(name, "!important") {
			name = strings.TrimSpace(strings.TrimSuffix(name, "!important"))
		}
		if name != "" {
			families = append(families, name)
		}
	}
	return families
}

func extractImportURL(target string) string {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(strings.ToLower(target), "url(") {
		return unquote(insideParens(target))
	}
	// Bare string form: @import "foo.css" screen;
	if target != "" && (target[0] == '"' || target[0] == '\'') {
		if end := strings.IndexByte(target[1:], target[0]); end >= 0 {
			return target[1 : end+1]
		}
	}
	return ""
}

// splitDeclarations splits a block body on semicolons outside strings and
// parentheses (data: URLs in src values contain semicolons inside url()).
func splitDeclarations(block string) []string {
	return splitTopLevel(block, ';')
}

// splitTopLevel splits on sep outside quotes and parentheses. Consecutive
// separators produce empty fields that callers trim away.
func splitTopLevel(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func insideParens(s string) string {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return ""
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[open+1 : i])
			}
		}
	}
	return strings.TrimSpace(s[open+1:])
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// scanner is a minimal cursor over CSS text.
type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

func (s *scanner) done() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peekByte() byte {
	return s.src[s.pos]
}

func (s *scanner) skipSpaceAndComments() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' {
			s.pos++
			continue
		}
		if c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*' {
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			s.pos += end + 4
			continue
		}
		return
	}
}

// readAtName consumes "@" plus the identifier.
func (s *scanner) readAtName() string {
	start := s.pos
	s.pos++ // '@'
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			s.pos++
			continue
		}
		break
	}
	return s.src[start:s.pos]
}

// readUntil consumes up to and including delim, returning the text before it.
// Strings and comments are respected.
func (s *scanner) readUntil(delim byte) string {
	start := s.pos
	var quote byte
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case quote != 0:
			if c == '\\' {
				s.pos++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
				return s.src[start:]
			}
			s.pos += end + 3
		case c == delim:
			text := s.src[start:s.pos]
			s.pos++
			return text
		}
		s.pos++
	}
	return s.src[start:]
}

// readBlock consumes a "{ ... }" block (the cursor must be before the open
// brace) and returns the body without braces.
func (s *scanner) readBlock() (string, bool) {
	s.readUntil('{')
	return s.readNestedBlockBody()
}

// readNestedBlockBody consumes until the matching close brace, assuming the
// open brace was already consumed.
func (s *scanner) readNestedBlockBody() (string, bool) {
	start := s.pos
	depth := 1
	var quote byte
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case quote != 0:
			if c == '\\' {
				s.pos++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				s.pos = len(s.src)
				return s.src[start:], false
			}
			s.pos += end + 3
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				body := s.src[start:s.pos]
				s.pos++
				return body, true
			}
		}
		s.pos++
	}
	return s.src[start:], false
}

// skipRule consumes a rule the scanner does not care about: either up to the
// next semicolon or across a balanced block, whichever comes first.
func (s *scanner) skipRule() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == ';' {
			s.pos++
			return
		}
		if c == '{' {
			s.pos++
			s.readNestedBlockBody()
			return
		}
		s.pos++
	}
}
