// Package msgfilter validates inbound chat content, recognizes chat
// commands, and applies safety rewrites before a message is published.
package msgfilter

import (
	"strings"
)

// Cmd identifies a recognized chat command.
type Cmd int

const (
	// KillMe asks the session to end normally.
	KillMe Cmd = iota
	// BlockMe asks the session to suppress its own future publishes.
	BlockMe
)

// Kind distinguishes the three possible filter outcomes.
type Kind int

const (
	// KindMessage means the content is a normal, publishable chat message.
	KindMessage Kind = iota
	// KindCommand means the content was an exact command match.
	KindCommand
	// KindInvalid means the content should be dropped silently.
	KindInvalid
)

// Result is the outcome of filtering one inbound message.
type Result struct {
	Kind    Kind
	Content string // valid when Kind == KindMessage
	Cmd     Cmd    // valid when Kind == KindCommand
}

// kysRewrite replaces a message that, once whitespace is stripped, spells
// "kys" case-insensitively and contains nothing else.
const kysRewrite = "Kiss me pwees"

// Wordlist maps profanity words (already lowercased) to replace with "#".
// A nil or empty Wordlist makes Replace an identity function.
type Wordlist map[string]struct{}

// Replace substitutes each whitespace-delimited word present in w with a
// run of '#' characters the same length as the word. It is the identity
// function when w is empty.
func (w Wordlist) Replace(content string) string {
	if len(w) == 0 {
		return content
	}
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return content
	}
	replaced := make([]string, len(fields))
	for i, f := range fields {
		if _, bad := w[strings.ToLower(f)]; bad {
			replaced[i] = strings.Repeat("#", len(f))
		} else {
			replaced[i] = f
		}
	}
	return strings.Join(replaced, " ")
}

// Filter validates and classifies one inbound message body against
// maxMsgLen (in bytes), applying the kys-rewrite and optional profanity
// replacement for ordinary messages.
func Filter(content string, maxMsgLen int, words Wordlist) Result {
	if len(content) > maxMsgLen || isWhitespaceOnly(content) {
		return Result{Kind: KindInvalid}
	}

	trimmed := strings.TrimSpace(content)

	switch trimmed {
	case "/killme":
		return Result{Kind: KindCommand, Cmd: KillMe}
	case "/blockme":
		return Result{Kind: KindCommand, Cmd: BlockMe}
	}

	if spellsKYS(trimmed) {
		return Result{Kind: KindMessage, Content: kysRewrite}
	}

	return Result{Kind: KindMessage, Content: words.Replace(trimmed)}
}

func isWhitespaceOnly(s string) bool {
	return strings.TrimSpace(s) == ""
}

// spellsKYS reports whether content, once all whitespace is removed, is
// exactly the three characters k, y, s in order, case-insensitively.
func spellsKYS(content string) bool {
	const target = "kys"
	idx := 0
	for _, r := range content {
		if isSpace(r) {
			continue
		}
		if idx >= len(target) {
			return false
		}
		if toLower(r) != rune(target[idx]) {
			return false
		}
		idx++
	}
	return idx == len(target)
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r - 'A' + 'a'
	}
	return r
}
