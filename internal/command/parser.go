// Package command parses free-text chat replies into structured commands.
//
// The transport is a general chat channel, not a structured form, so parsing
// runs in tiers: exact tokens, then anchored regex forms, then numbered
// forms, then a bare approval token, and only then a curated conversational
// fallback. The parser prefers UNKNOWN over misfiring a destructive action.
package command

import (
	"regexp"
	"strings"
)

// Type identifies a user command.
type Type string

const (
	Approve     Type = "approve"
	ConfirmSend Type = "confirm_send"
	Ignore      Type = "ignore"
	Rewrite     Type = "rewrite"
	More        Type = "more"
	Spam        Type = "spam"
	Delete      Type = "delete"
	Review      Type = "review"
	Edit        Type = "edit"
	Forward     Type = "forward"
	Keep        Type = "keep"
	Mute        Type = "mute"
	FollowUp    Type = "followup"
	DismissAll  Type = "dismiss_all"
	ArchiveAll  Type = "archive_all"
	Unknown     Type = "unknown"
)

// Command is a parsed user instruction. Parameter carries the token, edit
// instructions, forward target, ordinal, or raw text depending on Type.
type Command struct {
	Type      Type
	Parameter string
}

var exactCommands = map[string]Type{
	"approve":      Approve,
	"send":         Approve,
	"yes":          Approve,
	"y":            Approve,
	"confirm send": ConfirmSend,
	"ignore":       Ignore,
	"skip":         Ignore,
	"no":           Ignore,
	"n":            Ignore,
	"rewrite":      Rewrite,
	"more":         More,
	"spam":         Spam,
	"done":         Delete,
	"delete":       Delete,
	"review":       Review,
	"dismiss_all":  DismissAll,
	"dismiss all":  DismissAll,
	"archive_all":  ArchiveAll,
	"archive all":  ArchiveAll,
}

var (
	editRe     = regexp.MustCompile(`(?is)^edit:\s*(.+)$`)
	forwardRe  = regexp.MustCompile(`(?i)^forward\s+(?:to\s+)?(.+)$`)
	keepRe     = regexp.MustCompile(`(?i)^keep\s+(.+)$`)
	muteRe     = regexp.MustCompile(`(?i)^mute\s*(.*)$`)
	followUpRe = regexp.MustCompile(`(?i)^(?:followup|remind)\s*(.*)$`)
	moreNumRe  = regexp.MustCompile(`(?i)^more\s+(\d+)$`)
	spamNumRe  = regexp.MustCompile(`(?i)^spam\s+(\d+)$`)
	tokenRe    = regexp.MustCompile(`^[a-f0-9]{6}$`)
)

// Conversational paraphrases, substring-matched as the lowest tier. Only
// non-destructive-adjacent intents (spam, ignore, approve) are covered; any
// other free text stays UNKNOWN.
var paraphrases = []struct {
	phrase string
	typ    Type
}{
	{"mark as spam", Spam},
	{"this is spam", Spam},
	{"it's spam", Spam},
	{"junk mail", Spam},
	{"block this sender", Spam},
	{"don't reply", Ignore},
	{"no reply needed", Ignore},
	{"not interested", Ignore},
	{"leave it", Ignore},
	{"ignore this", Ignore},
	{"looks good", Approve},
	{"send it", Approve},
	{"go ahead", Approve},
	{"ship it", Approve},
	{"approve it", Approve},
}

// Parse maps chat text to a command. Unrecognized text yields UNKNOWN with
// the raw text retained so callers can log and skip it.
func Parse(text string) Command {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if typ, ok := exactCommands[lower]; ok {
		return Command{Type: typ}
	}

	if m := editRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: Edit, Parameter: strings.TrimSpace(m[1])}
	}
	if m := forwardRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: Forward, Parameter: strings.TrimSpace(m[1])}
	}
	if m := keepRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: Keep, Parameter: strings.TrimSpace(m[1])}
	}
	if m := moreNumRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: More, Parameter: m[1]}
	}
	if m := spamNumRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: Spam, Parameter: m[1]}
	}
	if m := muteRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: Mute, Parameter: strings.TrimSpace(m[1])}
	}
	if m := followUpRe.FindStringSubmatch(trimmed); m != nil {
		return Command{Type: FollowUp, Parameter: strings.TrimSpace(m[1])}
	}

	if tokenRe.MatchString(lower) {
		return Command{Type: Approve, Parameter: lower}
	}

	for _, p := range paraphrases {
		if strings.Contains(lower, p.phrase) {
			return Command{Type: p.typ}
		}
	}

	return Command{Type: Unknown, Parameter: trimmed}
}
