package nlp

import "strings"

// Confirmation and cancellation vocabulary, consolidated here so the
// router and every worker interpret short answers the same way.

var affirmations = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "ok": true,
	"okay": true, "sure": true, "confirm": true, "confirmed": true,
	"correct": true, "do it": true, "go ahead": true,
}

var negations = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "wrong": true,
	"incorrect": true, "don't": true, "dont": true,
}

var cancellations = map[string]bool{
	"cancel": true, "stop": true, "abort": true, "never mind": true,
	"nevermind": true, "forget it": true,
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!?"))
}

func IsAffirmation(s string) bool {
	return affirmations[normalize(s)]
}

func IsNegation(s string) bool {
	return negations[normalize(s)]
}

func IsCancellation(s string) bool {
	return cancellations[normalize(s)]
}

// IsShortAnswer reports whether an utterance is short enough, or an
// exact vocabulary token, to be a mid-flow answer rather than a new
// request. The router forces these back to the last worker.
func IsShortAnswer(s string) bool {
	n := normalize(s)
	return len(n) < 10 || affirmations[n] || negations[n] || cancellations[n]
}
