package agent

import (
	"context"
	"strings"
)

// Chat is the generic fallback. It never claims an utterance and never
// touches the ledger; it only keeps the conversation useful when no
// specialist wants the turn.
type Chat struct{}

func NewChat() *Chat {
	return &Chat{}
}

func (c *Chat) ID() string { return IDChat }

func (c *Chat) Describe() string {
	return "General conversation"
}

func (c *Chat) CanHandle(string) bool {
	// Fallback only: chat is reached through the router's last step,
	// never by claiming.
	return false
}

func (c *Chat) Handle(_ context.Context, req *Request) *Reply {
	lower := strings.ToLower(req.Utterance)
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi "):
		return ok("Hello! I can help with vendors, bills, customer invoices, credit card statements and journal entries.", nil)
	case strings.Contains(lower, "help") || strings.Contains(lower, "what can you"):
		return ok("Try things like: create vendor Acme Corp, add a bill from Acme for $500, invoice for Globex for $1,200, import my credit card statement, or record $250 debit account 6000 credit account 1000.", nil)
	case strings.Contains(lower, "thank"):
		return ok("You're welcome!", nil)
	}
	return ok("I'm not sure that's a bookkeeping request. I can help with vendors, bills, invoices, statements and journal entries; say 'help' for examples.", nil)
}
