package nlp

import (
	"context"
	"regexp"
	"strings"
)

// Intent labels the pattern classifier can emit. The router owns the
// label → agent mapping.
const (
	IntentPayable    = "accounts_payable"
	IntentLedger     = "general_ledger"
	IntentStatement  = "credit_card_statement"
	IntentReceivable = "receivables"
	IntentChat       = "chat"
)

type intentRule struct {
	label    string
	keywords []string
}

// PatternClassifier scores keyword hits per intent. Cheap, offline, and
// deliberately conservative: anything ambiguous is chat.
type PatternClassifier struct {
	rules []intentRule
}

func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{
		rules: []intentRule{
			{IntentPayable, []string{"vendor", "bill", "payable", "supplier", "invoice from", "owe", "pay "}},
			{IntentStatement, []string{"credit card", "statement", "card ending", "starting balance"}},
			{IntentReceivable, []string{"receivable", "customer", "invoice for", "receipt", "payment received", "owes us"}},
			{IntentLedger, []string{"journal", "ledger", "account", "debit", "credit", "entry", "post", "balance"}},
		},
	}
}

func (c *PatternClassifier) Classify(_ context.Context, utterance string) (Intent, error) {
	lower := strings.ToLower(utterance)

	best := Intent{Label: IntentChat, Confidence: 0.2}
	for _, rule := range c.rules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := 0.5 + 0.15*float64(hits)
		if conf > 0.95 {
			conf = 0.95
		}
		if conf > best.Confidence {
			best = Intent{Label: rule.label, Confidence: conf}
		}
	}
	return best, nil
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	dateRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}`)
	// A bare number is only an amount when it carries a currency mark
	// or sits right after an amount-announcing word. Anything else
	// (phone digits, PO numbers, quantities) must not become money.
	dollarAmountRe = regexp.MustCompile(`\$\s*(?:\d{1,3}(?:,\d{3})*|\d+)(?:\.\d{1,2})?`)
	bareAmountRe   = regexp.MustCompile(`(?i)(?:for|amount(?:\s+of|\s+is)?|balance(?:\s+of)?|total(?:\s+of)?|owes?|paid|pay)\s+((?:\d{1,3}(?:,\d{3})*|\d+)(?:\.\d{1,2})?)\b`)
	// "vendor Acme Corp", "for Acme Corp", "called Acme", quoted names
	nameRe = regexp.MustCompile(`(?i)(?:vendor|supplier|for|called|named)\s+"?([A-Z][\w&.\- ]*?)"?(?:\s+(?:with|at|for|due|email|phone)\b|[,.]|$)`)
	// "account 6000", "account code 6000", "with code 6400"
	accountCodeRe = regexp.MustCompile(`(?i)(?:account(?:\s+code)?|code)\s+(\d{3,5})`)
	cardRe        = regexp.MustCompile(`(?i)(?:card\s+)?ending(?:\s+in)?\s+(\d{4})`)
	// Addresses are only taken when announced; a bare street name is
	// indistinguishable from any other phrase.
	addressRe = regexp.MustCompile(`(?i)address\s+(?:is\s+)?(.+?)(?:\s+(?:email|phone)\b|[.!?;]|$)`)
	contactRe = regexp.MustCompile(`(?i)contact(?:\s+(?:person|name))?\s+(?:is\s+)?"?([A-Z][\w.\- ]*?)"?(?:[,.]|$)`)
)

// PatternExtractor fills the requested schema with regex captures.
// Fields it cannot find stay absent; it never guesses.
type PatternExtractor struct{}

func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{}
}

func cleanAmount(s string) string {
	return strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
}

func (e *PatternExtractor) Extract(_ context.Context, utterance string, schema []string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, field := range schema {
		var v string
		switch field {
		case "email":
			v = emailRe.FindString(utterance)
		case "phone":
			// Strip email and amounts first so digits in them don't
			// masquerade as a phone number.
			cleaned := emailRe.ReplaceAllString(utterance, "")
			v = phoneRe.FindString(cleaned)
		case "amount":
			if m := dollarAmountRe.FindString(utterance); m != "" {
				v = cleanAmount(m)
			} else {
				// No currency mark: strip spans whose digits are known
				// to mean something else, then require a keyword.
				cleaned := emailRe.ReplaceAllString(utterance, " ")
				cleaned = dateRe.ReplaceAllString(cleaned, " ")
				cleaned = phoneRe.ReplaceAllString(cleaned, " ")
				if m := bareAmountRe.FindStringSubmatch(cleaned); m != nil {
					v = cleanAmount(m[1])
				}
			}
		case "date", "due_date":
			v = dateRe.FindString(utterance)
		case "name", "vendor_name", "account_name":
			if m := nameRe.FindStringSubmatch(utterance); m != nil {
				v = strings.TrimSpace(m[1])
			}
		case "account_code":
			if m := accountCodeRe.FindStringSubmatch(utterance); m != nil {
				v = m[1]
			}
		case "card_last4":
			if m := cardRe.FindStringSubmatch(utterance); m != nil {
				v = m[1]
			}
		case "address":
			if m := addressRe.FindStringSubmatch(utterance); m != nil {
				v = strings.TrimSpace(m[1])
			}
		case "contact_name":
			if m := contactRe.FindStringSubmatch(utterance); m != nil {
				v = strings.TrimSpace(m[1])
			}
		}
		if v != "" {
			fields[field] = v
		}
	}
	return fields, nil
}
