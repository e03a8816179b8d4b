package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/kpapadakis/ledgerdesk/internal/store"
)

// Bus actions understood between agents.
const (
	ActionCreateAccount = "CREATE_ACCOUNT"
)

type createAccountPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ensureAccount resolves an account by code, asking the general-ledger
// agent to create it when missing. A bus timeout is not fatal: the
// caller degrades to the default expense account, and the recipient may
// still create the requested account afterwards.
func (d *Deps) ensureAccount(ctx context.Context, requesterID, userID, code, name, accountType string) *store.Account {
	acc, err := d.Store.GetAccountByCode(code)
	if err != nil {
		slog.Error("account lookup failed", "code", code, "error", err)
		return nil
	}
	if acc != nil {
		return acc
	}

	msg, err := d.Bus.Send(requesterID, IDGeneralLedger, ActionCreateAccount,
		createAccountPayload{Code: code, Name: name, Type: accountType},
		userID, "NORMAL", "")
	if err != nil {
		slog.Error("create account request failed", "code", code, "error", err)
		return d.fallbackAccount(code)
	}

	resp, err := d.Bus.WaitForResponse(ctx, msg.ID, d.Bus.WaitTimeout())
	if err != nil {
		slog.Error("wait for account creation failed", "message", msg.ID, "error", err)
		return d.fallbackAccount(code)
	}
	if resp == nil || resp.Status != store.MessageCompleted {
		slog.Warn("account creation unanswered, using default account", "code", code)
		return d.fallbackAccount(code)
	}

	var created struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal(resp.ResponsePayload, &created); err == nil && created.AccountID != "" {
		if acc, err := d.Store.GetAccount(created.AccountID); err == nil && acc != nil {
			return acc
		}
	}
	return d.fallbackAccount(code)
}

func (d *Deps) fallbackAccount(requested string) *store.Account {
	if requested == d.DefaultExpenseCode {
		return nil
	}
	acc, err := d.Store.GetAccountByCode(d.DefaultExpenseCode)
	if err != nil || acc == nil {
		return nil
	}
	slog.Info("falling back to default account", "requested", requested, "fallback", acc.Code)
	return acc
}
