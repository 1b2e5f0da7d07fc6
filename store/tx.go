package store

import (
	"slices"
	"strings"
	"time"

	"casual-game-core/models"

	"github.com/google/uuid"
)

// AccountTx is what a mutation callback sees: the locked accounts plus the rows it
// wants appended when the mutation commits.
type AccountTx struct {
	Now time.Time

	accounts map[string]*models.Account
	deleted  map[string]bool
	audit    []models.AuditLogEntry
	journal  []models.CoinTransaction
	scores   []models.Score
}

// NewAccountTx is used by store implementations. The accounts must be private copies.
func NewAccountTx(now time.Time, accounts map[string]*models.Account) *AccountTx {
	return &AccountTx{Now: now, accounts: accounts, deleted: map[string]bool{}}
}

// Account returns a locked account. Accounts that do not exist are never present.
func (tx *AccountTx) Account(id string) (*models.Account, bool) {
	if tx.deleted[id] {
		return nil, false
	}
	acc, ok := tx.accounts[id]
	return acc, ok
}

// Delete removes the account (profile, state) on commit.
func (tx *AccountTx) Delete(id string) {
	if _, ok := tx.accounts[id]; ok {
		tx.deleted[id] = true
	}
}

func (tx *AccountTx) Audit(e models.AuditLogEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = tx.Now
	}
	tx.audit = append(tx.audit, e)
}

// Journal records a balance change. Call it after the balance was updated.
func (tx *AccountTx) Journal(acc *models.Account, delta int64, kind models.CoinTxKind, ref string) {
	if delta == 0 {
		return
	}
	tx.journal = append(tx.journal, models.CoinTransaction{
		ID:           uuid.NewString(),
		PlayerID:     acc.ID(),
		Delta:        delta,
		BalanceAfter: acc.Profile.Coins,
		Kind:         kind,
		Reference:    ref,
		CreatedAt:    tx.Now,
	})
}

func (tx *AccountTx) AddScore(s models.Score) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = tx.Now
	}
	tx.scores = append(tx.scores, s)
}

// Changes is the commit set of a finished callback, sorted by account id.
type Changes struct {
	Accounts []*models.Account
	Deleted  []string
	Audit    []models.AuditLogEntry
	Journal  []models.CoinTransaction
	Scores   []models.Score
}

func (tx *AccountTx) Changes() Changes {
	ch := Changes{Audit: tx.audit, Journal: tx.journal, Scores: tx.scores}
	for id, acc := range tx.accounts {
		if tx.deleted[id] {
			ch.Deleted = append(ch.Deleted, id)
			continue
		}
		ch.Accounts = append(ch.Accounts, acc)
	}
	slices.SortFunc(ch.Accounts, func(a, b *models.Account) int {
		return strings.Compare(a.ID(), b.ID())
	})
	slices.Sort(ch.Deleted)
	return ch
}

// LockOrder returns the ids deduplicated in ascending order, the only order in which
// implementations acquire account locks.
func LockOrder(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	return out
}
