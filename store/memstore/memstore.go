// Package memstore is the in-process Store used by tests and STORE_DRIVER=memory.
//
// Lock order: challengeMu, then per-account locks in ascending id order, then mu.
// Every callback works on private copies; results are swapped in under mu so a
// reader never sees half of a multi-account mutation.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"
)

type Store struct {
	Now func() time.Time

	mu            sync.RWMutex
	accounts      map[string]*models.Account
	slugs         map[string]string
	idem          map[string]idemRecord
	audit         []models.AuditLogEntry
	journal       []models.CoinTransaction
	scores        []models.Score
	pool          map[string]*models.PoolEntry
	challenges    map[string]*models.Challenge
	reports       map[string]*models.PlayerReport
	announcements map[string]*models.Announcement
	flags         map[string]*models.FeatureFlag
	appConfig     map[string]*models.AppConfig
	friendships   map[string]*models.Friendship
	receipts      map[string]*models.Receipt

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	challengeMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

type idemRecord struct {
	fingerprint string
	result      []byte
}

func New() *Store {
	return &Store{
		Now:           time.Now,
		accounts:      map[string]*models.Account{},
		slugs:         map[string]string{},
		idem:          map[string]idemRecord{},
		pool:          map[string]*models.PoolEntry{},
		challenges:    map[string]*models.Challenge{},
		reports:       map[string]*models.PlayerReport{},
		announcements: map[string]*models.Announcement{},
		flags:         map[string]*models.FeatureFlag{},
		appConfig:     map[string]*models.AppConfig{},
		friendships:   map[string]*models.Friendship{},
		receipts:      map[string]*models.Receipt{},
		locks:         map[string]*sync.Mutex{},
	}
}

func (s *Store) now() time.Time { return s.Now().UTC() }

func (s *Store) accountLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// lockAccounts takes the per-account locks of ids, which must already be in lock order.
func (s *Store) lockAccounts(ids []string) (unlock func()) {
	held := make([]*sync.Mutex, 0, len(ids))
	for _, id := range ids {
		l := s.accountLock(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (s *Store) snapshot(ids []string) map[string]*models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			out[id] = acc.Clone()
		}
	}
	return out
}

// apply commits a callback's changes. Caller holds mu.
func (s *Store) apply(now time.Time, ch store.Changes) {
	for _, acc := range ch.Accounts {
		acc.Profile.UpdatedAt = now
		acc.State.UpdatedAt = now
		s.accounts[acc.ID()] = acc
	}
	for _, id := range ch.Deleted {
		if acc, ok := s.accounts[id]; ok {
			delete(s.slugs, acc.Profile.UsernameSlug)
			delete(s.accounts, id)
		}
	}
	s.audit = append(s.audit, ch.Audit...)
	s.journal = append(s.journal, ch.Journal...)
	s.scores = append(s.scores, ch.Scores...)
}

// ---- accounts ----

func (s *Store) CreateAccount(ctx context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.ID()]; ok {
		return store.ErrConflict
	}
	if _, ok := s.slugs[acc.Profile.UsernameSlug]; ok {
		return store.ErrConflict
	}
	s.accounts[acc.ID()] = acc.Clone()
	s.slugs[acc.Profile.UsernameSlug] = acc.ID()
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return acc.Clone(), nil
}

func (s *Store) SearchProfiles(ctx context.Context, fragments []string, limit int) ([]models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Profile
	for _, acc := range s.accounts {
		for _, f := range fragments {
			if f != "" && strings.Contains(acc.Profile.UsernameSlug, f) {
				out = append(out, acc.Clone().Profile)
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b models.Profile) int { return cmp.Compare(a.UsernameSlug, b.UsernameSlug) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) WithAccounts(ctx context.Context, opts store.MutateOptions, fn store.MutateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := store.LockOrder(opts.AccountIDs)
	unlock := s.lockAccounts(ids)
	defer unlock()

	var idemKey string
	if opts.IdempotencyKey != "" {
		idemKey = opts.IdempotencyScope + "\x00" + opts.IdempotencyKey
		s.mu.RLock()
		rec, ok := s.idem[idemKey]
		s.mu.RUnlock()
		if ok {
			if rec.fingerprint != opts.Fingerprint {
				return nil, store.ErrIdempotencyMismatch
			}
			return slices.Clone(rec.result), nil
		}
	}

	now := s.now()
	tx := store.NewAccountTx(now, s.snapshot(ids))
	v, err := fn(tx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode mutation result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(now, tx.Changes())
	if idemKey != "" {
		s.idem[idemKey] = idemRecord{fingerprint: opts.Fingerprint, result: slices.Clone(raw)}
	}
	return raw, nil
}

func (s *Store) ListCoinTransactions(ctx context.Context, playerID string, limit int) ([]models.CoinTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CoinTransaction
	for i := len(s.journal) - 1; i >= 0; i-- {
		if s.journal[i].PlayerID == playerID {
			out = append(out, s.journal[i])
		}
	}
	return truncate(out, limit), nil
}

// ---- pool ----

func (s *Store) SubmitPoolEntry(ctx context.Context, entry *models.PoolEntry, plan store.PairingPlan) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pool[entry.ID]; ok {
		return nil, store.ErrConflict
	}
	entry = entry.Clone()

	q := plan.Query
	var candidates []*models.PoolEntry
	for _, e := range s.pool {
		if e.Matched() || e.PlayerID == entry.PlayerID ||
			e.Region != q.Region || e.GameplayVersion != q.GameplayVersion ||
			e.SkillRating < q.MinRating || e.SkillRating > q.MaxRating ||
			e.CreatedAt.Before(q.Since) {
			continue
		}
		candidates = append(candidates, e.Clone())
	}
	slices.SortFunc(candidates, func(a, b *models.PoolEntry) int {
		return cmp.Or(
			cmp.Compare(ratingGap(a, q.Target), ratingGap(b, q.Target)),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	partner := plan.Pick(entry, candidates)
	if partner == nil {
		s.pool[entry.ID] = entry
		return nil, nil
	}

	c := plan.Build(entry, partner)
	if _, ok := s.challenges[c.ID]; ok {
		return nil, store.ErrConflict
	}
	now := s.now()
	for _, e := range []*models.PoolEntry{entry, partner} {
		e.MatchedAt = &now
		id := c.ID
		e.ChallengeID = &id
		s.pool[e.ID] = e
	}
	s.challenges[c.ID] = c.Clone()
	return c, nil
}

func ratingGap(e *models.PoolEntry, target int) int {
	if d := e.SkillRating - target; d >= 0 {
		return d
	}
	return target - e.SkillRating
}

func (s *Store) DeleteUnmatchedPoolEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.pool {
		if !e.Matched() && e.CreatedAt.Before(cutoff) {
			delete(s.pool, id)
			n++
		}
	}
	return n, nil
}

// ---- challenges ----

func (s *Store) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[c.ID]; ok {
		return store.ErrConflict
	}
	s.challenges[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, fn func(c *models.Challenge) error) (*models.Challenge, error) {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()
	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.challenges[id] = c.Clone()
	s.mu.Unlock()
	return c, nil
}

func (s *Store) SettleChallenge(ctx context.Context, id string, fn store.SettleFunc) (*models.Challenge, error) {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()
	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := store.LockOrder([]string{c.ChallengerID, c.OpponentID})
	unlock := s.lockAccounts(ids)
	defer unlock()

	now := s.now()
	tx := store.NewAccountTx(now, s.snapshot(ids))
	if err := fn(c, tx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(now, tx.Changes())
	s.challenges[id] = c.Clone()
	return c, nil
}

func (s *Store) ExpireChallenges(ctx context.Context, cutoff, now time.Time) (int64, error) {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.challenges {
		if c.Status.Terminal() || !c.CreatedAt.Before(cutoff) {
			continue
		}
		c.Status = models.ChallengeExpired
		t := now
		c.CompletedAt = &t
		n++
	}
	return n, nil
}

func (s *Store) ListChallenges(ctx context.Context, playerID string, limit int) ([]models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Challenge
	for _, c := range s.challenges {
		if c.Participant(playerID) {
			out = append(out, *c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Challenge) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) ListUnsettledChallenges(ctx context.Context, limit int) ([]models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Challenge
	for _, c := range s.challenges {
		if c.Status == models.ChallengeCompleted && c.SettledAt == nil {
			out = append(out, *c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Challenge) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return truncate(out, limit), nil
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
