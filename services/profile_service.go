// services/profile_service.go
package services

import (
	"cmp"
	"context"
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 24
)

type ProfileService struct {
	Store store.AccountStore
	Now   func() time.Time
}

func NewProfileService(st store.AccountStore) *ProfileService {
	return &ProfileService{Store: st, Now: time.Now}
}

// UsernameSlug is the uniqueness key for usernames: "Zoë" and "zoe" collide.
func UsernameSlug(username string) string {
	return slug.Make(username)
}

// Signup creates the profile and account state of a new player.
func (s *ProfileService) Signup(ctx context.Context, playerID, username string) (*models.Account, error) {
	if _, err := uuid.Parse(playerID); err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "player id must be a UUID", err)
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	key := UsernameSlug(username)
	if key == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "username needs letters or digits", nil)
	}

	acc := models.NewAccount(playerID, username, key, clock(s.Now).now())
	if err := s.Store.CreateAccount(ctx, acc); err != nil {
		return nil, storeErr("signup", "username or player", err)
	}
	log.Printf("👤 [PROFILE] signed up %s as %q", playerID, username)
	return acc, nil
}

func (s *ProfileService) Get(ctx context.Context, playerID string) (*models.Account, error) {
	acc, err := s.Store.GetAccount(ctx, playerID)
	if err != nil {
		return nil, storeErr("get profile", "player", err)
	}
	return acc, nil
}

// SearchResult is the public projection of a profile in search results.
type SearchResult struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    int64  `json:"level"`
	Distance int    `json:"distance"`
}

var folder = cases.Fold()

// foldKey normalizes text for ranking: transliterated, case-folded, trimmed.
func foldKey(s string) string {
	return folder.String(unidecode.Unidecode(strings.TrimSpace(s)))
}

// SearchUsers is a fuzzy match over usernames. Candidates share a slug substring (the
// whole query or its first three characters); they are ranked by edit distance, then
// prefix matches first, then name.
func (s *ProfileService) SearchUsers(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	limit = clampLimit(limit, 20, 50)
	q := UsernameSlug(query)
	if q == "" {
		return []SearchResult{}, nil
	}
	fragments := []string{q}
	if r := []rune(q); len(r) > 3 {
		fragments = append(fragments, string(r[:3]))
	}

	profiles, err := s.Store.SearchProfiles(ctx, fragments, limit*5)
	if err != nil {
		return nil, storeErr("search users", "player", err)
	}

	qKey := foldKey(query)
	type ranked struct {
		SearchResult
		prefix bool
		name   string
	}
	rows := make([]ranked, 0, len(profiles))
	for _, p := range profiles {
		name := foldKey(p.Username)
		rows = append(rows, ranked{
			SearchResult: SearchResult{
				ID:       p.ID,
				Username: p.Username,
				Level:    p.Level,
				Distance: levenshtein.ComputeDistance(qKey, name),
			},
			prefix: strings.HasPrefix(p.UsernameSlug, q),
			name:   name,
		})
	}
	slices.SortFunc(rows, func(a, b ranked) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		if a.prefix != b.prefix {
			if a.prefix {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.name, b.name)
	})

	out := make([]SearchResult, 0, min(limit, len(rows)))
	for _, r := range rows {
		if len(out) == limit {
			break
		}
		out = append(out, r.SearchResult)
	}
	return out, nil
}

