package handlers

import (
	"casual-game-core/middleware"
	"casual-game-core/services"

	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Profiles     *services.ProfileService
	Ledger       *services.LedgerService
	Admin        *services.AdminService
	Moderation   *services.ModerationService
	Challenges   *services.ChallengeService
	Matchmaking  *services.MatchmakingService
	Friends      *services.FriendshipService
	Scores       *services.ScoreService
	Leaderboards *services.LeaderboardService
	// Receipts is nil when no receipt validator is configured.
	Receipts *services.ReceiptService
}

// SetupRoutes registers every route. All of them require the caller identity from the
// gateway.
func SetupRoutes(app *fiber.App, svc *Services) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	setupPlayerRoutes(secured, svc)
	setupLedgerRoutes(secured, svc)
	setupMatchRoutes(secured, svc)
	setupAdminRoutes(secured.Group("/s/admin"), svc)
}
