package handlers

import (
	"casual-game-core/models"
	"casual-game-core/services"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Username string `json:"username"`
}

type reportRequest struct {
	ReportedID string `json:"reported_id"`
	Reason     string `json:"reason"`
	Details    string `json:"details"`
}

type friendRequest struct {
	AddresseeID string `json:"addressee_id"`
}

type friendResponse struct {
	Accept bool `json:"accept"`
}

type scoreRequest struct {
	Score      int64         `json:"score"`
	DurationMs int64         `json:"duration_ms"`
	Region     string        `json:"region"`
	Rounds     models.Rounds `json:"rounds"`
}

func setupPlayerRoutes(r fiber.Router, svc *Services) {
	// The caller id from the gateway becomes the player id.
	r.Post("/players", func(c *fiber.Ctx) error {
		req, err := parse[signupRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		acc, err := svc.Profiles.Signup(c.UserContext(), caller(c), req.Username)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(acc)
	})

	r.Get("/players/me", func(c *fiber.Ctx) error {
		acc, err := svc.Profiles.Get(c.UserContext(), caller(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(acc)
	})

	r.Get("/users/search", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return badRequest(c, "query parameter q is required")
		}
		results, err := svc.Profiles.SearchUsers(c.UserContext(), q, c.QueryInt("limit", 20))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"users": results})
	})

	r.Post("/reports", func(c *fiber.Ctx) error {
		req, err := parse[reportRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		report, err := svc.Moderation.Report(c.UserContext(), caller(c), req.ReportedID, req.Reason, req.Details)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(report)
	})

	r.Post("/friends", func(c *fiber.Ctx) error {
		req, err := parse[friendRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		f, err := svc.Friends.Request(c.UserContext(), caller(c), req.AddresseeID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(f)
	})

	r.Post("/friends/:id/respond", func(c *fiber.Ctx) error {
		req, err := parse[friendResponse](c)
		if err != nil {
			return respondError(c, err)
		}
		f, err := svc.Friends.Respond(c.UserContext(), caller(c), c.Params("id"), req.Accept)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(f)
	})

	r.Get("/friends", func(c *fiber.Ctx) error {
		list, err := svc.Friends.List(c.UserContext(), caller(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"friendships": list})
	})

	r.Post("/scores", func(c *fiber.Ctx) error {
		req, err := parse[scoreRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Scores.RecordScore(c.UserContext(), services.ScoreSubmission{
			PlayerID:   caller(c),
			Score:      req.Score,
			DurationMs: req.DurationMs,
			Region:     req.Region,
			Rounds:     req.Rounds,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	boards := r.Group("/leaderboards")
	boards.Get("/global", func(c *fiber.Ctx) error {
		rows, err := svc.Leaderboards.Global(c.UserContext(), c.QueryInt("limit", 100))
		return leaderboard(c, rows, err)
	})
	boards.Get("/daily", func(c *fiber.Ctx) error {
		rows, err := svc.Leaderboards.Daily(c.UserContext(), c.QueryInt("limit", 100))
		return leaderboard(c, rows, err)
	})
	boards.Get("/region/:region", func(c *fiber.Ctx) error {
		rows, err := svc.Leaderboards.Region(c.UserContext(), c.Params("region"), c.QueryInt("limit", 100))
		return leaderboard(c, rows, err)
	})

	r.Get("/announcements", func(c *fiber.Ctx) error {
		list, err := svc.Moderation.ActiveAnnouncements(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"announcements": list})
	})

	r.Get("/flags", func(c *fiber.Ctx) error {
		flags, err := svc.Moderation.FeatureFlags(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"flags": flags})
	})

	r.Get("/config/:key", func(c *fiber.Ctx) error {
		cfg, err := svc.Moderation.AppConfig(c.UserContext(), c.Params("key"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cfg)
	})
}

func leaderboard(c *fiber.Ctx, rows []models.LeaderboardRow, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"entries": rows})
}
