package handlers

import (
	"casual-game-core/models"
	"casual-game-core/services"

	"github.com/gofiber/fiber/v2"
)

type poolRequest struct {
	Region          string        `json:"region"`
	Rounds          models.Rounds `json:"rounds"`
	SkillRating     int           `json:"skill_rating"`
	GameplayVersion string        `json:"gameplay_version"`
}

type challengeRequest struct {
	OpponentID      string `json:"opponent_id"`
	Region          string `json:"region"`
	GameplayVersion string `json:"gameplay_version"`
}

type roundsRequest struct {
	GameplayVersion string        `json:"gameplay_version"`
	Rounds          models.Rounds `json:"rounds"`
}

func setupMatchRoutes(r fiber.Router, svc *Services) {
	h2h := r.Group("/h2h")

	h2h.Post("/pool", func(c *fiber.Ctx) error {
		req, err := parse[poolRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Matchmaking.SubmitToPool(c.UserContext(), services.PoolSubmission{
			PlayerID:        caller(c),
			Region:          req.Region,
			Rounds:          req.Rounds,
			SkillRating:     req.SkillRating,
			GameplayVersion: req.GameplayVersion,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	h2h.Post("/challenges", func(c *fiber.Ctx) error {
		req, err := parse[challengeRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		ch, err := svc.Challenges.Create(c.UserContext(), caller(c), req.OpponentID, req.Region, req.GameplayVersion)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(ch)
	})

	h2h.Get("/challenges", func(c *fiber.Ctx) error {
		list, err := svc.Challenges.List(c.UserContext(), caller(c), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"challenges": list})
	})

	h2h.Get("/challenges/:id", func(c *fiber.Ctx) error {
		ch, err := svc.Challenges.Get(c.UserContext(), caller(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	h2h.Post("/challenges/:id/accept", func(c *fiber.Ctx) error {
		ch, err := svc.Challenges.Accept(c.UserContext(), caller(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	h2h.Post("/challenges/:id/decline", func(c *fiber.Ctx) error {
		ch, err := svc.Challenges.Decline(c.UserContext(), caller(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	h2h.Post("/challenges/:id/rounds", func(c *fiber.Ctx) error {
		req, err := parse[roundsRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		ch, err := svc.Challenges.SubmitRounds(c.UserContext(), caller(c), c.Params("id"), req.GameplayVersion, req.Rounds)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})
}
