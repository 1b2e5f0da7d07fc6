package handlers

import (
	"encoding/json"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/gofiber/fiber/v2"
)

type statRequest struct {
	TargetID string `json:"target_id"`
	Column   string `json:"column"`
	Amount   int64  `json:"amount"`
	Value    int64  `json:"value"`
}

type licenseRequest struct {
	TargetID string         `json:"target_id"`
	License  models.License `json:"license"`
}

type avatarRequest struct {
	TargetID string              `json:"target_id"`
	Avatar   models.AvatarConfig `json:"avatar"`
}

type roleRequest struct {
	TargetID string           `json:"target_id"`
	Role     models.AdminRole `json:"role"`
}

type banRequest struct {
	TargetID     string `json:"target_id"`
	Reason       string `json:"reason"`
	DurationDays *int   `json:"duration_days"`
}

type resolveRequest struct {
	Status      models.ReportStatus `json:"status"`
	ActionTaken string              `json:"action_taken"`
}

type configRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

func profileResponse(c *fiber.Ctx, p *models.Profile, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "profile": p})
}

func setupAdminRoutes(admin fiber.Router, svc *Services) {
	admin.Post("/stats/increment", func(c *fiber.Ctx) error {
		req, err := parse[statRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.IncrementStat(c.UserContext(), caller(c), req.TargetID, req.Column, req.Amount)
		return profileResponse(c, p, err)
	})

	admin.Post("/stats/set", func(c *fiber.Ctx) error {
		req, err := parse[statRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.SetStat(c.UserContext(), caller(c), req.TargetID, req.Column, req.Value)
		return profileResponse(c, p, err)
	})

	admin.Post("/license", func(c *fiber.Ctx) error {
		req, err := parse[licenseRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.SetLicense(c.UserContext(), caller(c), req.TargetID, req.License)
		return profileResponse(c, p, err)
	})

	admin.Post("/avatar", func(c *fiber.Ctx) error {
		req, err := parse[avatarRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.SetAvatar(c.UserContext(), caller(c), req.TargetID, req.Avatar)
		return profileResponse(c, p, err)
	})

	admin.Post("/role", func(c *fiber.Ctx) error {
		req, err := parse[roleRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.SetRole(c.UserContext(), caller(c), req.TargetID, req.Role)
		return profileResponse(c, p, err)
	})

	admin.Post("/ban", func(c *fiber.Ctx) error {
		req, err := parse[banRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.BanUser(c.UserContext(), caller(c), req.TargetID, req.Reason, req.DurationDays)
		return profileResponse(c, p, err)
	})

	admin.Post("/unban", func(c *fiber.Ctx) error {
		req, err := parse[banRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		p, err := svc.Admin.UnbanUser(c.UserContext(), caller(c), req.TargetID)
		return profileResponse(c, p, err)
	})

	admin.Delete("/players/:id", func(c *fiber.Ctx) error {
		reason := c.Query("reason")
		if len(c.Body()) > 0 {
			req, err := parse[deleteRequest](c)
			if err != nil {
				return respondError(c, err)
			}
			reason = req.Reason
		}
		target := c.Params("id")
		if err := svc.Admin.DeleteAccount(c.UserContext(), caller(c), target, reason); err != nil {
			return respondError(c, err)
		}
		svc.Leaderboards.Forget(c.UserContext(), target)
		return c.JSON(fiber.Map{"success": true})
	})

	admin.Post("/reports/:id/resolve", func(c *fiber.Ctx) error {
		req, err := parse[resolveRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		report, err := svc.Moderation.ResolveReport(c.UserContext(), caller(c), c.Params("id"), req.Status, req.ActionTaken)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(report)
	})

	admin.Get("/reports", func(c *fiber.Ctx) error {
		reports, err := svc.Moderation.ListReports(c.UserContext(), caller(c), models.ReportStatus(c.Query("status")), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"reports": reports})
	})

	admin.Get("/audit", func(c *fiber.Ctx) error {
		q := store.AuditQuery{
			ActorID:  c.Query("actor_id"),
			TargetID: c.Query("target_id"),
			Action:   c.Query("action"),
			Limit:    c.QueryInt("limit", 100),
		}
		var err error
		if q.Since, err = queryTime(c, "since"); err != nil {
			return respondError(c, err)
		}
		if q.Until, err = queryTime(c, "until"); err != nil {
			return respondError(c, err)
		}
		entries, err := svc.Moderation.ListAudit(c.UserContext(), caller(c), q)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"entries": entries})
	})

	admin.Get("/suspicious", func(c *fiber.Ctx) error {
		if err := svc.Moderation.RequireAdmin(c.UserContext(), caller(c)); err != nil {
			return respondError(c, err)
		}
		accounts, err := svc.Leaderboards.SuspiciousActivity(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"accounts": accounts})
	})

	admin.Post("/announcements", func(c *fiber.Ctx) error {
		req, err := parse[models.Announcement](c)
		if err != nil {
			return respondError(c, err)
		}
		a, err := svc.Moderation.UpsertAnnouncement(c.UserContext(), caller(c), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(a)
	})

	admin.Post("/flags", func(c *fiber.Ctx) error {
		req, err := parse[models.FeatureFlag](c)
		if err != nil {
			return respondError(c, err)
		}
		f, err := svc.Moderation.SetFeatureFlag(c.UserContext(), caller(c), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(f)
	})

	admin.Post("/config", func(c *fiber.Ctx) error {
		req, err := parse[configRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		cfg, err := svc.Moderation.UpdateAppConfig(c.UserContext(), caller(c), req.Key, req.Value)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cfg)
	})
}

func queryTime(c *fiber.Ctx, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.NewAppError(apperrors.CodeInvalidInput, name+" must be RFC3339", err)
	}
	return t, nil
}
