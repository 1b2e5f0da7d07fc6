package handlers

import (
	"encoding/json"

	"casual-game-core/services"

	"github.com/gofiber/fiber/v2"
)

type purchaseRequest struct {
	ItemID         string `json:"item_id"`
	Cost           int64  `json:"cost"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferRequest struct {
	RecipientID    string `json:"recipient_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type giftRequest struct {
	RecipientID    string `json:"recipient_id"`
	ItemID         string `json:"item_id"`
	Cost           int64  `json:"cost"`
	IdempotencyKey string `json:"idempotency_key"`
}

type equipRequest struct {
	Slot   string `json:"slot"`
	ItemID string `json:"item_id"`
}

func setupLedgerRoutes(r fiber.Router, svc *Services) {
	ledger := r.Group("/ledger")

	ledger.Post("/purchase", func(c *fiber.Ctx) error {
		req, err := parse[purchaseRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Ledger.Purchase(c.UserContext(), caller(c), req.ItemID, req.Cost, idempotencyKey(c, req.IdempotencyKey))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	ledger.Post("/transfer", func(c *fiber.Ctx) error {
		req, err := parse[transferRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Ledger.Transfer(c.UserContext(), caller(c), req.RecipientID, req.Amount, idempotencyKey(c, req.IdempotencyKey))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	ledger.Post("/gift", func(c *fiber.Ctx) error {
		req, err := parse[giftRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Ledger.Gift(c.UserContext(), caller(c), req.RecipientID, req.ItemID, req.Cost, idempotencyKey(c, req.IdempotencyKey))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	})

	ledger.Post("/equip", func(c *fiber.Ctx) error {
		req, err := parse[equipRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		equipped, err := svc.Ledger.Equip(c.UserContext(), caller(c), req.Slot, req.ItemID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "equipped": equipped})
	})

	ledger.Get("/history", func(c *fiber.Ctx) error {
		txs, err := svc.Ledger.History(c.UserContext(), caller(c), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"transactions": txs})
	})

	r.Post("/receipts", receiptHandler(svc))
}

type receiptRequest struct {
	Platform      string          `json:"platform"`
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	Payload       json.RawMessage `json:"payload"`
}

func receiptHandler(svc *Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if svc.Receipts == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "unavailable",
				"message": "receipt validation is not configured",
			})
		}
		req, err := parse[receiptRequest](c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := svc.Receipts.RecordReceipt(c.UserContext(), services.ReceiptSubmission{
			PlayerID:      caller(c),
			Platform:      req.Platform,
			TransactionID: req.TransactionID,
			ProductID:     req.ProductID,
			Payload:       req.Payload,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}
}
