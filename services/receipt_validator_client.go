// services/receipt_validator_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"casual-game-core/utils"

	"github.com/cenkalti/backoff/v5"
)

// ReceiptVerdict is the external validator's answer for one receipt.
type ReceiptVerdict struct {
	Valid     bool   `json:"valid"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason,omitempty"`
}

type ReceiptValidator interface {
	Validate(ctx context.Context, platform, transactionID string, payload json.RawMessage) (*ReceiptVerdict, error)
}

// ReceiptValidatorClient calls the payment collaborator's /receipts/validate endpoint.
type ReceiptValidatorClient struct {
	BaseURL  string
	Token    string
	Client   *http.Client
	MaxTries uint
}

func NewReceiptValidatorClient(baseURL, token string) *ReceiptValidatorClient {
	return &ReceiptValidatorClient{
		BaseURL:  baseURL,
		Token:    token,
		Client:   utils.HTTPClient,
		MaxTries: 3,
	}
}

// Validate posts the receipt. 5xx and transport errors are retried with exponential
// backoff; any other non-200 answer is final.
func (c *ReceiptValidatorClient) Validate(ctx context.Context, platform, transactionID string, payload json.RawMessage) (*ReceiptVerdict, error) {
	url := fmt.Sprintf("%s/receipts/validate", c.BaseURL)

	reqBody := map[string]interface{}{
		"platform":       platform,
		"transaction_id": transactionID,
		"payload":        payload,
	}
	jsonData, _ := json.Marshal(reqBody)

	operation := func() (*ReceiptVerdict, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)

		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("receipt validation unavailable: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("ReceiptService /receipts/validate returned %d: %s", resp.StatusCode, string(body))
			return nil, backoff.Permanent(fmt.Errorf("receipt validation failed: %d", resp.StatusCode))
		}

		var out ReceiptVerdict
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, backoff.Permanent(err)
		}
		return &out, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.MaxTries),
	)
}
