package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// StarsGateway bills and pays users in Telegram Stars through the Bot
// API. Transfers are delivered as XTR invoices sent to the user's chat.
type StarsGateway struct {
	http *resty.Client
}

// NewStarsGateway creates a Stars gateway for the given bot token.
func NewStarsGateway(botToken string) *StarsGateway {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("https://api.telegram.org/bot%s", botToken)).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &StarsGateway{http: client}
}

// newStarsGatewayWithBaseURL is used by tests to point at a fake server.
func newStarsGatewayWithBaseURL(baseURL string) *StarsGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &StarsGateway{http: client}
}

// Name returns the gateway identifier.
func (g *StarsGateway) Name() string { return "stars" }

type sendInvoiceRequest struct {
	ChatID      int64        `json:"chat_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Payload     string       `json:"payload"`
	Currency    string       `json:"currency"`
	Prices      []labelPrice `json:"prices"`
}

type labelPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

type sendInvoiceResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// Pay delivers an XTR invoice worth amount stars to the user's chat.
func (g *StarsGateway) Pay(ctx context.Context, toUser int64, amount int64, memo string) (*Receipt, error) {
	body := sendInvoiceRequest{
		ChatID:      toUser,
		Title:       "Dice payout",
		Description: memo,
		Payload:     fmt.Sprintf("payout:%d:%d", toUser, amount),
		Currency:    "XTR",
		Prices:      []labelPrice{{Label: "Stars", Amount: amount}},
	}

	var result sendInvoiceResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post("/sendInvoice")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		log.Warn().
			Int("status", resp.StatusCode()).
			Str("description", result.Description).
			Int64("user_id", toUser).
			Msg("Stars invoice rejected")
		return nil, fmt.Errorf("%w: status %d: %s", ErrPaymentRejected, resp.StatusCode(), result.Description)
	}

	log.Info().
		Int64("user_id", toUser).
		Int64("amount", amount).
		Int64("message_id", result.Result.MessageID).
		Msg("Stars invoice sent")

	return &Receipt{
		Provider:  g.Name(),
		Reference: fmt.Sprintf("invoice-%d", result.Result.MessageID),
		Amount:    amount,
		PaidAt:    time.Now(),
	}, nil
}
