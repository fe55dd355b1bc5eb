package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// nanotonPerTon is the TON base unit: 1 TON = 10^9 nanoTON.
var nanotonPerTon = decimal.New(1, 9)

// feeReserveNano is held back on every transfer to cover network fees
// (0.05 TON).
var feeReserveNano = decimal.NewFromFloat(0.05).Mul(nanotonPerTon)

// TONGateway pays users in TON through an HTTP wallet gateway.
// Internal coins are converted at a configured coins-per-TON rate.
type TONGateway struct {
	http        *resty.Client
	wallet      string
	coinsPerTon int64
}

// NewTONGateway creates a TON gateway against the given HTTP endpoint.
func NewTONGateway(endpoint, apiKey, wallet string, coinsPerTon int64) *TONGateway {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(15 * time.Second).
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
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &TONGateway{http: client, wallet: wallet, coinsPerTon: coinsPerTon}
}

// Name returns the gateway identifier.
func (g *TONGateway) Name() string { return "ton" }

// coinsToNano converts internal coins to nanoTON at the configured rate.
func (g *TONGateway) coinsToNano(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).
		Div(decimal.NewFromInt(g.coinsPerTon)).
		Mul(nanotonPerTon).
		Truncate(0)
}

type tonBalanceResponse struct {
	BalanceNano decimal.Decimal `json:"balance_nano"`
}

type tonTransferRequest struct {
	FromWallet string `json:"from_wallet"`
	ToUser     string `json:"to_username"`
	AmountNano string `json:"amount_nano"`
	Message    string `json:"message"`
	Currency   string `json:"currency"`
}

type tonTransferResponse struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// walletBalance fetches the payout wallet balance in nanoTON.
func (g *TONGateway) walletBalance(ctx context.Context) (decimal.Decimal, error) {
	var result tonBalanceResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("wallet", g.wallet).
		SetResult(&result).
		Get("/getBalance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode(), resp.String())
	}
	return result.BalanceNano, nil
}

// Pay transfers the coin amount, converted to nanoTON, to the user.
// The wallet must hold the amount plus the fee reserve.
func (g *TONGateway) Pay(ctx context.Context, toUser int64, amount int64, memo string) (*Receipt, error) {
	amountNano := g.coinsToNano(amount)

	balance, err := g.walletBalance(ctx)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amountNano.Add(feeReserveNano)) {
		log.Error().
			Str("balance_nano", balance.String()).
			Str("amount_nano", amountNano.String()).
			Msg("TON wallet balance too low for payout")
		return nil, ErrInsufficientWallet
	}

	body := tonTransferRequest{
		FromWallet: g.wallet,
		ToUser:     fmt.Sprintf("%d", toUser),
		AmountNano: amountNano.String(),
		Message:    memo,
		Currency:   "TON",
	}

	var result tonTransferResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post("/sendStars")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrPaymentRejected, resp.StatusCode(), result.Error)
	}

	log.Info().
		Int64("user_id", toUser).
		Int64("amount", amount).
		Str("amount_nano", amountNano.String()).
		Str("tx_hash", result.TxHash).
		Msg("TON payout sent")

	return &Receipt{
		Provider:  g.Name(),
		Reference: result.TxHash,
		Amount:    amount,
		PaidAt:    time.Now(),
	}, nil
}
