package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"ludice-backend/internal/config"
	"ludice-backend/internal/handler"
	"ludice-backend/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	accountHandler *handler.AccountHandler
	gameHandler    *handler.GameHandler
	paymentHandler *handler.PaymentHandler
	rankingHandler *handler.RankingHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds the services the bot handlers need.
type Dependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	GameService    *service.GameService
	RankingService *service.RankingService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,

		accountHandler: handler.NewAccountHandler(deps.AccountService),
		gameHandler:    handler.NewGameHandler(deps.GameService),
		paymentHandler: handler.NewPaymentHandler(deps.AccountService),
		rankingHandler: handler.NewRankingHandler(deps.RankingService),
		adminHandler:   handler.NewAdminHandler(deps.AccountService),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/me", b.accountHandler.HandleMe)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)

	// Matchmaking and play
	b.bot.Handle("/bet", b.gameHandler.HandleBet)
	b.bot.Handle("/join", b.gameHandler.HandleJoin)
	b.bot.Handle("/cancel", b.gameHandler.HandleCancel)
	b.bot.Handle("/leave", b.gameHandler.HandleLeave)
	b.bot.Handle("/result", b.gameHandler.HandleResult)
	b.bot.Handle(tele.OnDice, b.gameHandler.HandleDice)

	// Payments
	b.bot.Handle("/deposit", b.paymentHandler.HandleDeposit)
	b.bot.Handle("/withdraw", b.paymentHandler.HandleWithdraw)

	// Leaderboards
	b.bot.Handle("/top_games", b.rankingHandler.HandleTopGames)
	b.bot.Handle("/top_winrate", b.rankingHandler.HandleTopWinRate)

	// Admin
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)
}

// Start starts the bot polling loop.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
