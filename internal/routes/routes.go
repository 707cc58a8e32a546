package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/guildgate/guildgate/internal/authority"
	"github.com/guildgate/guildgate/internal/config"
	"github.com/guildgate/guildgate/internal/ledger"
	"github.com/guildgate/guildgate/internal/middleware"
	"github.com/guildgate/guildgate/internal/notification"
	"github.com/guildgate/guildgate/internal/pending"
	"github.com/guildgate/guildgate/internal/roles"
	"github.com/guildgate/guildgate/internal/session"
	"github.com/guildgate/guildgate/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Outside development the external backends are mandatory, even though
	// main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var records ledger.Ledger
	if d.DB != nil {
		records = ledger.NewPostgresLedger(d.DB)
	} else {
		records = ledger.NewInMemory()
	}

	var sessions session.Store
	if d.Cache != nil {
		sessions = session.NewRedisStore(d.Cache)
	} else {
		sessions = session.NewMemoryStore()
	}

	pendings := pending.NewMemoryRegistry()

	var granter roles.Granter
	if d.Cfg.PlatformToken != "" {
		granter = roles.NewRESTGranter(d.Cfg.PlatformAPIURL, d.Cfg.PlatformToken, d.Cfg.VerifiedRoleID)
	} else {
		granter = roles.NewStaticGranter()
	}

	var auth authority.Client
	if d.Cfg.OAuthClientID != "" {
		auth = authority.NewOAuthClient(
			d.Cfg.OAuthClientID,
			d.Cfg.OAuthClientSecret,
			d.Cfg.RedirectURL(),
			d.Cfg.OAuthAuthURL,
			d.Cfg.OAuthTokenURL,
			d.Cfg.OAuthUserURL,
		)
	} else {
		auth = authority.StaticClient{}
	}

	notifier := notification.NewLoggerNotifier(d.Logger)

	svc := verification.NewService(sessions, pendings, granter, records, notifier, d.Logger, d.Cfg.PublicBaseURL,
		verification.WithChallengeTTL(d.Cfg.ChallengeTTL),
		verification.WithProofTTL(d.Cfg.ProofTTL),
		verification.WithPollInterval(d.Cfg.PollInterval),
	)

	handler := verification.NewHandler(svc)
	webHandler := verification.NewWebHandler(svc, pendings, auth, d.Logger)

	rateLimiter := middleware.StartRateLimit(d.Cache, d.Cfg.StartRateLimit)
	RegisterVerificationRoutes(app, handler, rateLimiter)
	RegisterWebRoutes(app, webHandler, d)

	return nil
}
