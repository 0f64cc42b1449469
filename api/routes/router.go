package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/kitchenpay-backend/api/controllers"
	"github.com/angelmondragon/kitchenpay-backend/api/middleware"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type OpsParams struct {
	Env          string
	Logger       *logger.Logger
	Dependencies []controllers.Dependency
	Balances     controllers.BalanceReader
	Clearance    controllers.ClearanceReader
	DeadLetters  controllers.DeadLetterStore
	Metrics      http.Handler
}

// NewOpsRouter serves health checks, the Prometheus scrape endpoint and read-only
// wallet and clearance inspection for operators. It is not exposed to sellers.
func NewOpsRouter(params OpsParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		middleware.RequestContext(params.Logger),
		middleware.Logging(params.Logger),
		middleware.Recover(params.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(params.Env))
		r.Get("/ready", controllers.HealthReady(params.Env, params.Logger, params.Dependencies))
	})
	r.Get("/healthz", controllers.HealthLive(params.Env))

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics)
	}

	if params.Balances != nil {
		r.Get("/ops/v1/wallets/{tenantId}/{sellerId}", controllers.WalletBalances(params.Balances, params.Logger))
	}
	if params.Clearance != nil {
		r.Get("/ops/v1/orders/{orderId}/clearance", controllers.OrderClearance(params.Clearance, params.Logger))
	}

	if params.DeadLetters != nil {
		r.Get("/ops/v1/outbox/dead-letters", controllers.OutboxDeadLetters(params.DeadLetters, params.Logger))
		r.Post("/ops/v1/outbox/dead-letters/{eventId}/requeue", controllers.RequeueDeadLetter(params.DeadLetters, params.Logger))
	}

	return r
}
