package handlers

import (
	"context"
	"log/slog"

	"trivia-duel/middleware"
	"trivia-duel/realtime"
	"trivia-duel/services"
	"trivia-duel/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Deps is everything the HTTP and websocket surface needs.
type Deps struct {
	Tokens     *utils.TokenIssuer
	AdminToken string
	Logger     *slog.Logger

	Auth      *services.AuthService
	Queue     *services.QueueService
	Questions *services.QuestionService
	Matches   *services.MatchService
	Gateway   *realtime.Gateway
}

// SetupRoutes mounts every route. ctx bounds websocket sessions: engine calls
// made on behalf of a connection use it.
func SetupRoutes(ctx context.Context, app *fiber.App, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/auth/login", d.Auth.Login)

	authed := middleware.JWTAuthMiddleware(d.Tokens, d.Logger)
	admin := middleware.ServiceTokenMiddleware(d.AdminToken, d.Logger)

	matchmaking := app.Group("/matchmaking", authed)
	matchmaking.Post("/join", d.Queue.Join)
	matchmaking.Post("/leave", d.Queue.Leave)

	app.Get("/question/:id", authed, d.Questions.GetQuestion)
	app.Post("/question", admin, d.Questions.CreateQuestion)
	app.Patch("/question/:id", admin, d.Questions.UpdateQuestion)
	app.Delete("/question/:id", admin, d.Questions.DeleteQuestion)

	app.Get("/match/:id", authed, d.Matches.GetMatch)

	SetupRealtimeRoutes(ctx, app, d.Gateway, d.Tokens, d.Logger)
}

// SetupRealtimeRoutes mounts the match websocket at /ws.
func SetupRealtimeRoutes(ctx context.Context, app *fiber.App, gw *realtime.Gateway, tokens *utils.TokenIssuer, logger *slog.Logger) {
	app.Get("/ws",
		middleware.WebsocketAuthMiddleware(tokens, logger),
		websocket.New(func(conn *websocket.Conn) {
			userID, _ := conn.Locals(middleware.UserIDKey).(string)
			gw.Serve(ctx, userID, conn)
		}),
	)
}
