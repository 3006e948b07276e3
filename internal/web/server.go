package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/asmbly/membersync/internal/batch"
	"github.com/asmbly/membersync/internal/config"
	"github.com/asmbly/membersync/internal/neon"
	"github.com/asmbly/membersync/internal/openpath"
)

// Server exposes the manual sync triggers: a per-account sync for
// webhook-style integration and a kick for a full batch run.
type Server struct {
	app        *fiber.App
	logger     *slog.Logger
	reconciler batch.Reconciler
	runner     *batch.Runner
	locks      *batch.MemberLocks
	config     config.ServerConfig
}

func NewServer(logger *slog.Logger, reconciler batch.Reconciler, runner *batch.Runner, locks *batch.MemberLocks, cfg config.ServerConfig) *Server {
	s := &Server{
		logger:     logger,
		reconciler: reconciler,
		runner:     runner,
		locks:      locks,
		config:     cfg,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Get("/healthz", s.handleHealth)
	app.Post("/sync", s.handleBatchSync)
	app.Post("/sync/:accountID<int>", s.handleAccountSync)

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	return s.app.Listen(s.config.Host + ":" + s.config.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type syncResponse struct {
	AccountID   int     `json:"account_id"`
	OpenPathID  int64   `json:"openpath_id,omitempty"`
	Transition  string  `json:"transition"`
	Entitled    []int64 `json:"entitled_groups"`
	Wrote       bool    `json:"wrote"`
	Provisioned bool    `json:"provisioned"`
	Skipped     bool    `json:"skipped,omitempty"`
	SkipReason  string  `json:"skip_reason,omitempty"`
}

// handleAccountSync reconciles a single account on demand, holding
// its lock so a concurrent batch run cannot interleave.
func (s *Server) handleAccountSync(c *fiber.Ctx) error {
	accountID, err := c.ParamsInt("accountID")
	if err != nil || accountID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid account id"})
	}

	s.locks.Lock(accountID)
	outcome, err := s.reconciler.Reconcile(c.UserContext(), accountID)
	s.locks.Unlock(accountID)

	if err != nil {
		if errors.Is(err, neon.ErrMemberNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "member not found"})
		}
		var statusErr *openpath.StatusError
		if errors.As(err, &statusErr) {
			s.logger.Error("Sync failed on OpenPath call",
				"account_id", accountID, "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "access control system error"})
		}
		s.logger.Error("Sync failed", "account_id", accountID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync failed"})
	}

	return c.JSON(syncResponse{
		AccountID:   outcome.AccountID,
		OpenPathID:  outcome.OpenPathID,
		Transition:  string(outcome.Transition),
		Entitled:    outcome.Entitled.IDs(),
		Wrote:       outcome.Wrote,
		Provisioned: outcome.Provisioned,
		Skipped:     outcome.Skipped,
		SkipReason:  outcome.SkipReason,
	})
}

// handleBatchSync starts a full run in the background; progress lands
// in the logs and metrics. The run is detached from the request
// context because fiber recycles it when the handler returns.
func (s *Server) handleBatchSync(c *fiber.Ctx) error {
	go func() {
		if _, err := s.runner.Run(context.Background()); err != nil {
			s.logger.Error("Triggered batch run failed", "error", err)
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}
