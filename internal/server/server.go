// Package server exposes candidate matching over HTTP for the CRM.
package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/talent-match/internal/geo"
	"github.com/spigell/talent-match/internal/matching"
	"github.com/spigell/talent-match/internal/records"
	"github.com/spigell/talent-match/internal/scoring"
	"github.com/spigell/talent-match/internal/store"
)

const appName = "talent-match"

// RunStore persists batch reports. *store.Store satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, report *matching.Report) error
	ListRuns(ctx context.Context, jobID string, limit int) ([]*store.Run, error)
	GetRun(ctx context.Context, id string) (*matching.Report, error)
}

type Options struct {
	Scorer matching.Scorer
	Batch  *matching.Batch
	// Store is optional. Without it batches are not persisted and the run
	// endpoints answer 503.
	Store  RunStore
	Logger *zap.Logger
}

type Server struct {
	app    *fiber.App
	scorer matching.Scorer
	batch  *matching.Batch
	store  RunStore
	logger *zap.Logger
}

type matchRequest struct {
	Candidate records.Document `json:"candidate"`
	Job       records.Document `json:"job"`
	Filters   map[string]any   `json:"filters"`
}

type batchRequest struct {
	Job        records.Document   `json:"job"`
	Candidates []records.Document `json:"candidates"`
	Filters    map[string]any     `json:"filters"`
}

func New(opts Options) (*Server, error) {
	if opts.Scorer == nil || opts.Batch == nil {
		return nil, errors.New("scorer and batch are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		scorer: opts.Scorer,
		batch:  opts.Batch,
		store:  opts.Store,
		logger: opts.Logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(healthcheck.New())
	s.app.Use(s.logRequests)

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	v1 := s.app.Group("/v1")
	v1.Post("/match", s.match)
	v1.Post("/match/batch", s.matchBatch)
	v1.Get("/runs", s.listRuns)
	v1.Get("/runs/:id", s.getRun)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) match(c *fiber.Ctx) error {
	var req matchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	candidate, err := records.DecodeCandidate(req.Candidate, "")
	if err != nil {
		return badRequest(err)
	}
	job, err := records.DecodeJob(req.Job, "")
	if err != nil {
		return badRequest(err)
	}
	if err := candidate.Validate(); err != nil {
		return badRequest(err)
	}
	if err := job.Validate(); err != nil {
		return badRequest(err)
	}

	filters, err := scoring.ParseFilters(req.Filters)
	if err != nil {
		return badRequest(err)
	}

	detail, err := matching.Single(c.UserContext(), s.scorer, candidate, job, filters)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

func (s *Server) matchBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	job, err := records.DecodeJob(req.Job, "")
	if err != nil {
		return badRequest(err)
	}
	if err := job.Validate(); err != nil {
		return badRequest(err)
	}

	candidates := &records.Candidates{Items: make([]*records.Candidate, 0, len(req.Candidates))}
	for i, doc := range req.Candidates {
		candidate, err := records.DecodeCandidate(doc, "#"+strconv.Itoa(i))
		if err != nil {
			return badRequest(fmt.Errorf("candidate %d: %w", i, err))
		}
		if err := candidate.Validate(); err != nil {
			return badRequest(err)
		}
		candidates.Items = append(candidates.Items, candidate)
	}

	filters, err := scoring.ParseFilters(req.Filters)
	if err != nil {
		return badRequest(err)
	}

	report, err := s.batch.Run(c.UserContext(), job, candidates, filters)
	if err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.SaveRun(c.UserContext(), report); err != nil {
			s.logger.Error("failed to save run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	return c.JSON(report)
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "run history is not configured")
	}

	runs, err := s.store.ListRuns(c.UserContext(), c.Query("job"), c.QueryInt("limit", store.DefaultListLimit))
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func (s *Server) getRun(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "run history is not configured")
	}

	report, err := s.store.GetRun(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, records.ErrNotFound):
		code = fiber.StatusNotFound
	case geo.IsGeocodingError(err):
		code = fiber.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = fiber.StatusGatewayTimeout
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}

	s.logger.Debug("http request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}
