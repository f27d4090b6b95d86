package server

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"ngxwhitelist/internal/history"
	"ngxwhitelist/internal/install"
	"ngxwhitelist/internal/nginx"
	"ngxwhitelist/internal/pipeline"
	"ngxwhitelist/internal/reload"
	"ngxwhitelist/internal/routes"
	"ngxwhitelist/internal/whitelist"
)

type generateRequest struct {
	Config      string   `json:"config"`
	Routes      []string `json:"routes"`
	Normalize   *bool    `json:"normalize"`
	Limit       int      `json:"limit"`
	DenyStatus  int      `json:"deny_status"`
	IncludePath string   `json:"include_path"`
	Strict      *bool    `json:"strict"`
	Install     bool     `json:"install"`
	Reload      bool     `json:"reload"`
	Diff        bool     `json:"diff"`
}

type generateResponse struct {
	RunID            string   `json:"run_id"`
	Whitelist        string   `json:"whitelist"`
	Shared           string   `json:"shared"`
	Groups           int      `json:"groups"`
	SharedDirectives int      `json:"shared_directives"`
	Warnings         []string `json:"warnings"`
	Diff             string   `json:"diff,omitempty"`
	Installed        bool     `json:"installed"`
	Reloaded         bool     `json:"reloaded"`
}

func (s *Server) generate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validateGenerateRequest(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if (req.Install || req.Reload) && !s.AllowInstall {
		return fiber.NewError(fiber.StatusForbidden, "install over the API is disabled")
	}

	source, err := s.source(req)
	if err != nil {
		return err
	}
	var missing []string
	if source == nil {
		missing = append(missing, "nginx-config")
	}
	if req.Routes == nil {
		missing = append(missing, "routes")
	}
	if len(missing) > 0 {
		return statusFor(&whitelist.MissingInputError{Fields: missing})
	}
	patterns := req.Routes
	// Route templates are normalized unless the caller opts out.
	if req.Normalize == nil || *req.Normalize {
		patterns = routes.Normalize(patterns)
	}

	opts := s.Defaults
	opts.Logger = s.Logger
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.DenyStatus != 0 {
		opts.DenyStatus = req.DenyStatus
	}
	if req.IncludePath != "" {
		opts.IncludePath = req.IncludePath
	}
	if req.Strict != nil {
		opts.StrictLimit = *req.Strict
	}

	out, err := s.Pipeline.Run(c.UserContext(), pipeline.Request{
		Origin:   history.SourceAPI,
		Source:   source,
		Patterns: patterns,
		Options:  opts,
		Install:  req.Install,
		Reload:   req.Reload,
		Diff:     req.Diff,
	})
	if err != nil {
		return statusFor(err)
	}

	resp := generateResponse{
		RunID:            out.Run.ID,
		Whitelist:        string(out.Result.Whitelist),
		Shared:           string(out.Result.Shared),
		Groups:           len(out.Result.Groups),
		SharedDirectives: out.Result.SharedDirectives,
		Warnings:         []string{},
		Diff:             out.Diff,
		Installed:        out.Run.Installed,
		Reloaded:         out.Run.Reloaded,
	}
	for _, w := range out.Result.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return c.JSON(resp)
}

// source returns nil when neither the request nor the server supplies a
// config, which Generate reports as a missing input.
func (s *Server) source(req generateRequest) ([]byte, error) {
	if req.Config != "" {
		return []byte(req.Config), nil
	}
	if s.DefaultSource == nil {
		return nil, nil
	}
	data, err := s.DefaultSource()
	if err != nil {
		s.Logger.Error("default_source_unreadable", slog.Any("err", err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "configured nginx config is unreadable")
	}
	return data, nil
}

// statusFor maps pipeline errors onto HTTP errors.
func statusFor(err error) error {
	var (
		missing  *whitelist.MissingInputError
		invalid  *whitelist.InvalidPatternError
		tooLarge *whitelist.PatternTooLargeError
		parseErr *nginx.ParseError
		instErr  *install.Error
		relErr   *reload.Error
	)
	switch {
	case errors.As(err, &missing):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &invalid), errors.As(err, &tooLarge), errors.As(err, &parseErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &relErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.As(err, &instErr):
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return err
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
	}
	runs, err := s.History.Recent(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"runs": runs})
}

func (s *Server) getRun(c *fiber.Ctx) error {
	run, err := s.History.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, history.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(run)
}

func (s *Server) healthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	status := "ok"
	checks := fiber.Map{}
	for name, check := range s.Checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "checks": checks})
}
