// Package validation rejects malformed plot requests before they reach the
// engine.
package validation

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/eruption-duration/backend/internal/activity"
)

var markupPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxNameLength int
	// PlotPaths are the POST routes whose bodies are plot requests.
	PlotPaths []string
	Logger    *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxNameLength == 0 {
		cfg.MaxNameLength = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	plotPaths := make(map[string]bool, len(cfg.PlotPaths))
	for _, p := range cfg.PlotPaths {
		plotPaths[normalizePath(p)] = true
	}

	return func(c *fiber.Ctx) error {
		// routing is not strict, so "/plots/" reaches the "/plots" handler
		if c.Method() != fiber.MethodPost || !plotPaths[normalizePath(c.Path())] {
			return c.Next()
		}

		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			return reject(c, fiber.StatusUnsupportedMediaType, "Content-Type must be application/json")
		}

		var req map[string]interface{}
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return reject(c, fiber.StatusBadRequest, "Invalid JSON format")
		}

		kind, ok := req["kind"].(string)
		if !ok || kind == "" {
			return reject(c, fiber.StatusBadRequest, "kind is required and must be a string")
		}
		if _, err := activity.ParseKind(kind); err != nil {
			return reject(c, fiber.StatusBadRequest, err.Error())
		}

		name, ok := req["volcano"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return reject(c, fiber.StatusBadRequest, "volcano is required and must be a string")
		}
		if len(name) > cfg.MaxNameLength {
			return reject(c, fiber.StatusBadRequest, "volcano name exceeds maximum length")
		}
		if hasControl(name) || markupPattern.MatchString(name) {
			cfg.Logger.Warn("Suspicious volcano name",
				zap.String("ip", c.IP()),
				zap.String("volcano", name),
			)
			return reject(c, fiber.StatusBadRequest, "Invalid volcano name")
		}

		for _, field := range []string{"explosive", "continuous"} {
			if v, present := req[field]; present {
				if _, ok := v.(string); !ok {
					return reject(c, fiber.StatusBadRequest, field+" must be a string")
				}
			}
		}
		if v, present := req["vei"]; present && v != nil {
			n, ok := v.(float64)
			if !ok || n != math.Trunc(n) {
				return reject(c, fiber.StatusBadRequest, "vei must be an integer")
			}
		}

		return c.Next()
	}
}

func reject(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"kind":  "validation",
	})
}

func normalizePath(p string) string {
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func hasControl(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
