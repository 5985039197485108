package api

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
)

// HeaderAPIKey carries the key for the indexing endpoints.
const HeaderAPIKey = "X-API-Key"

var errAPIKeyNotConfigured = errors.New("server configuration error: api key is not set")

// apiKeyMiddleware rejects requests whose X-API-Key does not match the
// configured key. Without a configured key every request is refused.
func (s *Server) apiKeyMiddleware() fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + HeaderAPIKey,
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if s.config.APIKey == "" {
				return false, errAPIKeyNotConfigured
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIKey)) != 1 {
				return false, keyauth.ErrMissingOrMalformedAPIKey
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, errAPIKeyNotConfigured) {
				s.logger.Error("rejecting indexing request", "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid API key"})
		},
	})
}
