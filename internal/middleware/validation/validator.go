package validation

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SanitizedMessageKey is the fiber.Locals key holding the cleaned chat
// message.
const SanitizedMessageKey = "sanitized_message"

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageLength    int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg *Config) withDefaults() {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 2 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// ContentType rejects write requests whose body is not an allowed type.
func ContentType(cfg Config) fiber.Handler {
	cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		default:
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" || len(c.Body()) == 0 {
			return c.Next()
		}
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported content type",
		})
	}
}

// ChatMessage checks the "message" field of a chat payload and stores the
// sanitized text under SanitizedMessageKey.
func ChatMessage(cfg Config) fiber.Handler {
	cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		var req struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message is required and must be a string",
			})
		}

		message := *req.Message
		if utf8.RuneCountInString(message) > cfg.MaxMessageLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Message exceeds maximum length",
			})
		}

		if containsXSS(message) {
			cfg.Logger.Warn("Potential XSS attempt",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid message content",
			})
		}

		c.Locals(SanitizedMessageKey, sanitizeString(message))
		return c.Next()
	}
}

// ImportPayload checks an import request. It needs HTML within the size
// limit or a valid http(s) source URL to fetch it from.
func ImportPayload(cfg Config) fiber.Handler {
	cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		var req struct {
			SourceURL string `json:"source_url"`
			HTML      string `json:"html"`
		}
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		if req.SourceURL != "" && !isValidURL(req.SourceURL) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid URL format",
			})
		}

		if strings.TrimSpace(req.HTML) == "" && req.SourceURL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "HTML or source URL is required",
			})
		}
		if len(req.HTML) > cfg.MaxDocumentSize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Document exceeds maximum size",
			})
		}

		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
