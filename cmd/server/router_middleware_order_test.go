package main

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestReservationMiddlewareOrder(t *testing.T) {
	type stack []string

	mw := func(s *stack, id string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			*s = append(*s, id)
			return c.Next() // just record & pass through
		}
	}
	final := func(s *stack, id string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			*s = append(*s, id)
			return c.SendStatus(200) // terminate the chain with 200
		}
	}

	tests := []struct {
		name   string
		method string
		path   string
		expect []string
	}{
		{"booking goes through jwt then limiter", fiber.MethodPost, "/api/v1/reservations/", []string{"jwt", "limiter", "handler"}},
		{"list skips limiter", fiber.MethodGet, "/api/v1/reservations/", []string{"jwt", "handler"}},
		{"status change skips limiter", fiber.MethodPatch, "/api/v1/reservations/abc/status", []string{"jwt", "handler"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var trace stack
			app := fiber.New()

			jwtSpy := mw(&trace, "jwt")
			limiterSpy := mw(&trace, "limiter")
			handlerSpy := final(&trace, "handler")

			grp := app.Group("/api/v1/reservations", jwtSpy)
			grp.Post("/", limiterSpy, handlerSpy)
			grp.Get("/", handlerSpy)
			grp.Patch("/:id/status", handlerSpy)

			req := httptest.NewRequest(tc.method, tc.path, nil)
			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			assert.Equal(t, tc.expect, []string(trace),
				"middleware execution order drifted")
		})
	}
}
