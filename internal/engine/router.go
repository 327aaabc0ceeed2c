package engine

import "github.com/gofiber/fiber/v2"

// RegisterDynamicRoutes mounts the record and relation endpoints. Every
// route runs the base middleware chain; mutating routes additionally run
// writeMW (role enforcement in the production wiring).
func RegisterDynamicRoutes(app *fiber.App, h *Handler, baseMW, writeMW []fiber.Handler) {
	api := app.Group("/api", baseMW...)

	write := func(handler fiber.Handler) []fiber.Handler {
		chain := make([]fiber.Handler, 0, len(writeMW)+1)
		chain = append(chain, writeMW...)
		return append(chain, handler)
	}

	api.Post("/_metadata/reload", write(h.ReloadMetadata)...)

	api.Get("/:entity", h.List)
	api.Get("/:entity/:id", h.GetByID)
	api.Post("/:entity", write(h.Create)...)
	api.Get("/:entity/:id/:relation", h.GetRelation)
	api.Put("/:entity/:id/:relation", write(h.SetRelation)...)
}
