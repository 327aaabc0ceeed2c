package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"orbit-backend/internal/metadata"
	"orbit-backend/internal/record"
	"orbit-backend/internal/relation"
	"orbit-backend/internal/store"
)

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	source   relation.Source
}

func NewHandler(s *store.Store, reg *metadata.Registry) *Handler {
	return &Handler{
		store:    s,
		registry: reg,
		source:   store.NewRelationSource(s, reg),
	}
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "20"))
	if perPage < 1 || perPage > 200 {
		perPage = 20
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %s OFFSET %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table, entity.PKField(),
		pb.Add(perPage), pb.Add((page-1)*perPage))

	rows, err := store.QueryRows(c.Context(), h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}

	countRow, err := store.QueryRow(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", entity.Table))
	if err != nil {
		return fmt.Errorf("count %s: %w", entity.Name, err)
	}

	if includes := parseIncludes(c); len(includes) > 0 {
		if err := LoadIncludes(c.Context(), h.store, h.registry, entity, rows, includes); err != nil {
			return fmt.Errorf("load includes: %w", err)
		}
	}

	// Ensure non-nil slice for JSON
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    countRow["count"],
		},
	})
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	row, err := h.fetchRecord(c.Context(), entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return respondError(c, NotFoundError(entity.Name, id))
		}
		return fmt.Errorf("get %s/%s: %w", entity.Name, id, err)
	}

	if includes := parseIncludes(c); len(includes) > 0 {
		rows := []map[string]any{row}
		if err := LoadIncludes(c.Context(), h.store, h.registry, entity, rows, includes); err != nil {
			return fmt.Errorf("load includes: %w", err)
		}
		row = rows[0]
	}

	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	if entity.PrimaryKey.Generated && body[entity.PKField()] == nil {
		body[entity.PKField()] = uuid.NewString()
	}

	pb := h.store.Dialect.NewParamBuilder()
	var cols, vals []string
	if entity.PrimaryKey.Generated {
		cols = append(cols, entity.PKField())
		vals = append(vals, pb.Add(body[entity.PKField()]))
	}

	// Only client-writable fields pass through; unknown keys are dropped.
	wrote := false
	for _, f := range entity.WritableFields() {
		v, ok := body[f.Name]
		if !ok {
			continue
		}
		wrote = true
		cols = append(cols, f.Name)
		vals = append(vals, pb.Add(v))
	}
	if !wrote {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "No known fields in body"))
	}

	for _, ts := range []string{"created_at", "updated_at"} {
		if entity.HasField(ts) && body[ts] == nil {
			cols = append(cols, ts)
			vals = append(vals, h.store.Dialect.NowExpr())
		}
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		entity.Table, strings.Join(cols, ", "), strings.Join(vals, ", "))
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		return handleWriteError(c, h.store.Dialect.MapError(err))
	}

	row, err := h.fetchRecord(c.Context(), entity, fmt.Sprintf("%v", body[entity.PKField()]))
	if err != nil {
		return fmt.Errorf("read back %s: %w", entity.Name, err)
	}
	return c.Status(201).JSON(fiber.Map{"data": row})
}

// GetRelation handles GET /api/:entity/:id/:relation
//
// The owner row is wrapped in a record, the relation resolver binds its
// collection and the handler waits for the load to settle through the
// callback contract. A missing associated record is a 200 with null data;
// only a store failure produces an error response.
func (h *Handler) GetRelation(c *fiber.Ctx) error {
	_, rel, rec, err := h.resolveRelation(c)
	if err != nil {
		return err
	}

	res := relation.NewHasOne(rel, h.source)
	done := make(chan error, 1)
	res.Fetch(c.Context(), rec, relation.LoadOptions{
		Callback: func(_ *relation.Collection, err error) { done <- err },
	})
	if err := <-done; err != nil {
		log.Printf("ERROR: load relation %s: %v", rel.Name, err)
		return respondError(c, LoadFailedError(rel.Name))
	}

	related, ok := res.Get(c.Context(), rec)
	if !ok {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": related})
}

// SetRelation handles PUT /api/:entity/:id/:relation
//
// The body is either a bare reference {"<pk>": value} or a full associated
// record; a null body clears the relation. The bound collection is reseeded
// and the owner's foreign key is persisted.
func (h *Handler) SetRelation(c *fiber.Ctx) error {
	entity, rel, rec, err := h.resolveRelation(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if len(c.Body()) > 0 && string(c.Body()) != "null" {
		if err := c.BodyParser(&body); err != nil {
			return respondError(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
		}
	}

	res := relation.NewHasOne(rel, h.source)
	var value any
	if body != nil {
		value = body
	}
	related, err := res.Set(c.Context(), rec, value)
	if err != nil {
		return respondError(c, NewAppError("INVALID_PAYLOAD", 400, err.Error()))
	}

	// Persist the owner's foreign key
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		entity.Table, rel.ForeignKey, pb.Add(rec.Get(rel.ForeignKey)),
		entity.PKField(), pb.Add(c.Params("id")))
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		return handleWriteError(c, h.store.Dialect.MapError(err))
	}

	return c.JSON(fiber.Map{"data": related})
}

// ReloadMetadata handles POST /api/_metadata/reload: re-reads the entity and
// relation definitions from the system tables into the registry.
func (h *Handler) ReloadMetadata(c *fiber.Ctx) error {
	if err := metadata.Reload(c.Context(), h.store.DB, h.registry); err != nil {
		return fmt.Errorf("reload metadata: %w", err)
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{"entities": len(h.registry.AllEntities())},
	})
}

// resolveRelation resolves the :entity/:id/:relation triple into metadata
// and a bound owner record.
func (h *Handler) resolveRelation(c *fiber.Ctx) (*metadata.Entity, *metadata.Relation, *record.Record, error) {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return nil, nil, nil, err
	}

	relName := c.Params("relation")
	rel := h.registry.GetRelation(entity.Name, relName)
	if rel == nil {
		return nil, nil, nil, respondError(c, UnknownRelationError(entity.Name, relName))
	}

	id := c.Params("id")
	row, err := h.fetchRecord(c.Context(), entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, respondError(c, NotFoundError(entity.Name, id))
		}
		return nil, nil, nil, fmt.Errorf("get %s/%s: %w", entity.Name, id, err)
	}

	return entity, rel, record.New(row), nil
}

func (h *Handler) fetchRecord(ctx context.Context, entity *metadata.Entity, id string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 1",
		strings.Join(entity.FieldNames(), ", "), entity.Table,
		entity.PKField(), pb.Add(id))
	return store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Entity, error) {
	name := c.Params("entity")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, respondError(c, UnknownEntityError(name))
	}
	return entity, nil
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

func handleWriteError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondError(c, appErr)
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return respondError(c, ConflictError("A record with this value already exists"))
	}
	return err
}

func parseIncludes(c *fiber.Ctx) []string {
	inc := c.Query("include")
	if inc == "" {
		return nil
	}
	var includes []string
	for _, p := range strings.Split(inc, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			includes = append(includes, trimmed)
		}
	}
	return includes
}
