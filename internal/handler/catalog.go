package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/edusong/internal/model"
	"github.com/makeasinger/edusong/pkg/response"
)

type CatalogHandler struct {
	catalog model.Catalog
}

func NewCatalogHandler(catalog model.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Get handles GET /api/catalog
// @Summary      Answer choices
// @Description  Subjects, topics per subject and music genres offered by the wizard
// @Tags         Catalog
// @Produce      json
// @Success      200 {object} model.Catalog
// @Router       /api/catalog [get]
func (h *CatalogHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.catalog)
}
