package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/search"
)

// handleSearch handles POST /api/search with a JSON search.Request body.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req search.Request
	if err := c.BodyParser(&req); err != nil {
		return errdefs.Invalid("body", "must be a JSON search request")
	}
	return s.search(c, req)
}

// handleSearchQuery handles GET /api/search.
// Query parameters:
//   - query or similar (exactly one): the search text or reference object key
//   - limit (optional, default 30): number of results to return
//   - offset (optional, default 0): number of results to skip
//   - delta (optional, default "alle"): delta filter
func (s *Server) handleSearchQuery(c *fiber.Ctx) error {
	req := search.Request{
		Query:     c.Query("query"),
		SimilarTo: c.Query("similar"),
		Delta:     c.Query("delta"),
	}

	var err error
	if req.Limit, err = intQuery(c, "limit"); err != nil {
		return err
	}
	if req.Offset, err = intQuery(c, "offset"); err != nil {
		return err
	}
	return s.search(c, req)
}

func (s *Server) search(c *fiber.Ctx, req search.Request) error {
	results, err := s.config.Searcher.Search(c.UserContext(), req)
	if err != nil {
		return err
	}
	if results == nil {
		results = []search.Result{}
	}
	return c.JSON(results)
}

func intQuery(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errdefs.Invalid(name, "must be an integer")
	}
	return v, nil
}
