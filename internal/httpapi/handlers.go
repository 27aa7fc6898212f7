package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/facets/internal/ir"
	"github.com/roach88/facets/internal/params"
)

// ParamsResponse is the body of GET /api/v1/params.
type ParamsResponse struct {
	Keys   []string                     `json:"keys"`
	Params map[string]map[string]string `json:"params"`
}

// ProductsResponse is the body of the product listing endpoints.
type ProductsResponse struct {
	ProductIDs []int64 `json:"product_ids"`
	Count      int     `json:"count"`
}

var paramTypes = []string{params.TypePrice, params.TypeRating, params.TypeStatus, params.TypeAttribute, params.TypeTaxonomy}

func queryVars(c *gin.Context) ir.QueryVars {
	return ir.QueryVarsFromURL(c.Request.URL.Query())
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	s.logger.Warn("request failed",
		"request_id", c.GetString(requestIDKey),
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getParams(c *gin.Context) {
	ctx := c.Request.Context()
	p := s.engine.Params()
	keys, err := p.ParamKeys(ctx)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	resp := ParamsResponse{Keys: keys, Params: make(map[string]map[string]string, len(paramTypes))}
	for _, typ := range paramTypes {
		m, err := p.Param(ctx, typ)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		resp.Params[typ] = m
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getProducts(c *gin.Context) {
	ids, err := s.engine.ProductIDs(c.Request.Context(), queryVars(c))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ProductsResponse{ProductIDs: ids, Count: len(ids)})
}

// getArchive lists the main archive query. archive=false treats the
// request as a non-archive page, which leaves the query unfiltered.
func (s *Server) getArchive(c *gin.Context) {
	archive := true
	if raw := c.Query("archive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, http.StatusBadRequest, err)
			return
		}
		archive = v
	}

	ids, err := s.engine.Archive(c.Request.Context(), queryVars(c), archive)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, ProductsResponse{ProductIDs: ids, Count: len(ids)})
}

func (s *Server) getFacets(c *gin.Context) {
	set, err := s.engine.Facets(c.Request.Context(), queryVars(c))
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// count serves one facet of the request's query as given.
func (s *Server) count(filterType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.engine.Count(c.Request.Context(), filterType, c.Param("taxonomy"), queryVars(c))
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) getHierarchy(c *gin.Context) {
	taxonomy := c.Param("taxonomy")
	tree, err := s.engine.Hierarchy().Tree(c.Request.Context(), taxonomy)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taxonomy": taxonomy, "tree": tree})
}

// postInvalidate bumps the filter data version. With ?taxonomy= it also
// drops that taxonomy's hierarchy.
func (s *Server) postInvalidate(c *gin.Context) {
	ctx := c.Request.Context()
	cc := s.engine.CacheController()
	if taxonomy := c.Query("taxonomy"); taxonomy != "" {
		if err := cc.ClearHierarchy(ctx, taxonomy); err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return
		}
	}
	if err := cc.ClearFilterDataCache(ctx); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
