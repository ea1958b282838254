package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/niwla23/containerpanel/internal/template"
)

const (
	templateCacheKeyList   = "templates_all"
	templateCacheKeyPrefix = "template_"
	templateCacheTTL       = 5 * time.Minute
	templateCacheCleanup   = 10 * time.Minute
)

// Cache for the template catalog; template files only change on deploys.
var templateCache = cache.New(templateCacheTTL, templateCacheCleanup)

// ListTemplates returns the template catalog.
func ListTemplates(templates *template.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cached, found := templateCache.Get(templateCacheKeyList); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		infos, err := templates.List()
		if err != nil {
			writeError(c, err)
			return
		}

		templateCache.Set(templateCacheKeyList, infos, templateCacheTTL)
		c.JSON(http.StatusOK, infos)
	}
}

// GetTemplate returns one template including its options.
func GetTemplate(templates *template.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		cacheKey := templateCacheKeyPrefix + name
		if cached, found := templateCache.Get(cacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		detail, err := templates.Get(name)
		if err != nil {
			writeError(c, err)
			return
		}

		templateCache.Set(cacheKey, detail, templateCacheTTL)
		c.JSON(http.StatusOK, detail)
	}
}
