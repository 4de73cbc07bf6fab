package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/EmbraceSQL/embracesql/internal/application/services"
	"github.com/EmbraceSQL/embracesql/internal/config"
	"github.com/EmbraceSQL/embracesql/internal/domain/models"
	"github.com/EmbraceSQL/embracesql/internal/interfaces/middleware"
	"github.com/EmbraceSQL/embracesql/pkg/auth"
	"github.com/EmbraceSQL/embracesql/pkg/errors"
)

// NewRouter serves every module of the current engine at
// /<database>/<restPath>. Modules are looked up per request, so a reload is
// picked up without rebuilding the router.
func NewRouter(manager *services.EngineManager, cfg *config.Configuration, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.BearerToken(auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.IgnoreExp), logger))

	h := &ModuleHandler{manager: manager, logger: logger}
	router.GET("/health", h.Health)
	router.GET("/:database/*restPath", h.Get)
	router.POST("/:database/*restPath", h.Post)
	return router
}

// ModuleHandler dispatches HTTP requests into module pipelines.
type ModuleHandler struct {
	manager *services.EngineManager
	logger  *zap.SugaredLogger
}

// Health lists the open databases and how many modules are served.
func (h *ModuleHandler) Health(c *gin.Context) {
	modules := 0
	if engine := h.manager.Engine(); engine != nil {
		modules = len(engine.Modules())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"databases": h.manager.Databases(),
		"modules":   modules,
	})
}

// Get runs read only modules, the query string is the single parameter set.
func (h *ModuleHandler) Get(c *gin.Context) {
	module, err := h.module(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if module.CanModifyData {
		c.JSON(http.StatusMethodNotAllowed, errors.ErrorResponse{
			Code:    "METHOD_NOT_ALLOWED",
			Message: module.RestPath + " modifies data, use POST",
		})
		return
	}

	set := models.ParameterSet{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			set[key] = values[0]
		}
	}
	h.invoke(c, module, models.Single(set))
}

// Post runs any module. The body is empty, one object, or an array of
// objects for a batch.
func (h *ModuleHandler) Post(c *gin.Context) {
	module, err := h.module(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, errors.NewValidationError("body", err.Error()))
		return
	}
	var params models.Parameters
	if err := params.UnmarshalJSON(body); err != nil {
		h.respondError(c, errors.NewValidationError("body", err.Error()))
		return
	}
	h.invoke(c, module, params)
}

func (h *ModuleHandler) module(c *gin.Context) (*models.AutocrudModule, error) {
	engine := h.manager.Engine()
	if engine == nil {
		return nil, errors.NewInternalError("engine is not started", nil)
	}
	database := c.Param("database")
	restPath := strings.Trim(c.Param("restPath"), "/")
	contextName := models.ContextName(database, restPath)

	// context names are normalized, the path must match exactly
	p, ok := engine.Pipeline(contextName)
	if !ok || p.Module().Database != database || p.Module().RestPath != restPath {
		return nil, errors.NewNotFoundError("module", database+"/"+restPath)
	}
	return p.Module(), nil
}

func (h *ModuleHandler) invoke(c *gin.Context, module *models.AutocrudModule, params models.Parameters) {
	invocation := models.NewContext(params)
	invocation.Token = middleware.Token(c)
	invocation.Headers = headers(c.Request.Header)

	if err := h.manager.Invoke(c.Request.Context(), module.ContextName, invocation); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invocation.Results)
}

// respondError sends the structured error body with the error's status.
func (h *ModuleHandler) respondError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	switch {
	case code >= 500:
		h.logger.Errorw("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	case errors.IsNotFound(err), errors.IsValidation(err):
		h.logger.Debugw("request rejected", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
	}
	_ = c.Error(err)
	c.JSON(code, errors.ToResponse(err))
}

// headers flattens request headers, lower cased, first value only.
func headers(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			flat[strings.ToLower(key)] = values[0]
		}
	}
	return flat
}
