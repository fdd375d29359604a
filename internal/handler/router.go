package handler

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"num": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	// previews are data: URLs built from sniffed images; anything else is dropped
	"preview": func(s string) template.URL {
		if !strings.HasPrefix(s, "data:image/") {
			return ""
		}
		return template.URL(s)
	},
}

// Templates parses the embedded page templates
func Templates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// NewRouter builds the viewer engine with its middleware chain
func (h *Handler) NewRouter() (*gin.Engine, error) {
	tmpl, err := Templates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(h.logger))
	router.Use(cors.New(h.corsConfig()))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      h.opts.Development,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	store := cookie.NewStore([]byte(h.opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("wristsight", store))
	router.Use(WorkspaceLoader(h.registry, h.logger))
	if h.opts.CSRF {
		router.Use(CSRFProtection())
	}

	router.SetHTMLTemplate(tmpl)
	router.MaxMultipartMemory = int64(h.opts.MaxUploadMB) << 20

	h.RegisterRoutes(router, h.authLimiter())
	return router, nil
}

func (h *Handler) corsConfig() cors.Config {
	config := cors.DefaultConfig()
	if len(h.opts.CORSOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = h.opts.CORSOrigins
		config.AllowCredentials = true
	}
	config.AddAllowHeaders("Authorization", "X-CSRF-Token", "Accept")
	return config
}

func (h *Handler) authLimiter() gin.HandlerFunc {
	perMinute := h.opts.AuthPerMinute
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: uint(perMinute),
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.String(http.StatusTooManyRequests, "Too many attempts. Try again in "+time.Until(info.ResetTime).Round(time.Second).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
