package main

import (
	"github.com/go-chi/chi/v5"

	"github.com/ligadeals/ligadeals-web/internal/formhttp"
	"github.com/ligadeals/ligadeals-web/internal/httpmw"
	"github.com/ligadeals/ligadeals-web/internal/ratelimit"
	"github.com/ligadeals/ligadeals-web/internal/revalidatehttp"
	"github.com/ligadeals/ligadeals-web/internal/videohttp"
)

// apiRoutes mounts everything under /api. Every route shares the API-wide
// window; the browser-facing routes also get the origin policy. The CMS
// webhook is called server to server and sends no Origin worth checking.
type apiRoutes struct {
	limit      *ratelimit.FixedWindow
	cors       httpmw.OriginPolicy
	revalidate *revalidatehttp.API
	forms      *formhttp.API
	video      *videohttp.API
}

func (a apiRoutes) register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if a.limit != nil {
			r.Use(a.limit.Middleware)
		}
		if a.revalidate != nil {
			r.With(httpmw.Scope("revalidate")).Group(a.revalidate.RegisterRoutes)
		}
		r.Group(func(r chi.Router) {
			r.Use(httpmw.CORS(a.cors))
			if a.forms != nil {
				r.With(httpmw.Scope("forms")).Group(a.forms.RegisterRoutes)
			}
			if a.video != nil {
				r.With(httpmw.Scope("video")).Group(a.video.RegisterRoutes)
			}
		})
	})
}
