package opshttp

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ligadeals/ligadeals-web/internal/apiresp"
	"github.com/ligadeals/ligadeals-web/internal/log"
	"github.com/ligadeals/ligadeals-web/internal/pathutil"
)

type pageCacheStatus struct {
	Entries int      `json:"entries"`
	Paths   []string `json:"paths"`
}

type purgeResult struct {
	Purged string `json:"purged"`
	Kind   string `json:"kind"`
}

// pageCacheRoutes adds GET /-/pagecache (what is cached) and
// POST /-/pagecache/purge?path=|tag= (manual invalidation, same effect as a
// CMS webhook for that target).
func pageCacheRoutes(rt chi.Router, pc PageCache, L log.Logger) {
	rt.Get("/-/pagecache", func(w http.ResponseWriter, r *http.Request) {
		paths := pc.Paths()
		if paths == nil {
			paths = []string{}
		}
		apiresp.WriteJSON(r.Context(), w, http.StatusOK, pageCacheStatus{Entries: pc.Len(), Paths: paths})
	})

	rt.Post("/-/pagecache/purge", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		path, tag := strings.TrimSpace(q.Get("path")), strings.TrimSpace(q.Get("tag"))

		var res purgeResult
		var err error
		switch {
		case path != "" && tag != "":
			apiresp.Error(ctx, w, http.StatusBadRequest, "give either path or tag, not both", "")
			return
		case path != "":
			if !pathutil.IsSitePath(path) {
				apiresp.Error(ctx, w, http.StatusBadRequest, "path must be an absolute site path", "")
				return
			}
			res = purgeResult{Purged: path, Kind: "path"}
			err = pc.InvalidatePath(ctx, path)
		case tag != "":
			res = purgeResult{Purged: tag, Kind: "tag"}
			err = pc.InvalidateTag(ctx, tag)
		default:
			apiresp.Error(ctx, w, http.StatusBadRequest, "path or tag required", "")
			return
		}
		if err != nil {
			L.Error(ctx, err, "manual page cache purge failed", "kind", res.Kind, "target", res.Purged)
			apiresp.Error(ctx, w, http.StatusInternalServerError, "purge failed", "")
			return
		}
		L.Info(ctx, "manual page cache purge", "kind", res.Kind, "target", res.Purged)
		apiresp.WriteJSON(ctx, w, http.StatusOK, res)
	})
}
