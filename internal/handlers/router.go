package handlers

import "net/http"

// route is one API endpoint and the methods it accepts.
type route struct {
	methods map[string]http.HandlerFunc
}

// Router dispatches API paths to the Handler. Unknown paths get a JSON 404
// and known paths with the wrong method a JSON 405.
type Router struct {
	routes map[string]route
	h      *Handler
}

// NewRouter creates the API router.
func NewRouter(h *Handler) *Router {
	return &Router{
		h: h,
		routes: map[string]route{
			"/health":     {methods: map[string]http.HandlerFunc{http.MethodGet: h.HandleHealth}},
			"/v1/process": {methods: map[string]http.HandlerFunc{http.MethodPost: h.HandleProcess}},
			"/v1/solvers": {methods: map[string]http.HandlerFunc{http.MethodGet: h.HandleSolvers}},
		},
	}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rte, ok := rt.routes[r.URL.Path]
	if !ok {
		rt.h.HandleNotFound(w, r)
		return
	}

	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	handler, ok := rte.methods[method]
	if !ok {
		for m := range rte.methods {
			w.Header().Add("Allow", m)
		}
		rt.h.HandleMethodNotAllowed(w, r)
		return
	}
	handler(w, r)
}
