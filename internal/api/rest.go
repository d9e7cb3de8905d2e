package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/kalambet/wcdata/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB

	defaultPerPage = 10
	maxPerPage     = 100
)

// RESTDeps holds the dependencies of the dev REST server.
type RESTDeps struct {
	Store *storage.Store
	// Resources limits the served collections. Empty serves any name.
	Resources   []string
	Credentials Credentials
	// AllowedOrigins for CORS. Empty allows all origins.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRESTHandler returns an http.Handler serving a WooCommerce-compatible
// subset of /wc/v3 backed by deps.Store.
func NewRESTHandler(deps RESTDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(deps.Credentials))
		r.Route("/wc/v3/{resource}", func(r chi.Router) {
			r.Use(knownResource(deps.Resources))
			r.Get("/", handleList(deps))
			r.Post("/", handleCreate(deps))
			r.Get("/{id}", handleGet(deps))
			r.Put("/{id}", handleUpdate(deps))
			r.Patch("/{id}", handleUpdate(deps))
			r.Delete("/{id}", handleDelete(deps))
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
	})

	c := cors.New(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-WP-Total", "X-WP-TotalPages"},
	})
	return c.Handler(r)
}

// handleHealth reports the storage schema version; a store that cannot be
// read makes the server unhealthy.
func handleHealth(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := deps.Store.AppliedMigrations()
		if err != nil {
			deps.Logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
		schema := 0
		if len(versions) > 0 {
			schema = versions[len(versions)-1]
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "schema_version": schema})
	}
}

func knownResource(resources []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(resources) > 0 && !slices.Contains(resources, chi.URLParam(r, "resource")) {
				httpError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleList(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		params := r.URL.Query()

		page, err := intParam(params.Get("page"), 1, 1, 0)
		if err != nil {
			httpError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): page")
			return
		}
		perPage, err := intParam(params.Get("per_page"), defaultPerPage, 1, maxPerPage)
		if err != nil {
			httpError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): per_page")
			return
		}
		include, err := idsParam(params, "include")
		if err != nil {
			httpError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): include")
			return
		}
		orderBy := params.Get("orderby")
		if orderBy != "" && orderBy != "id" && orderBy != "date" {
			httpError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): orderby")
			return
		}
		order := params.Get("order")
		if order != "" && order != "asc" && order != "desc" {
			httpError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): order")
			return
		}

		records, total, err := deps.Store.ListRecords(r.Context(), resource, storage.ListOptions{
			Status:  params.Get("status"),
			Search:  params.Get("search"),
			Include: include,
			OrderBy: orderBy,
			Order:   order,
			Limit:   perPage,
			Offset:  (page - 1) * perPage,
		})
		if err != nil {
			deps.Logger.Error("listing records", "resource", resource, "error", err)
			httpError(w, http.StatusInternalServerError, "internal_server_error", "failed to list %s", resource)
			return
		}

		pages := (total + perPage - 1) / perPage
		if total > 0 && page > pages {
			httpError(w, http.StatusBadRequest, "rest_post_invalid_page_number",
				"The page number requested is larger than the number of pages available.")
			return
		}

		fields := fieldsParam(params.Get("_fields"))
		items := make([]map[string]any, len(records))
		for i, rec := range records {
			items[i] = pick(rec.Item(), fields)
		}

		w.Header().Set("X-WP-Total", strconv.Itoa(total))
		w.Header().Set("X-WP-TotalPages", strconv.Itoa(pages))
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGet(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		rec, err := deps.Store.GetRecord(r.Context(), resource, id)
		if !storeOK(w, deps, resource, err) {
			return
		}
		writeJSON(w, http.StatusOK, pick(rec.Item(), fieldsParam(r.URL.Query().Get("_fields"))))
	}
}

func handleCreate(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		fields, ok := decodeFields(w, r)
		if !ok {
			return
		}
		if _, ok := fields["id"]; ok {
			httpError(w, http.StatusBadRequest, "woocommerce_rest_"+resource+"_exists",
				"Cannot create existing %s.", resource)
			return
		}
		rec, err := deps.Store.CreateRecord(r.Context(), resource, fields)
		if !storeOK(w, deps, resource, err) {
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/wc/v3/%s/%d", resource, rec.ID))
		writeJSON(w, http.StatusCreated, rec.Item())
	}
}

func handleUpdate(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		fields, ok := decodeFields(w, r)
		if !ok {
			return
		}
		rec, err := deps.Store.UpdateRecord(r.Context(), resource, id, fields)
		if !storeOK(w, deps, resource, err) {
			return
		}
		writeJSON(w, http.StatusOK, rec.Item())
	}
}

func handleDelete(deps RESTDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); !force {
			httpError(w, http.StatusNotImplemented, "woocommerce_rest_trash_not_supported",
				"The %s does not support trashing. Set force to true to delete.", resource)
			return
		}
		rec, err := deps.Store.DeleteRecord(r.Context(), resource, id)
		if !storeOK(w, deps, resource, err) {
			return
		}
		writeJSON(w, http.StatusOK, rec.Item())
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusNotFound, "woocommerce_rest_invalid_id", "Invalid ID.")
		return 0, false
	}
	return id, true
}

func storeOK(w http.ResponseWriter, deps RESTDeps, resource string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "woocommerce_rest_invalid_id", "Invalid ID.")
	default:
		deps.Logger.Error("record store failed", "resource", resource, "error", err)
		httpError(w, http.StatusInternalServerError, "internal_server_error", "failed to access %s", resource)
	}
	return false
}

func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		httpError(w, http.StatusBadRequest, "rest_invalid_json", "Invalid JSON body passed.")
		return nil, false
	}
	return fields, true
}

// intParam parses s, returning def when s is empty. hi 0 means unbounded.
func intParam(s string, def, lo, hi int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < lo || (hi > 0 && v > hi) {
		return 0, fmt.Errorf("%d out of range", v)
	}
	return v, nil
}

// idsParam reads both "include[]=1&include[]=2" and "include=1,2".
func idsParam(params map[string][]string, name string) ([]int64, error) {
	var raw []string
	for _, v := range append(params[name+"[]"], params[name]...) {
		raw = append(raw, strings.Split(v, ",")...)
	}
	var ids []int64
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fieldsParam(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// pick keeps only fields of item. No fields keeps everything.
func pick(item map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return item
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := item[f]; ok {
			out[f] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// httpError writes a WordPress REST error body.
func httpError(w http.ResponseWriter, status int, code string, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": fmt.Sprintf(format, args...),
		"data":    map[string]any{"status": status},
	})
}
