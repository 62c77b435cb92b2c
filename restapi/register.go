package restapi

import (
	"fmt"
	"sort"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates supported HTTP operations.
type HTTPVerb int

const (
	// Unknown represents an unspecified HTTP verb.
	Unknown HTTPVerb = iota
	// GET lists or retrieves resources.
	GET
	// GET_ONE retrieves a single resource.
	GET_ONE
	// DELETE removes resources.
	DELETE
	// POST creates resources.
	POST
	// PUT replaces resources.
	PUT
	// PATCH partially updates resources.
	PATCH
)

// RestMethod describes a REST route handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

// Registry holds the REST methods to mount on a router group.
type Registry struct {
	methods map[string]RestMethod
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]RestMethod)}
}

// RegisterMethod builds a RestMethod and registers it using Register.
func (r *Registry) RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	m := RestMethod{
		Verb:    verb,
		Path:    path,
		Handler: h,
	}
	return r.Register(m)
}

// Register inserts a RestMethod preventing duplicates.
func (r *Registry) Register(m RestMethod) error {
	if m.Handler == nil {
		return fmt.Errorf("can't add %s, handler is nil", m.Path)
	}
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("can't add %s, an existing handler in REST method map exists", key)
	}
	r.methods[key] = m
	return nil
}

// RestMethods returns all registered RestMethod entries, ordered by path then verb.
func (r *Registry) RestMethods() []RestMethod {
	ms := make([]RestMethod, 0, len(r.methods))
	for _, m := range r.methods {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Path != ms[j].Path {
			return ms[i].Path < ms[j].Path
		}
		return ms[i].Verb < ms[j].Verb
	})
	return ms
}

// Mount adds the registered methods to group, each wrapped by wrap (may be nil).
func (r *Registry) Mount(group *gin.RouterGroup, wrap func(h func(c *gin.Context)) func(c *gin.Context)) {
	if wrap == nil {
		wrap = func(h func(c *gin.Context)) func(c *gin.Context) { return h }
	}
	for _, rm := range r.RestMethods() {
		switch rm.Verb {
		case GET:
			fallthrough
		case GET_ONE:
			group.GET(rm.Path, wrap(rm.Handler))
		case DELETE:
			group.DELETE(rm.Path, wrap(rm.Handler))
		case POST:
			group.POST(rm.Path, wrap(rm.Handler))
		case PUT:
			group.PUT(rm.Path, wrap(rm.Handler))
		case PATCH:
			group.PATCH(rm.Path, wrap(rm.Handler))
		default:
			panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
		}
	}
}
