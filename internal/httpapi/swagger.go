//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// MountSwagger serves the generated OpenAPI UI under /swagger/.
// Run `make swagger-gen` before building with -tags=swagger.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
