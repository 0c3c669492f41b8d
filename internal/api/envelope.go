package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the shared envelope.
// Errors keep their code, message and details at the top level.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case response.Envelope, *response.Envelope:
		return v, nil
	case *APIError:
		return response.Failure(body.Code, body.Message, body.Details), nil
	default:
		return response.OK(v), nil
	}
}
