package shared

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every handler. validator.Validate caches struct
// metadata, so handlers reuse one instance instead of building their own.
var validate = validator.New()

// DecodeJSON decodes the request body into v. Callers that accept an empty
// body should treat io.EOF as absence rather than failure.
func DecodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// ValidateRequest checks v against its `validate` struct tags and returns
// the validator's error describing every failing field.
func ValidateRequest(v interface{}) error {
	return validate.Struct(v)
}
