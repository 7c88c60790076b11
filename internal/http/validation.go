package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// requestError is a malformed or invalid request body, reported as 400 or 422.
type requestError struct {
	status int
	err    error
	fields map[string]string
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

// decodeRequest reads a JSON body into dst and runs its validate tags.
func decodeRequest(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return &requestError{status: http.StatusBadRequest, err: err}
	}
	return validateRequest(dst)
}

func validateRequest(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &requestError{status: http.StatusBadRequest, err: err}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = fieldErrorMessage(fe)
	}
	return &requestError{status: http.StatusUnprocessableEntity, err: err, fields: fields}
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "Campo obrigatório."
	case "email":
		return "O e-mail informado é inválido."
	case "min", "gte":
		return "Valor abaixo do mínimo permitido (" + fe.Param() + ")."
	case "max", "lte":
		return "Valor acima do máximo permitido (" + fe.Param() + ")."
	case "oneof":
		return "Valor não permitido. Use um de: " + fe.Param() + "."
	default:
		return "Valor inválido."
	}
}

// writeRequestError reports a decodeRequest failure.
func (r responder) writeRequestError(w http.ResponseWriter, req *http.Request, err error) {
	ctx := req.Context()
	var rErr *requestError
	if errors.As(err, &rErr) && rErr.status == http.StatusUnprocessableEntity {
		r.loggerFor(ctx).InfoContext(ctx, "request rejected by validation", "fields", len(rErr.fields))
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  rErr.fields,
		})
		return
	}
	r.loggerFor(ctx).InfoContext(ctx, "malformed request body", "error", err)
	r.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
}
