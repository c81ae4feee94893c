package httpapi

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/example/ride-negotiation/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error      string              `json:"error"`
	Fields     []apperr.FieldError `json:"fields,omitempty"`
	RetryAfter int                 `json:"retry_after,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err onto its status code. Only the client-safe message of
// an *apperr.Error is written; anything else becomes a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(apperr.Internal, "internal error", err)
	}
	status := apperr.HTTPStatus(ae.Kind)
	if status >= http.StatusInternalServerError {
		s.log(r).Error("request failed", "kind", ae.Kind.String(), "error", err)
	} else {
		s.log(r).Debug("request rejected", "kind", ae.Kind.String(), "error", err)
	}

	body := errorBody{Error: ae.Msg, Fields: ae.Fields}
	if ae.Kind == apperr.Internal {
		body.Error = "internal error"
	}
	if ae.Kind == apperr.RateLimited {
		secs := int(math.Ceil(ae.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		body.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it against its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid(apperr.Field("body", "request body is required"))
		}
		return apperr.Invalid(apperr.Field("body", "malformed JSON"))
	}
	return check(dst)
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return check(dst)
	}
	err := decode(w, r, dst)
	var ae *apperr.Error
	if errors.As(err, &ae) && len(ae.Fields) == 1 && ae.Fields[0].Message == "request body is required" {
		return check(dst)
	}
	return err
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.Internal, "internal error", err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.Field(fieldPath(fe), describe(fe)))
	}
	return apperr.Invalid(fields...)
}

// fieldPath drops the top-level struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "uuid":
		return "must be a UUID"
	case "ne":
		return "must not be " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func queryFloat(r *http.Request, name string, required bool) (float64, *apperr.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			fe := apperr.Field(name, "is required")
			return 0, &fe
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		fe := apperr.Field(name, "must be a number")
		return 0, &fe
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def, lo, hi int) (int, *apperr.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		fe := apperr.Field(name, fmt.Sprintf("must be an integer between %d and %d", lo, hi))
		return 0, &fe
	}
	return v, nil
}
