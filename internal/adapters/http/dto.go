package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
)

const maxJSONBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type verifyRequest struct {
	Operator string `json:"operator" validate:"required,max=200"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type patchRequest struct {
	TicketNumber *string      `json:"ticket_number" validate:"omitempty,max=64"`
	Location     *string      `json:"location" validate:"omitempty,max=200"`
	Commodity    *string      `json:"commodity" validate:"omitempty,max=200"`
	Driver       *string      `json:"driver" validate:"omitempty,max=200"`
	LoadID       *string      `json:"load_id" validate:"omitempty,max=64"`
	TicketDate   *domain.Date `json:"ticket_date"`
	GrossWeight  *float64     `json:"gross_weight" validate:"omitempty,gte=0"`
	TareWeight   *float64     `json:"tare_weight" validate:"omitempty,gte=0"`
	NetWeight    *float64     `json:"net_weight" validate:"omitempty,gte=0"`
}

func (p patchRequest) toDomain() domain.TicketPatch {
	return domain.TicketPatch{
		TicketNumber: p.TicketNumber,
		Location:     p.Location,
		Commodity:    p.Commodity,
		Driver:       p.Driver,
		LoadID:       p.LoadID,
		TicketDate:   p.TicketDate,
		GrossWeight:  p.GrossWeight,
		TareWeight:   p.TareWeight,
		NetWeight:    p.NetWeight,
	}
}

// decodeJSON reads a bounded JSON body into dst and validates its tags. An empty body is
// accepted when allowEmpty is set.
func decodeJSON(body io.Reader, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF && allowEmpty {
			return validateStruct(dst)
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return domain.WrapError(domain.ErrInvalidInput, "validate request", fmt.Errorf("%s", strings.Join(msgs, "; ")))
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
