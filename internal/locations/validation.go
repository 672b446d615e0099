package locations

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

// CreateInput carries the fields of a new location.
type CreateInput struct {
	Code    string `json:"code" validate:"omitempty,max=32"`
	Name    string `json:"name" validate:"required,max=120"`
	Kind    Kind   `json:"kind" validate:"required,oneof=STORE WAREHOUSE"`
	Address string `json:"address" validate:"omitempty,max=255"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
}

// UpdateInput carries a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Code    *string `json:"code" validate:"omitempty,max=32"`
	Name    *string `json:"name" validate:"omitempty,min=1,max=120"`
	Kind    *Kind   `json:"kind" validate:"omitempty,oneof=STORE WAREHOUSE"`
	Address *string `json:"address" validate:"omitempty,max=255"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
}

func (s *Service) validate(input any) error {
	return httpx.Validate(s.validator, input)
}

func normalise(loc *Location) {
	loc.Code = strings.ToUpper(strings.TrimSpace(loc.Code))
	loc.Name = strings.TrimSpace(loc.Name)
	loc.Address = strings.TrimSpace(loc.Address)
	loc.Phone = strings.TrimSpace(loc.Phone)
}

func (in UpdateInput) apply(loc Location) Location {
	if in.Code != nil {
		loc.Code = *in.Code
	}
	if in.Name != nil {
		loc.Name = *in.Name
	}
	if in.Kind != nil {
		loc.Kind = *in.Kind
	}
	if in.Address != nil {
		loc.Address = *in.Address
	}
	if in.Phone != nil {
		loc.Phone = *in.Phone
	}
	normalise(&loc)
	return loc
}

func newValidator() *validator.Validate {
	return validator.New()
}
