package web

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"

	"fluxweb/sdk/flux"
)

type organisationForm struct {
	Name   string `schema:"name" validate:"required,max=256"`
	Domain string `schema:"domain" validate:"required,fqdn"`
}

type programmeForm struct {
	Name    string `schema:"name" validate:"required,max=256"`
	Manager string `schema:"manager" validate:"omitempty,uuid"`
}

type projectForm struct {
	Name      string `schema:"name" validate:"required,max=256"`
	Manager   string `schema:"manager" validate:"omitempty,uuid"`
	Programme string `schema:"programme" validate:"omitempty,uuid"`
	Status    string `schema:"status" validate:"required,oneof=active paused closed"`
}

type gradeForm struct {
	Name string `schema:"name" validate:"required,max=256"`
}

type practiceForm struct {
	Name       string `schema:"name" validate:"required,max=256"`
	Head       string `schema:"head" validate:"omitempty,uuid"`
	CostCentre string `schema:"cost_centre" validate:"max=64"`
}

type roleForm struct {
	Title    string `schema:"title" validate:"required,max=256"`
	Grade    string `schema:"grade" validate:"required,uuid"`
	Practice string `schema:"practice" validate:"omitempty,uuid"`
}

type personForm struct {
	Name               string  `schema:"name" validate:"required,max=256"`
	EmailAddress       string  `schema:"email_address" validate:"required,email,max=256"`
	Role               string  `schema:"role" validate:"required,uuid"`
	Employment         string  `schema:"employment" validate:"required,oneof=permanent contract"`
	FullTimeEquivalent float64 `schema:"full_time_equivalent" validate:"gte=0.1,lte=1"`
	Location           string  `schema:"location" validate:"required,uuid"`
}

type locationForm struct {
	Name    string `schema:"name" validate:"required,max=256"`
	Address string `schema:"address" validate:"required,max=512"`
}

type cookiesForm struct {
	Functional string `schema:"functional" validate:"required,oneof=yes no"`
}

// fieldErrors maps a form field name to the message shown next to it.
type fieldErrors map[string]string

type formBinder struct {
	decoder  *schema.Decoder
	validate *validator.Validate
}

func newFormBinder() formBinder {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("schema"), ",", 2)[0]
	})
	return formBinder{decoder: dec, validate: v}
}

// bind decodes the posted form into dst and validates it. A non-nil
// fieldErrors means the form should be shown again.
func (b formBinder) bind(r *http.Request, dst any) (fieldErrors, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	if err := b.decoder.Decode(dst, r.PostForm); err != nil {
		var multi schema.MultiError
		if !errors.As(err, &multi) {
			return nil, err
		}
		for field := range multi {
			errs[field] = "Enter a valid value"
		}
	}
	if err := b.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			if _, seen := errs[fe.Field()]; !seen {
				errs[fe.Field()] = message(fe)
			}
		}
	}
	if len(errs) == 0 {
		return nil, nil
	}
	return errs, nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "fqdn":
		return "Enter a valid domain name"
	case "uuid", "oneof":
		return "Select a valid option"
	case "gte", "lte":
		return "Must be between 0.1 and 1.0"
	case "max":
		return "Must be " + fe.Param() + " characters or fewer"
	default:
		return "Enter a valid value"
	}
}

// inputErrors turns a client-side rejection into form messages.
func inputErrors(ie *flux.InputError, aliases map[string]string) fieldErrors {
	errs := fieldErrors{}
	for field := range ie.Fields {
		if alias, ok := aliases[field]; ok {
			field = alias
		}
		errs[field] = "Enter a valid value"
	}
	return errs
}

func formatFTE(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
