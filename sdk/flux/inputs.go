package flux

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Input payloads. Optional references are omitted from the body when empty,
// which the API reads as "leave unset".

type OrganisationInput struct {
	Name   string `json:"name" validate:"required"`
	Domain string `json:"domain" validate:"required,fqdn"`
}

type ProgrammeInput struct {
	Name      string `json:"name" validate:"required"`
	ManagerID string `json:"manager_id,omitempty" validate:"omitempty,uuid"`
}

type ProjectInput struct {
	Name        string        `json:"name" validate:"required"`
	ManagerID   string        `json:"manager_id,omitempty" validate:"omitempty,uuid"`
	ProgrammeID string        `json:"programme_id,omitempty" validate:"omitempty,uuid"`
	Status      ProjectStatus `json:"status" validate:"required,oneof=active paused closed"`
}

type GradeInput struct {
	Name string `json:"name" validate:"required"`
}

type PracticeInput struct {
	Name       string `json:"name" validate:"required"`
	HeadID     string `json:"head_id,omitempty" validate:"omitempty,uuid"`
	CostCentre string `json:"cost_centre,omitempty"`
}

type RoleInput struct {
	Title      string `json:"title" validate:"required"`
	GradeID    string `json:"grade_id" validate:"required,uuid"`
	PracticeID string `json:"practice_id,omitempty" validate:"omitempty,uuid"`
}

type PersonInput struct {
	Name               string     `json:"name" validate:"required"`
	EmailAddress       string     `json:"email_address" validate:"required,email,max=256"`
	RoleID             string     `json:"role_id" validate:"required,uuid"`
	Employment         Employment `json:"employment" validate:"required,oneof=permanent contract"`
	FullTimeEquivalent float64    `json:"full_time_equivalent" validate:"gte=0.1,lte=1"`
	LocationID         string     `json:"location_id" validate:"required,uuid"`
}

type LocationInput struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field errors are keyed by json name.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

func checkInput(resource string, in any) error {
	err := Validator().Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return &InputError{Resource: resource, Fields: fields}
}
