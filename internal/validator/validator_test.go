package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testRecipientRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department" validate:"required,min=1,max=100"`
	Role       string `json:"role" validate:"omitempty,oneof=operator admin super_admin"`
}

func TestValidateRequest_Success(t *testing.T) {
	req := testRecipientRequest{
		EmployeeID: "E100",
		Email:      "carol@example.com",
		Department: "Engineering",
		Role:       "operator",
	}
	assert.Nil(t, ValidateRequest(req))
}

func TestValidateRequest_MultipleErrors(t *testing.T) {
	req := testRecipientRequest{
		EmployeeID: "",
		Email:      "not-an-email",
		Department: "",
		Role:       "superuser",
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "employeeid")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "department")
	assert.Contains(t, errs, "role")
}

func TestValidateRequest_OneOfRejectsUnknownRole(t *testing.T) {
	req := testRecipientRequest{EmployeeID: "E1", Email: "a@b.com", Department: "Sales", Role: "ceo"}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "role")
}

func TestValidateRequest_EmptyRoleIsOmitted(t *testing.T) {
	req := testRecipientRequest{EmployeeID: "E1", Email: "a@b.com", Department: "Sales"}
	assert.Nil(t, ValidateRequest(req))
}

func TestFormatValidationError_MessagesAreDescriptive(t *testing.T) {
	req := testRecipientRequest{EmployeeID: "", Email: "bad", Department: ""}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	for field, msg := range errs {
		assert.NotEmpty(t, msg, "message should not be empty for field %s", field)
	}
}
