package handlers

import (
	"haven-backend/internal/httpx"

	"github.com/go-playground/validator/v10"
)

func validationDetails(errs validator.ValidationErrors) map[string]string {
	return httpx.ValidationDetails(errs)
}
