package service

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/pkg/utils"
)

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func isInsufficientStock(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock)
}

func validateStruct(v *validator.Validate, in any) error {
	if err := v.Struct(in); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return fmt.Errorf("invalid input: %v", utils.FormatValidationError(err))
		}

		return err
	}

	return nil
}
