package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags. Errors name the offending
// field and the failed rule.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
