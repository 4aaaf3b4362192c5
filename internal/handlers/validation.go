package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
)

// fieldMessages maps a JSON field and failed tag to the message clients see.
var fieldMessages = map[string]map[string]string{
	"name": {
		"required":   "name is required",
		"playername": fmt.Sprintf("name must be %d-%d characters", game.MinNameLength, game.MaxNameLength),
	},
	"code": {
		"required":  "lobby code is required",
		"lobbycode": "lobby code is malformed",
	},
	"maxRounds": {"min": "maxRounds must be at least 1", "max": "maxRounds is too large"},
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("playername", func(fl validator.FieldLevel) bool {
		_, err := game.NormalizeName(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("lobbycode", func(fl validator.FieldLevel) bool {
		return game.ValidCode(game.NormalizeCode(fl.Field().String()))
	})
	return v
}

// check validates v and turns the first failure into a Validation error.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if msgs, ok := fieldMessages[fe.Field()]; ok {
			if msg, ok := msgs[fe.Tag()]; ok {
				return apperr.Validation("%s", msg)
			}
		}
		if strings.HasPrefix(fe.Tag(), "required") {
			return apperr.Validation("%s is required", fe.Field())
		}
		return apperr.Validation("%s is invalid", fe.Field())
	}
	return apperr.Validation("invalid request")
}
