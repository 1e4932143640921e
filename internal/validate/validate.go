// Package validate runs go-playground/validator rules on request bodies and
// turns failures into client-facing messages.
//
// A field's messages come from its `msg` tag, a comma-separated list of
// rule=message pairs, e.g. `msg:"required=Name is required"`.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Normalizer is implemented by bodies that clean themselves up before validation.
type Normalizer interface {
	Normalize()
}

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return instance
}

// Struct normalizes v when it can, validates it and returns one message per
// failing field in declaration order, each message once. A nil result means v is valid.
func Struct(v any) []string {
	if n, ok := v.(Normalizer); ok {
		n.Normalize()
	}

	err := engine().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	root := reflect.TypeOf(v)
	for root.Kind() == reflect.Pointer {
		root = root.Elem()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if m := message(root, fe); !slices.Contains(msgs, m) {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func message(root reflect.Type, fe validator.FieldError) string {
	if field, ok := lookupField(root, fe.StructNamespace()); ok {
		for _, pair := range strings.Split(field.Tag.Get("msg"), ",") {
			rule, text, found := strings.Cut(pair, "=")
			if found && strings.TrimSpace(rule) == fe.Tag() {
				return strings.TrimSpace(text)
			}
		}
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// lookupField walks a namespace such as "CreateOrderRequest.ShippingAddress.Address".
func lookupField(root reflect.Type, namespace string) (reflect.StructField, bool) {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return reflect.StructField{}, false
	}
	t := root
	var field reflect.StructField
	for _, name := range parts[1:] {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return reflect.StructField{}, false
		}
		f, ok := t.FieldByName(name)
		if !ok {
			return reflect.StructField{}, false
		}
		field, t = f, f.Type
	}
	return field, true
}
