// Package field describes the serializable fields of a composite value.
//
// Types opt in by implementing [Schema]. Each [Field] pairs an ordering key
// with a pointer to the storage of that field:
//
//	func (p *Move) Fields() []field.Field {
//		return []field.Field{
//			field.New(0, &p.X),
//			field.New(1, &p.Y),
//		}
//	}
//
// Fields are encoded in ascending order. Fields sharing an order keep their
// declaration order.
package field

import (
	"reflect"
	"slices"
)

type Schema interface {
	Fields() []Field
}

type Field struct {
	Order int
	// Ptr points at the storage of the field. It is never nil.
	Ptr any
}

func New[T any](order int, ptr *T) Field {
	return Field{Order: order, Ptr: ptr}
}

// Type returns the declared type of the field.
func (f Field) Type() reflect.Type {
	return reflect.TypeOf(f.Ptr).Elem()
}

// Value returns the addressable value of the field.
func (f Field) Value() reflect.Value {
	return reflect.ValueOf(f.Ptr).Elem()
}

// Ordered returns the fields of s sorted by their order.
func Ordered(s Schema) []Field {
	fields := s.Fields()
	slices.SortStableFunc(fields, func(a, b Field) int {
		return a.Order - b.Order
	})
	return fields
}

var schemaType = reflect.TypeOf((*Schema)(nil)).Elem()

// Implements reports whether values of t (or pointers to them) declare fields.
func Implements(t reflect.Type) bool {
	if t.Implements(schemaType) {
		return true
	}
	return t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(schemaType)
}

// Of returns the schema of an addressable value v.
// It returns false when v does not declare fields.
func Of(v reflect.Value) (Schema, bool) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		s, ok := v.Interface().(Schema)
		return s, ok
	}

	if v.CanAddr() {
		if s, ok := v.Addr().Interface().(Schema); ok {
			return s, true
		}
	}
	s, ok := v.Interface().(Schema)
	return s, ok
}
