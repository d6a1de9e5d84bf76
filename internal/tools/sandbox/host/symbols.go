package host

import "reflect"

// Symbols exports this package to the interpreter under ImportPath.
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/host": {
		"Capabilities":   reflect.ValueOf((*Capabilities)(nil)),
		"Document":       reflect.ValueOf((*Document)(nil)),
		"Persona":        reflect.ValueOf((*Persona)(nil)),
		"ErrUnavailable": reflect.ValueOf(&ErrUnavailable).Elem(),
	},
}
