package docstore

// Filter es una conjunción de condiciones sobre campos del documento.
// Es deliberadamente chico: igualdad sobre un campo top-level y
// containment sobre arrays de objetos. Es todo lo que las búsquedas de
// identidad necesitan, y todo lo que cada driver debe saber traducir.
type Filter []Cond

// CondKind discrimina el tipo de condición.
type CondKind int

const (
	// CondEq igualdad estricta sobre un campo top-level.
	CondEq CondKind = iota

	// CondElemMatch el campo es un array de objetos y al menos un
	// elemento contiene todos los pares de Elem.
	CondElemMatch
)

// Cond una condición individual del filtro.
type Cond struct {
	Field string
	Kind  CondKind

	// Value para CondEq.
	Value any

	// Elem para CondElemMatch: pares campo→valor que el elemento
	// del array debe contener.
	Elem map[string]any
}

// Eq construye una condición de igualdad.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Kind: CondEq, Value: value}
}

// ElemMatch construye una condición de containment sobre un array de objetos.
func ElemMatch(field string, elem map[string]any) Cond {
	return Cond{Field: field, Kind: CondElemMatch, Elem: elem}
}

// And combina condiciones en un filtro (conjunción).
func And(conds ...Cond) Filter { return Filter(conds) }

// Matches evalúa el filtro in-process. Lo usan los drivers sin motor de
// queries propio (memory, fs); los drivers con motor (mongo, pg) traducen
// el filtro a su lenguaje nativo y no pasan por acá.
func (f Filter) Matches(doc Document) bool {
	for _, c := range f {
		switch c.Kind {
		case CondEq:
			if !looseEqual(doc[c.Field], c.Value) {
				return false
			}
		case CondElemMatch:
			if !elemMatches(doc[c.Field], c.Elem) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func elemMatches(field any, elem map[string]any) bool {
	arr, ok := field.([]any)
	if !ok {
		return false
	}
	for _, e := range arr {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		all := true
		for k, want := range elem {
			if !looseEqual(obj[k], want) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// looseEqual compara valores JSON-shaped. Los números se comparan como
// float64 porque un round-trip por JSON convierte todo int en float64.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
