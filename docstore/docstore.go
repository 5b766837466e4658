// Package docstore define el contrato con la base de documentos.
// Los stores de identidad (store.UserStore, store.RoleStore) hablan
// únicamente contra este contrato; los drivers (memory, fs, mongo, pg)
// lo implementan contra un motor concreto.
package docstore

// Campos reservados de todo documento. El resto del documento es
// opaco para los drivers.
const (
	// FieldID identificador del documento, único por colección/partición.
	FieldID = "id"

	// FieldType discriminador del tipo lógico ("User", "Role", ...).
	// Se asigna al crear y nunca se muta.
	FieldType = "documentType"

	// FieldEtag token de concurrencia optimista. Lo administra el driver:
	// cambia en cada escritura exitosa y debe coincidir para Replace/Delete.
	FieldEtag = "_etag"

	// FieldPartition clave de partición lógica. Los stores la fijan al
	// valor del discriminador (una partición por tipo de entidad).
	FieldPartition = "partitionKey"
)

// Document es un documento JSON-shaped. Los drivers lo persisten tal cual;
// nunca interpretan campos más allá de los reservados.
type Document map[string]any

// ID retorna el identificador del documento ("" si no tiene).
func (d Document) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

// Type retorna el discriminador del documento ("" si no tiene).
func (d Document) Type() string {
	s, _ := d[FieldType].(string)
	return s
}

// Etag retorna el token de concurrencia ("" si nunca fue escrito).
func (d Document) Etag() string {
	s, _ := d[FieldEtag].(string)
	return s
}

// Clone retorna una copia profunda del documento. Los drivers in-process
// (memory, fs) la usan para que el caller nunca comparta memoria con lo
// almacenado.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue copia en profundidad un valor JSON-shaped suelto.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = CloneValue(e)
		}
		return m
	case Document:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = CloneValue(e)
		}
		return s
	default:
		// Escalares JSON (string, bool, float64, nil) son inmutables.
		return v
	}
}
