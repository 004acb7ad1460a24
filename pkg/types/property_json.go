package types

import "encoding/json"

// propertyValueWire is the on-the-wire shape of a PropertyValue: a type tag
// plus whichever single field applies. encoding/json already base64-encodes
// []byte, so Opaque needs no special handling beyond the tag.
type propertyValueWire struct {
	Type   PropertyValueKind        `json:"type"`
	Str    *string                  `json:"str,omitempty"`
	Bool   *bool                    `json:"bool,omitempty"`
	Num    *float64                 `json:"num,omitempty"`
	Int    *int64                   `json:"int,omitempty"`
	Array  []PropertyValue          `json:"array,omitempty"`
	Object map[string]PropertyValue `json:"object,omitempty"`
	Opaque []byte                   `json:"opaque,omitempty"`
}

// MarshalJSON encodes a PropertyValue as a tagged union keyed by Kind.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	wire := propertyValueWire{Type: v.Kind}
	switch v.Kind {
	case PropertyString:
		wire.Str = &v.Str
	case PropertyBoolean:
		wire.Bool = &v.Bool
	case PropertyNumber:
		wire.Num = &v.Num
	case PropertyInteger:
		wire.Int = &v.Int
	case PropertyArray:
		wire.Array = v.Array
	case PropertyObject:
		wire.Object = v.Object
	case PropertyOpaque:
		wire.Opaque = v.Opaque
	case PropertyNull:
		// no payload
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a tagged-union PropertyValue.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	var wire propertyValueWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := PropertyValue{Kind: wire.Type}
	switch wire.Type {
	case PropertyString:
		if wire.Str != nil {
			out.Str = *wire.Str
		}
	case PropertyBoolean:
		if wire.Bool != nil {
			out.Bool = *wire.Bool
		}
	case PropertyNumber:
		if wire.Num != nil {
			out.Num = *wire.Num
		}
	case PropertyInteger:
		if wire.Int != nil {
			out.Int = *wire.Int
		}
	case PropertyArray:
		out.Array = wire.Array
	case PropertyObject:
		out.Object = wire.Object
	case PropertyOpaque:
		out.Opaque = wire.Opaque
	case PropertyNull:
		// no payload
	default:
		return NewSerializationError(nil)
	}
	*v = out
	return nil
}
