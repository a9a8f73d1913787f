package ppl

// Float builds a Float library item.
func Float(name string, current, min, max float32) LibraryItem {
	return LibraryItem{Name: name, Type: ItemFloat, Data: FloatValue{Current: current, Min: min, Max: max}.Bytes()}
}

// Int builds an Int library item.
func Int(name string, current, min, max int32) LibraryItem {
	return LibraryItem{Name: name, Type: ItemInt, Data: IntValue{Current: current, Min: min, Max: max}.Bytes()}
}

func Bool(name string, v bool) LibraryItem {
	return LibraryItem{Name: name, Type: ItemBool, Data: BoolValue(v).Bytes()}
}

// Enum builds an Enum library item with selected indexing into options.
func Enum(name string, selected int, options ...string) LibraryItem {
	return LibraryItem{Name: name, Type: ItemEnum, Data: EnumValue{Selected: selected, Options: options}.Bytes()}
}

// String builds a String library item, typically a shader source.
func String(name string, data []byte) LibraryItem {
	return LibraryItem{Name: name, Type: ItemString, Data: data}
}
