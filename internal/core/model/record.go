package model

// EntityRecord is one input record: field name to scalar or composite value.
type EntityRecord map[string]any

// LoadedRecord is a record together with the file it came from.
type LoadedRecord struct {
	Source string
	Index  int
	Record EntityRecord
}
