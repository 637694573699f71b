package db

// ListOrder decides how IP listings are sorted. The inventory is an
// inet column, so numeric ordering is native; text ordering matches
// exports that sort the dotted-quad form as a string.
type ListOrder interface {
	orderBy() string
}

type NumericOrder struct{}

func (NumericOrder) orderBy() string { return "address" }

type TextOrder struct{}

func (TextOrder) orderBy() string { return "host(address)" }
