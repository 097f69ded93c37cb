package sentinel

var _ error = Error("")

// Error is an error whose identity is its text. Two Error values are equal
// when their strings are, so errors.Is matches them through %w wrapping and
// errors.Join without an Is method.
type Error string

func (e Error) Error() string {
	return string(e)
}
