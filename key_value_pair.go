package repositories

// KeyValuePair is a tuple. Query helpers use an ordered slice of these as the explicit
// (property name, value) term list.
type KeyValuePair[TK any, TV any] struct {
	Key   TK
	Value TV
}

// Pair is a shorthand constructor for KeyValuePair.
func Pair[TK any, TV any](key TK, value TV) KeyValuePair[TK, TV] {
	return KeyValuePair[TK, TV]{Key: key, Value: value}
}
