// Package util holds small generic helpers.
package util

// Ptr returns a pointer to v. Optional config fields (temperature, token
// limits) are pointers so nil can mean "use the default".
func Ptr[T any](v T) *T {
	return &v
}
