//go:build debug_mem_quota

package quotautils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_quota build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}

// DebugCheckNonNegative will verify that the numerical value passed in is not negative, and panics
// if it is. This method no-ops unless the debug_mem_quota build tag is present.
func DebugCheckNonNegative[T ~int | ~int64](value T, name string) {
	err := CheckNonNegative[T](value, name)
	if err != nil {
		panic(err)
	}
}
