// Package blob reinterprets fixed-layout GPU-mirror structs as raw bytes
// for root constant and constant buffer uploads.
package blob

import "unsafe"

// SliceToBytes reinterprets a slice of fixed-layout values as its backing
// bytes. The caller must not let the returned slice outlive the input.
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// StructToBytes reinterprets a pointer to a fixed-layout struct as a byte
// slice over its memory.
func StructToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}

// BytesToSlice reinterprets raw bytes as a slice of fixed-layout values,
// truncating to whole elements.
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(data) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), len(data)/size)
}
