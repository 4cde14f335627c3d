package slice

// Splice returns a new slice with the element at id replaced by repl.
func Splice[T any](slice []T, id int, repl ...T) []T {
	newSlice := make([]T, 0, len(slice)-1+len(repl))

	newSlice = append(newSlice, slice[:id]...)
	newSlice = append(newSlice, repl...)
	newSlice = append(newSlice, slice[id+1:]...)

	return newSlice
}

// Filter returns a new slice holding the elements for which keep is true.
// The input is never modified.
func Filter[T any](slice []T, keep func(T) bool) []T {
	newSlice := make([]T, 0, len(slice))

	for _, v := range slice {
		if keep(v) {
			newSlice = append(newSlice, v)
		}
	}

	return newSlice
}

// TrimSpaces returns the first index at or after id that is not a space.
func TrimSpaces(line string, id int) int {
	for id < len(line) && (line[id] == ' ' || line[id] == '\t') {
		id++
	}

	return id
}
