package worldmodel

import "fmt"

// ShapeError reports a tensor whose dimension does not match what an
// operation requires. It is returned before any computation starts.
type ShapeError struct {
	Op   string // operation that rejected the input
	What string // the offending dimension
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("worldmodel: %s: %s: want %d, got %d", e.Op, e.What, e.Want, e.Got)
}

func shapeErr(op, what string, want, got int) error {
	return &ShapeError{Op: op, What: what, Want: want, Got: got}
}

// checkLen returns a ShapeError when got != want.
func checkLen(op, what string, want, got int) error {
	if want != got {
		return shapeErr(op, what, want, got)
	}
	return nil
}

// checkMatrix verifies that every row of rows has width entries.
func checkMatrix(op, what string, rows [][]float64, width int) error {
	for i, row := range rows {
		if len(row) != width {
			return shapeErr(op, fmt.Sprintf("%s[%d] width", what, i), width, len(row))
		}
	}
	return nil
}

func checkBatch(op string, n int) error {
	if n == 0 {
		return shapeErr(op, "batch size (min)", 1, 0)
	}
	return nil
}
