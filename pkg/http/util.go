package http

import (
	xutil "FuturesCast/pkg/util"
)

// ParseIntList parses a comma separated query value such as "1,3,6".
func ParseIntList(s string) ([]int, error) { return xutil.ParseIntList(s) }
