package model

// Page is one fixed-size window of a deduplicated item sequence. Names
// mirrors the (possibly rewritten) display name of each item that has one,
// in item order; it feeds the proxy-group rewriting step.
type Page[T any] struct {
	Items []T
	Names []string
}
