package handlers

const (
	// Promotion history page size
	defaultHistoryLimit = 20
	maxHistoryPageSize  = 100

	// Center edit bounds
	maxDimension = 4096
	maxSteps     = 150
)
