package contracts

import "errors"

// Ledger errors
// ⭐ SSOT: 도메인 에러는 여기서만 정의
var (
	// ErrStrategyNotFound is returned when the strategy has no identity in the row store
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrDuplicateDay is returned when a row for the date already exists
	ErrDuplicateDay = errors.New("daily data already exists for date")

	// ErrOutOfOrderDay is returned when the date does not immediately follow the latest row
	ErrOutOfOrderDay = errors.New("date does not follow the latest trading day")

	// ErrDayNotFound is returned when a correction targets a date with no row
	ErrDayNotFound = errors.New("daily data not found for date")

	// ErrIncompletePopulation aborts a scoring pass that could not read every strategy
	ErrIncompletePopulation = errors.New("scoring population could not be fully read")

	// ErrInvalidInput is returned when an input fails basic validation
	ErrInvalidInput = errors.New("invalid input")
)
