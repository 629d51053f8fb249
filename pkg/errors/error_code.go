package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidCapital       ErrorCode = 102
	ErrCodeInvalidCommission    ErrorCode = 103
	ErrCodeInvalidPeriod        ErrorCode = 104
	ErrCodeInvalidInterval      ErrorCode = 105
	ErrCodeMissingParameter     ErrorCode = 106

	// Data/Resource errors (200-299)
	ErrCodeNoDataFound           ErrorCode = 200
	ErrCodeQueryFailed           ErrorCode = 201
	ErrCodeDataSourceUnavailable ErrorCode = 202
	ErrCodeMissingColumn         ErrorCode = 203

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyFailed  ErrorCode = 400
	ErrCodeStrategyMissing ErrorCode = 401

	// Backtest errors (500-599)
	ErrCodeInsufficientData  ErrorCode = 500
	ErrCodeBacktestRunFailed ErrorCode = 501

	// Replay errors (600-699)
	ErrCodeReplayCallbackFailed ErrorCode = 600
	ErrCodeReplayBadSchema      ErrorCode = 601

	// Market data errors (700-799)
	ErrCodeMarketDataFetchFailed ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeRiskFreeRateFailed    ErrorCode = 702
)
