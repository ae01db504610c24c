// =============================
// File: internal/curve/errors.go
// =============================
package curve

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable kind of a protocol error.
type Code uint32

const (
	CodeNotAuthorized Code = 6000 + iota
	CodeAlreadyInitialized
	CodeInvalidFeeRecipient
	CodeTooMuchSolRequired
	CodeTooLittleSolReceived
	CodeMintDoesNotMatchBondingCurve
	CodeBondingCurveComplete
	CodeBondingCurveNotComplete
	CodeNotInitialized
	CodeInsufficientFunds
	CodeArithmeticOverflow
	// Reserved. Limit checks report TooMuchSolRequired or TooLittleSolReceived;
	// the slot stays so later codes keep their values.
	CodeSlippageExceeded
	CodeInsufficientTokens
	CodeExternalRefAlreadyUsed
	CodeInvalidCreator
	CodeInvalidFirstBuyer
	CodeInvalidParams
	CodeBondingCurveNotFound
)

var codeNames = map[Code]string{
	CodeNotAuthorized:                "NotAuthorized",
	CodeAlreadyInitialized:           "AlreadyInitialized",
	CodeInvalidFeeRecipient:          "InvalidFeeRecipient",
	CodeTooMuchSolRequired:           "TooMuchSolRequired",
	CodeTooLittleSolReceived:         "TooLittleSolReceived",
	CodeMintDoesNotMatchBondingCurve: "MintDoesNotMatchBondingCurve",
	CodeBondingCurveComplete:         "BondingCurveComplete",
	CodeBondingCurveNotComplete:      "BondingCurveNotComplete",
	CodeNotInitialized:               "NotInitialized",
	CodeInsufficientFunds:            "InsufficientFunds",
	CodeArithmeticOverflow:           "ArithmeticOverflow",
	CodeSlippageExceeded:             "SlippageExceeded",
	CodeInsufficientTokens:           "InsufficientTokens",
	CodeExternalRefAlreadyUsed:       "ExternalRefAlreadyUsed",
	CodeInvalidCreator:               "InvalidCreator",
	CodeInvalidFirstBuyer:            "InvalidFirstBuyer",
	CodeInvalidParams:                "InvalidParams",
	CodeBondingCurveNotFound:         "BondingCurveNotFound",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error is a protocol error with a stable code and a human-readable message.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, uint32(e.Code), e.Msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotAuthorized                = &Error{CodeNotAuthorized, "the given account is not authorized to execute this instruction"}
	ErrAlreadyInitialized           = &Error{CodeAlreadyInitialized, "the program is already initialized"}
	ErrInvalidFeeRecipient          = &Error{CodeInvalidFeeRecipient, "the provided fee recipient does not match the global fee recipient"}
	ErrTooMuchSolRequired           = &Error{CodeTooMuchSolRequired, "slippage: too much SOL required to buy the given amount of tokens"}
	ErrTooLittleSolReceived         = &Error{CodeTooLittleSolReceived, "slippage: too little SOL received to sell the given amount of tokens"}
	ErrMintDoesNotMatchBondingCurve = &Error{CodeMintDoesNotMatchBondingCurve, "the mint does not match the bonding curve"}
	ErrBondingCurveComplete         = &Error{CodeBondingCurveComplete, "the bonding curve has completed and liquidity migrated"}
	ErrBondingCurveNotComplete      = &Error{CodeBondingCurveNotComplete, "the bonding curve has not completed"}
	ErrNotInitialized               = &Error{CodeNotInitialized, "the program is not initialized"}
	ErrInsufficientFunds            = &Error{CodeInsufficientFunds, "insufficient funds"}
	ErrArithmeticOverflow           = &Error{CodeArithmeticOverflow, "arithmetic overflow"}
	ErrSlippageExceeded             = &Error{CodeSlippageExceeded, "slippage exceeded"}
	ErrInsufficientTokens           = &Error{CodeInsufficientTokens, "insufficient tokens"}
	ErrExternalRefAlreadyUsed       = &Error{CodeExternalRefAlreadyUsed, "this external reference id has already been used to create a token"}
	ErrInvalidCreator               = &Error{CodeInvalidCreator, "the provided creator does not match the bonding curve creator"}
	ErrInvalidFirstBuyer            = &Error{CodeInvalidFirstBuyer, "the provided first buyer does not match the bonding curve first buyer"}
	ErrInvalidParams                = &Error{CodeInvalidParams, "invalid protocol parameters"}
	ErrBondingCurveNotFound         = &Error{CodeBondingCurveNotFound, "bonding curve not found"}
)

// Errorf wraps base with formatted detail while keeping it matchable by errors.Is.
func Errorf(base *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// CodeOf extracts the protocol code from anywhere in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
