package hookclient

import "github.com/batchswap/coordinator"

// selectorTable maps a revert's 4-byte selector to the ErrorKind the rest
// of the core branches on. Selectors come from the hook's custom error
// declarations; unknown selectors decode to KindUnknownSelector rather
// than failing the decode.
var selectorTable = map[[4]byte]batchswap.ErrorKind{
	{0xc0, 0x67, 0x89, 0xfa}: batchswap.KindInvalidCommitment,
	{0x56, 0xa2, 0x70, 0xff}: batchswap.KindSlippageExceededForUser,
	{0x52, 0x12, 0xcb, 0xa1}: batchswap.KindCurrencyNotSettled,
	{0x6f, 0x7e, 0xac, 0x4e}: batchswap.KindDeadlineExpiredOnChain,
	{0x9a, 0x4e, 0x8a, 0x30}: batchswap.KindInsufficientCommitments,
	{0x2d, 0x6a, 0x6a, 0xb1}: batchswap.KindBatchConditionsNotMet,
	{0x3b, 0x99, 0xb0, 0x53}: batchswap.KindInvalidNonce,
}

// DecodeError turns a revert's return data into a *batchswap.ChainError.
// Data shorter than 4 bytes decodes to KindUnknownSelector with an empty
// selector, matching the hook client's "never panic on malformed revert
// data" requirement.
func DecodeError(data []byte) *batchswap.ChainError {
	var sel [4]byte
	if len(data) >= 4 {
		copy(sel[:], data[:4])
	}

	kind, ok := selectorTable[sel]
	if !ok {
		return &batchswap.ChainError{
			Kind:     batchswap.KindUnknownSelector,
			Selector: sel,
			Msg:      "unrecognized revert selector",
		}
	}
	return &batchswap.ChainError{
		Kind:     kind,
		Selector: sel,
		Msg:      string(kind),
	}
}
