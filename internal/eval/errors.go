package eval

import "errors"

// ErrConfiguration marks fatal setup problems: missing adapter or predictor,
// or an empty prompt list. Raised before any work starts.
var ErrConfiguration = errors.New("eval: configuration error")

// ErrBatchContract marks a batch predictor returning a result list whose
// length does not match its input. It indicates a broken predictor
// implementation, so the run aborts immediately and is never retried.
var ErrBatchContract = errors.New("eval: batch predictor contract violation")
