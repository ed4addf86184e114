// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package logger

import "os"

// ExitWithError terminates the process with the given exit code.
// It is meant to be deferred from main after the exit code variable
// has been set, so that deferred cleanups still run.
func ExitWithError(code *int) {
	os.Exit(*code)
}
