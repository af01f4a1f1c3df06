// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

package token

import (
	"regexp"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/reservd/reservd/internal/apperr"
)

var ttlPattern = regexp.MustCompile(`^(\d+)([smhd]?)$`)

var ttlUnits = map[string]time.Duration{
	"":  time.Second,
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseTTL parses a token lifetime. A bare integer is seconds; otherwise the
// integer carries one of the suffixes s, m, h or d. The result must be
// positive.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, oops.Code(apperr.CodeConfigInvalid).
			With("value", s).
			Errorf("token expiration %q must be an integer with an optional s, m, h or d suffix", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, oops.Code(apperr.CodeConfigInvalid).With("value", s).Wrapf(err, "token expiration out of range")
	}
	if n <= 0 {
		return 0, oops.Code(apperr.CodeConfigInvalid).
			With("value", s).
			Errorf("token expiration must be positive")
	}

	unit := ttlUnits[m[2]]
	if n > int64(maxDuration/unit) {
		return 0, oops.Code(apperr.CodeConfigInvalid).
			With("value", s).
			Errorf("token expiration %q is too large", s)
	}
	return time.Duration(n) * unit, nil
}

const maxDuration = time.Duration(1<<63 - 1)
