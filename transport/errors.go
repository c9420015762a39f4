package transport

import (
	"fmt"

	"github.com/cloudmega/megasdk"
)

// MEGA's reserved negative result codes (spec.md §6/§7).
const (
	EAGAIN       = -3
	ERATELIMIT   = -4
	ETOOMANY     = -6
	ENOENT       = -9
	EACCESS      = -11
	ESID         = -15
	EBLOCKED     = -16
	EOVERQUOTA   = -17
	ETEMPUNAVAIL = -18
)

// codeName gives the short mnemonic MEGA docs use for a result code, for
// error messages only — it plays no part in retry/kind decisions.
func codeName(code int) string {
	switch code {
	case EAGAIN:
		return "EAGAIN"
	case ERATELIMIT:
		return "ERATELIMIT"
	case ETOOMANY:
		return "ETOOMANY"
	case ENOENT:
		return "ENOENT"
	case EACCESS:
		return "EACCESS"
	case ESID:
		return "ESID"
	case EBLOCKED:
		return "EBLOCKED"
	case EOVERQUOTA:
		return "EOVERQUOTA"
	case ETEMPUNAVAIL:
		return "ETEMPUNAVAIL"
	default:
		return fmt.Sprintf("E%d", code)
	}
}

// kindForCode maps a MEGA result code to the error taxonomy of spec.md §7.
func kindForCode(code int) mega.ErrorKind {
	switch code {
	case ESID, EBLOCKED:
		return mega.KindAuth
	case ENOENT:
		return mega.KindNotFound
	case EACCESS:
		return mega.KindPermission
	case EOVERQUOTA:
		return mega.KindQuota
	case EAGAIN, ERATELIMIT, ETOOMANY, ETEMPUNAVAIL:
		return mega.KindTransient
	default:
		return mega.KindProtocol
	}
}

// retryable reports whether a batch-wide negative result code should be
// retried with backoff (spec.md §4.4) rather than surfaced immediately.
func retryable(code int) bool {
	switch code {
	case EAGAIN, ERATELIMIT, ETOOMANY, ETEMPUNAVAIL:
		return true
	default:
		return false
	}
}

// codeError turns a MEGA negative result code into a *mega.Error.
func codeError(op string, code int) error {
	return mega.E(op, kindForCode(code), fmt.Errorf("mega: %s (%d)", codeName(code), code))
}
