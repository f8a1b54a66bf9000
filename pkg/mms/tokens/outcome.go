package tokens

import "net/http"

// Validity is the result of checking a token
type Validity string

const (
	Valid   Validity = "VALID"
	Invalid Validity = "INVALID"
	Expired Validity = "EXPIRED"
)

// Outcome is the terminal result of a token-driven flow. Outcomes are
// expected branches of a workflow, not errors.
type Outcome string

const (
	// Dispatch
	OutcomeSuccess       Outcome = "success"
	OutcomeError         Outcome = "error"
	OutcomeEmailNotFound Outcome = "email_not_found"
	OutcomeEmailVerified Outcome = "email_verified"
	OutcomeAccountLocked Outcome = "account_locked"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeNoAction      Outcome = ""

	// CompleteAction
	OutcomeEmptyUser       Outcome = "empty_user"
	OutcomePasswordError   Outcome = "pw_error"
	OutcomeInvalidPwToken  Outcome = "invalid_pw_token"
	OutcomeExpiredPwToken  Outcome = "expired_pw_token"
	OutcomePasswordChanged Outcome = "change_pw_success"
	OutcomeEmailSendError  Outcome = "email_send_error"

	// Email verification
	OutcomeAlreadyVerified     Outcome = "verified"
	OutcomeVerificationValid   Outcome = "valid"
	OutcomeVerificationInvalid Outcome = "invalid"
	OutcomeVerificationExpired Outcome = "expired"
)

// HTTPStatus maps an outcome to a response status
func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeSuccess, OutcomePasswordChanged, OutcomeVerificationValid, OutcomeAlreadyVerified:
		return http.StatusOK
	case OutcomeEmailSendError:
		// the action itself completed
		return http.StatusOK
	case OutcomeEmailNotFound, OutcomeEmptyUser, OutcomeNoAction:
		return http.StatusNotFound
	case OutcomeEmailVerified:
		return http.StatusConflict
	case OutcomeAccountLocked:
		return http.StatusForbidden
	case OutcomeUnauthorized:
		return http.StatusUnauthorized
	case OutcomePasswordError:
		return http.StatusBadRequest
	case OutcomeInvalidPwToken, OutcomeVerificationInvalid, OutcomeExpiredPwToken, OutcomeVerificationExpired:
		return http.StatusGone
	case OutcomeError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
