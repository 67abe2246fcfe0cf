package models

// AuthEvent names an authentication event for audit logs and metrics.
type AuthEvent string

const (
	AuthEventRegister       AuthEvent = "register"
	AuthEventLogin          AuthEvent = "login"
	AuthEventLogout         AuthEvent = "logout"
	AuthEventRefresh        AuthEvent = "refresh"
	AuthEventPasswordChange AuthEvent = "password_change"
	AuthEventProfileUpdate  AuthEvent = "profile_update"
)

// Outcome labels for AuthEvent.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
