package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps every input validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistrationPassword indicates the registration secret is incorrect.
	ErrInvalidRegistrationPassword = errors.New("invalid registration password")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username or email.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrCharacterExists is returned when a user already owns a character.
	ErrCharacterExists = errors.New("character already exists")
	// ErrCharacterRequired is returned when an operation needs a character the user has not created.
	ErrCharacterRequired = errors.New("character required")
	// ErrQuestAlreadyAccepted is returned when a template was already taken by the user.
	ErrQuestAlreadyAccepted = errors.New("quest already accepted")
	// ErrPersistenceConflict is returned when a submission kept losing races after all retries.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrStorageDisabled is returned by export operations when no bucket is configured.
	ErrStorageDisabled = errors.New("export storage is not configured")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
