package modem

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoPowerPin is returned when a Modem is constructed without the
	// GPIO line wired to the module's PWRKEY.
	ErrNoPowerPin = errors.New("no power pin configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the Dialer returned no transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTransportNotReady is returned when the serial line still reports
	// pending transmission at the moment a response is read.
	//
	// It means the wait budget of the command was too short for the
	// hardware. It is never retried by the driver.
	ErrTransportNotReady = errors.New("transport not ready: transmission not complete")

	// ErrIncorrectCommandOutput matches every *CommandOutputError.
	ErrIncorrectCommandOutput = errors.New("incorrect command output")

	// ErrGPSNotAcquired matches every *GPSNotAcquiredError.
	ErrGPSNotAcquired = errors.New("gps coordinates not acquired")

	// ErrMalformedFix matches every *MalformedFixError.
	ErrMalformedFix = errors.New("malformed gnss fix record")

	// ErrInvalidRecipient is returned when an SMS recipient is not a phone
	// number of 3 to 15 digits with an optional leading '+'.
	ErrInvalidRecipient = errors.New("invalid sms recipient")

	// ErrInvalidMessage is returned when an SMS body contains Ctrl-Z, which
	// would end the message early.
	ErrInvalidMessage = errors.New("invalid sms body")

	// ErrInvalidParameter is returned when a value interpolated into a
	// quoted AT parameter contains a quote or a line break.
	ErrInvalidParameter = errors.New("invalid command parameter")
)

// CommandOutputError reports a strictly verified command whose response
// did not contain the expected token.
type CommandOutputError struct {
	Command  string
	Expected string
	Response string
}

func (e *CommandOutputError) Error() string {
	return fmt.Sprintf("incorrect output of %q: expected %q in %q", e.Command, e.Expected, e.Response)
}

func (e *CommandOutputError) Is(target error) bool {
	return target == ErrIncorrectCommandOutput
}

// GPSNotAcquiredError is returned when every acquisition attempt came back
// without a fix.
type GPSNotAcquiredError struct {
	Attempts int
}

func (e *GPSNotAcquiredError) Error() string {
	return fmt.Sprintf("gps coordinates not acquired after %d attempts", e.Attempts)
}

func (e *GPSNotAcquiredError) Is(target error) bool {
	return target == ErrGPSNotAcquired
}

// MalformedFixError is returned when a line classified as a fix does not
// have the expected field layout.
type MalformedFixError struct {
	Line   string
	Reason string
}

func (e *MalformedFixError) Error() string {
	return fmt.Sprintf("malformed gnss fix record %q: %s", e.Line, e.Reason)
}

func (e *MalformedFixError) Is(target error) bool {
	return target == ErrMalformedFix
}
