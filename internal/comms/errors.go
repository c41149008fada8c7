package comms

import "errors"

// SoftError is an expected, user-facing failure ("no active game",
// "already submitted"). Its text is shown to the user verbatim and it is
// never logged as a failure.
type SoftError string

func (e SoftError) Error() string { return string(e) }

// AsSoftError extracts a SoftError from err's chain.
func AsSoftError(err error) (SoftError, bool) {
	var soft SoftError
	if errors.As(err, &soft) {
		return soft, true
	}
	return "", false
}

// Apology is the generic reply used when a request fails unexpectedly.
const Apology = "😕 Desculpa, algo deu errado aqui. Tenta de novo daqui a pouco."
