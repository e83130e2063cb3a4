package utils

import gonanoid "github.com/matoous/go-nanoid/v2"

var (
	NanoidSize     = 12
	nanoidAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitAlphabet  = "0123456789"
)

func NanoID() string {
	return NanoIDSize(NanoidSize)
}

func NanoIDSize(size int) string {
	if size == 0 {
		size = NanoidSize
	}

	return gonanoid.MustGenerate(nanoidAlphabet, size)
}

// NanoDigits returns a random string of size decimal digits whose first
// digit is never zero.
func NanoDigits(size int) (string, error) {
	if size < 1 {
		size = 1
	}

	head, err := gonanoid.Generate(digitAlphabet[1:], 1)
	if err != nil {
		return "", err
	}

	if size == 1 {
		return head, nil
	}

	tail, err := gonanoid.Generate(digitAlphabet, size-1)
	if err != nil {
		return "", err
	}

	return head + tail, nil
}
