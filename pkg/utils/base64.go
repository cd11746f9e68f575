package utils

import (
	"encoding/base64"
)

func DecodeB64(message string) ([]byte, error) {
	return base64.StdEncoding.Strict().DecodeString(message)
}

func EncodeB64(message []byte) string {
	return base64.StdEncoding.Strict().EncodeToString(message)
}
