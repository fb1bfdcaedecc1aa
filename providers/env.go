package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

func defaultEnvFunc(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

// ReadErrorMessage extracts a human-readable message from an error response
// body, falling back to the raw text when it isn't the generic
// {"error":{"message":...}} shape every provider in the catalogue uses.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
