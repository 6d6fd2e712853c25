package errors

import (
	"encoding/json"
	"fmt"
)

// FormatForUser returns a short, human-readable rendering of err suitable
// for CLI or log-line display. Non-RAMError values just return err.Error().
func FormatForUser(err error) string {
	if err == nil {
		return ""
	}

	re, ok := err.(*RAMError)
	if !ok {
		return err.Error()
	}

	msg := fmt.Sprintf("Error: %s [%s]", re.Message, re.Code)
	if re.Cause != nil {
		msg += fmt.Sprintf(" (cause: %s)", re.Cause.Error())
	}
	return msg
}

// jsonError is the JSON representation of a RAMError.
type jsonError struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Details  map[string]string `json:"details,omitempty"`
	Cause    string            `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of err for machine consumption.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	re, ok := err.(*RAMError)
	if !ok {
		re = New(ErrCodeStorageFailure, err.Error(), err)
	}

	je := jsonError{
		Code:     re.Code,
		Message:  re.Message,
		Category: string(re.Category),
		Details:  re.Details,
	}
	if re.Cause != nil {
		je.Cause = re.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog returns key/value pairs suitable for slog.Any("error", ...)
// style structured logging.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	re, ok := err.(*RAMError)
	if !ok {
		return map[string]any{"error": err.Error()}
	}

	result := map[string]any{
		"error_code": re.Code,
		"message":    re.Message,
		"category":   string(re.Category),
	}
	if re.Cause != nil {
		result["cause"] = re.Cause.Error()
	}
	for k, v := range re.Details {
		result["detail_"+k] = v
	}
	return result
}
