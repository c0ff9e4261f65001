package types

// SuccessEnvelope wraps every successful API response.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope is the failure shape: a human message plus a stable machine code.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func NewSuccess(data any) SuccessEnvelope {
	return SuccessEnvelope{Success: true, Data: data}
}

func NewError(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{Success: false, Error: message, Code: code, Details: details}
}
