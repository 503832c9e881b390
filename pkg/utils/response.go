package utils

// ResponseData is the JSON envelope every successful REST handler returns.
type ResponseData struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics on error so the recovery middleware can translate
// typed errors into the structured error response.
func PanicIfNeeded(err error) {
	if err != nil {
		panic(err)
	}
}
