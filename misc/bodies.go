package misc

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ResultBody is the envelope of the form-encoded workflow actions.
type ResultBody struct {
	Status interface{} `json:"status"`
	Msg    string      `json:"msg"`
	Data   interface{} `json:"data"`
}

type PagedBody struct {
	List  interface{} `json:"data"`
	Total uint64      `json:"total"`
}
