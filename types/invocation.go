package types

const (
	OperationGet = "get"
	OperationSet = "set"
)

const (
	DefaultRequestValue = "default value"
	NullValue           = "null"
)

const (
	MsgGetSuccess     = "Successfully got value!"
	MsgSetSuccess     = "Successfully set value!"
	MsgKeyNotInCache  = "Key not in cache!"
	MsgInvalidCommand = "Invalid command! Valid commands are get, set"
)

type Request struct {
	Operation string `json:"operation"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type Response struct {
	Value string `json:"value"`
	Msg   string `json:"msg"`
}

// RedeployTrigger schedules a background redeploy of the named function.
// Implementations must not block the caller.
type RedeployTrigger interface {
	Trigger(functionName string)
}
