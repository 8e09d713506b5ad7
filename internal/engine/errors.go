package engine

import "errors"

// Ошибки step machine.
var (
	// ErrUnknownNodeType — нет handler'а для типа узла.
	// Фатальная ошибка конфигурации: retry бесполезен.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrNodeFailed — узел завершился ошибкой, workflow прерван.
	ErrNodeFailed = errors.New("node failed")

	// ErrEmptyWorkflow — у workflow нет узлов.
	ErrEmptyWorkflow = errors.New("workflow has no nodes")

	// ErrAPICall — api_call узел получил ошибку HTTP.
	ErrAPICall = errors.New("api call failed")

	// ErrCondition — condition узел не смог вычислить условие.
	ErrCondition = errors.New("condition evaluation failed")
)
