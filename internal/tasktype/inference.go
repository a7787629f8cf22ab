package tasktype

import "fmt"

const (
	// TypeInference — тип задачи инференса модели.
	TypeInference = "inference"

	// Ключи payload inference.
	payloadModel     = "model"
	payloadDataInput = "data_input"
	payloadChunkSize = "chunk_size"
	payloadChunk     = "chunk"
)

// InferenceSplitter — декомпозиция inference-задачи.
//
// Разбивает data_input на чанки по chunk_size элементов; каждый чанк
// становится отдельным юнитом с тем же model.
//
// Payload задачи:
//
//	{
//	    "model": "resnet-50",
//	    "data_input": ["img1.png", "img2.png", ...],
//	    "chunk_size": 2              // по умолчанию 1
//	}
//
// Payload юнита:
//
//	{"model": "resnet-50", "chunk": ["img1.png", "img2.png"]}
type InferenceSplitter struct{}

// Split разбивает data_input на чанки.
func (InferenceSplitter) Split(payload map[string]any) ([]map[string]any, error) {
	model := GetPayloadString(payload, payloadModel)
	if model == "" {
		return nil, fmt.Errorf("%w: %s: model required", ErrInvalidPayload, TypeInference)
	}

	input := GetPayloadSlice(payload, payloadDataInput)
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: %s: data_input required", ErrInvalidPayload, TypeInference)
	}

	chunkSize := GetPayloadInt(payload, payloadChunkSize)
	if chunkSize <= 0 {
		chunkSize = 1
	}

	units := make([]map[string]any, 0, (len(input)+chunkSize-1)/chunkSize)
	for start := 0; start < len(input); start += chunkSize {
		end := min(start+chunkSize, len(input))
		units = append(units, map[string]any{
			payloadModel: model,
			payloadChunk: append([]any(nil), input[start:end]...),
		})
	}
	return units, nil
}

// NewInference создаёт определение типа inference.
func NewInference() *Definition {
	return &Definition{
		Name:     TypeInference,
		Splitter: InferenceSplitter{},
	}
}
